// Package config loads the service's environment-driven settings, which
// bootstrap passes to the other packages as constructor arguments. Two
// variables are read elsewhere: ENV by cmd/verifier, and the registry
// credentials DOCKER_USERNAME/DOCKER_ACCESS_TOKEN by internal/containerrt.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrNoChainURLConfigured is returned when neither MAINNET_URL nor
// TESTNET_URL is set; bootstrap treats this as fatal, since a service
// with no configured network can never check on-chain existence.
var ErrNoChainURLConfigured = errors.New("no chain RPC url configured: set MAINNET_URL and/or TESTNET_URL")

// DefaultAllowedVersions is used when ALLOWED_VERSIONS is unset. It
// mirrors the three pinned minor versions the builder image registry
// publishes.
var DefaultAllowedVersions = []string{"0.7.0", "0.8.0", "0.9.0"}

// Config holds every environment-derived setting the bootstrap sequence
// needs to wire the service together.
type Config struct {
	DatabaseURL string
	MainnetURL  string
	TestnetURL  string

	DockerUsername    string
	DockerAccessToken string

	AllowedVersions []string
	BuildsRoot      string
	LogsDir         string

	MaxInProgress int
	CheckInterval time.Duration

	HTTPAddr string
}

// Load reads .env (if present, via godotenv, silently ignored when
// missing) then the process environment, and validates the result.
func Load() (Config, error) {
	// godotenv.Load never overrides variables already set in the
	// environment, so real deployment env vars always win over a
	// checked-in .env used for local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MainnetURL:        os.Getenv("MAINNET_URL"),
		TestnetURL:        os.Getenv("TESTNET_URL"),
		DockerUsername:    os.Getenv("DOCKER_USERNAME"),
		DockerAccessToken: os.Getenv("DOCKER_ACCESS_TOKEN"),
		AllowedVersions:   splitOrDefault(os.Getenv("ALLOWED_VERSIONS"), DefaultAllowedVersions),
		BuildsRoot:        getenvDefault("BUILDS_ROOT", "/tmp/builds"),
		LogsDir:           getenvDefault("LOGS_DIR", "logs"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
	}

	maxInProgress, err := getenvIntDefault("MAX_IN_PROGRESS", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxInProgress = maxInProgress

	checkInterval, err := getenvDurationDefault("CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.CheckInterval = checkInterval

	if cfg.MainnetURL == "" && cfg.TestnetURL == "" {
		return Config{}, ErrNoChainURLConfigured
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getenvDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitOrDefault(raw string, fallback []string) []string {
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
