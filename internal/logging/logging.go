// Package logging constructs the service's structured logger. It is a
// thin wrapper over zap so the rest of the service receives a ready
// *zap.Logger rather than repeating zap's construction options.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. In production mode it emits JSON to stderr at
// info level; in development mode it emits a human-readable console
// encoding at debug level with stack traces on warnings.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ForVerification returns a child logger with the job's id attached to
// every subsequent field, so a verification's log lines can be grepped
// out of the service's combined output by id alone.
func ForVerification(base *zap.Logger, verificationID string) *zap.Logger {
	return base.With(zap.String("verification_id", verificationID))
}
