package containerrt

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFakeRunBuildWritesLog(t *testing.T) {
	dir := t.TempDir()
	f := NewFake(dir)

	res, err := f.RunBuild(context.Background(), BuildJob{JobID: "job-1", Version: "0.8.0"})
	if err != nil {
		t.Fatalf("RunBuild: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}

	logPath := filepath.Join(dir, "job-1.log")
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file at %s: %v", logPath, err)
	}
}

func TestFakeRunBuildHonorsExitCode(t *testing.T) {
	f := NewFake(t.TempDir())
	f.ExitCodes["0.8.0"] = 1

	res, err := f.RunBuild(context.Background(), BuildJob{JobID: "job-2", Version: "0.8.0"})
	if err != nil {
		t.Fatalf("RunBuild: %v", err)
	}
	if res.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", res.ExitCode)
	}
}

func TestFakePruneDanglingImages(t *testing.T) {
	f := NewFake(t.TempDir())
	if err := f.PruneDanglingImages(context.Background()); err != nil {
		t.Fatalf("PruneDanglingImages: %v", err)
	}
	if !f.DanglingPruned {
		t.Fatal("expected DanglingPruned to be set")
	}
}

func TestImageTag(t *testing.T) {
	got := imageTag("0.8.0")
	want := "ghcr.io/gear-tech/sails-program-verifier:0.8.0"
	if got != want {
		t.Fatalf("imageTag = %q, want %q", got, want)
	}
}

func TestBuildContextTarContainsBothFiles(t *testing.T) {
	dir := t.TempDir()
	dockerfilePath := filepath.Join(dir, "Dockerfile-verifier-0.8.0")
	scriptPath := filepath.Join(dir, "build.sh")
	if err := os.WriteFile(dockerfilePath, []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("write dockerfile: %v", err)
	}
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	r, err := buildContextTar(dockerfilePath, scriptPath)
	if err != nil {
		t.Fatalf("buildContextTar: %v", err)
	}

	tr := tar.NewReader(r)
	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		names[hdr.Name] = true
	}
	if !names["Dockerfile"] || !names["build.sh"] {
		t.Fatalf("expected tar to contain Dockerfile and build.sh, got %v", names)
	}
}
