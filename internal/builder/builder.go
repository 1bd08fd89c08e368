// Package builder drives one verification job through its container
// build, then locates, hashes and names the artifacts it produced.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sails-verify/program-verifier/internal/containerrt"
	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/hashutil"
)

// ErrFailedToBuildWasm is returned when the container exits without
// producing a *.opt.wasm file in the project directory.
var ErrFailedToBuildWasm = errors.New("failed to build wasm")

// ErrFailedToBuildIdl is returned when BuildIDL was requested but the
// container did not produce a *.idl file.
var ErrFailedToBuildIdl = errors.New("failed to build idl")

const wasmSuffix = ".opt.wasm"
const idlSuffix = ".idl"

// Artifacts is what a successful build produces.
type Artifacts struct {
	CodeID      string
	Idl         *string
	Name        string
	ContainerID string
}

// Builder prepares a job's workspace, runs it through a container, and
// extracts the resulting artifacts.
type Builder struct {
	runtime    containerrt.ContainerRuntime
	buildsRoot string
}

// New returns a Builder that stages job workspaces under buildsRoot and
// drives containers via runtime.
func New(runtime containerrt.ContainerRuntime, buildsRoot string) *Builder {
	return &Builder{runtime: runtime, buildsRoot: buildsRoot}
}

// ProjectPath returns the host directory a job's container mounts at
// /mnt/target.
func (b *Builder) ProjectPath(jobID string) string {
	return filepath.Join(b.buildsRoot, jobID)
}

// Build stages v's workspace, ensures the builder image is present, runs
// the build container, and extracts the produced wasm (and, if
// v.BuildIDL, idl) from the workspace.
func (b *Builder) Build(ctx context.Context, v domain.Verification) (Artifacts, error) {
	projectPath := b.ProjectPath(v.ID)
	if err := os.MkdirAll(projectPath, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create project dir %s: %w", projectPath, err)
	}

	if err := b.runtime.EnsureImage(ctx, v.Version); err != nil {
		return Artifacts{}, fmt.Errorf("ensure builder image %s: %w", v.Version, err)
	}

	job := containerrt.BuildJob{
		JobID:        v.ID,
		RepoLink:     v.RepoLink,
		ProjectName:  derefOr(v.ProjectName, ""),
		ManifestPath: derefOr(v.ManifestPath, ""),
		BasePath:     derefOr(v.BasePath, ""),
		BuildIDL:     v.BuildIDL,
		Version:      v.Version,
		ProjectPath:  projectPath,
	}

	result, err := b.runtime.RunBuild(ctx, job)
	if err != nil {
		return Artifacts{ContainerID: result.ContainerID}, fmt.Errorf("run build container: %w", err)
	}

	artifacts, err := b.collectArtifacts(projectPath, v.BuildIDL)
	if err != nil {
		return Artifacts{ContainerID: result.ContainerID}, err
	}
	artifacts.ContainerID = result.ContainerID
	return artifacts, nil
}

func (b *Builder) collectArtifacts(projectPath string, buildIDL bool) (Artifacts, error) {
	entries, err := os.ReadDir(projectPath)
	if err != nil {
		return Artifacts{}, fmt.Errorf("read project dir %s: %w", projectPath, err)
	}

	var wasmPath, idlPath string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, wasmSuffix) && wasmPath == "":
			wasmPath = filepath.Join(projectPath, name)
		case strings.HasSuffix(name, idlSuffix) && idlPath == "":
			idlPath = filepath.Join(projectPath, name)
		}
	}

	if wasmPath == "" {
		return Artifacts{}, ErrFailedToBuildWasm
	}

	code, err := os.ReadFile(wasmPath)
	if err != nil {
		return Artifacts{}, fmt.Errorf("read wasm %s: %w", wasmPath, err)
	}
	codeID := hashutil.HashBytes(code)
	name := strings.TrimSuffix(filepath.Base(wasmPath), wasmSuffix)

	var idl *string
	if buildIDL {
		if idlPath == "" {
			return Artifacts{}, ErrFailedToBuildIdl
		}
		if content, err := os.ReadFile(idlPath); err == nil && utf8.Valid(content) {
			s := string(content)
			idl = &s
		}
	}

	return Artifacts{CodeID: codeID, Idl: idl, Name: name}, nil
}

// Cleanup removes a job's workspace directory and its container,
// unconditionally, on every exit path (success, build failure, or
// mismatch) — nothing is left behind for a later job to trip over.
func (b *Builder) Cleanup(ctx context.Context, jobID, containerID string) error {
	var errs []error

	if err := os.RemoveAll(b.ProjectPath(jobID)); err != nil {
		errs = append(errs, fmt.Errorf("remove project dir: %w", err))
	}
	if containerID != "" {
		if err := b.runtime.RemoveContainer(ctx, containerID); err != nil {
			errs = append(errs, fmt.Errorf("remove container: %w", err))
		}
	}
	return errors.Join(errs...)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
