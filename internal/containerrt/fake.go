package containerrt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Fake is an in-memory ContainerRuntime for tests that never touches a
// real Docker engine. It writes a one-line log file and reports whatever
// exit code the test configured for the job's version. It does not write
// any artifacts into job.ProjectPath; tests that need them seed the
// directory themselves.
type Fake struct {
	mu             sync.Mutex
	LogsDir        string
	ExitCodes      map[string]int64 // version -> exit code, default 0
	PulledImage    map[string]bool
	Removed        []string
	Pruned         bool
	DanglingPruned bool
	RunErr         error
}

// NewFake returns a ready-to-use Fake runtime writing logs under logsDir.
func NewFake(logsDir string) *Fake {
	return &Fake{
		LogsDir:     logsDir,
		ExitCodes:   make(map[string]int64),
		PulledImage: make(map[string]bool),
	}
}

func (f *Fake) EnsureImage(_ context.Context, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PulledImage[version] = true
	return nil
}

func (f *Fake) RunBuild(_ context.Context, job BuildJob) (BuildResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunErr != nil {
		return BuildResult{}, f.RunErr
	}

	logPath := filepath.Join(f.LogsDir, job.JobID+".log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return BuildResult{}, fmt.Errorf("prepare fake log dir: %w", err)
	}
	if err := os.WriteFile(logPath, []byte("fake build\n"), 0o644); err != nil {
		return BuildResult{}, fmt.Errorf("write fake log: %w", err)
	}

	return BuildResult{ContainerID: "fake-" + job.JobID, ExitCode: f.ExitCodes[job.Version]}, nil
}

func (f *Fake) RemoveContainer(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, containerID)
	return nil
}

func (f *Fake) PruneAllContainers(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pruned = true
	return nil
}

func (f *Fake) PruneDanglingImages(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DanglingPruned = true
	return nil
}
