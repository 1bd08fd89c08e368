// Package containerrt drives the builder container: image pull, container
// create/start/wait/log, and cleanup, against a real Docker engine.
package containerrt

import "context"

// BuildJob describes one container invocation of the builder image.
type BuildJob struct {
	JobID        string
	RepoLink     string
	ProjectName  string
	ManifestPath string
	BasePath     string
	BuildIDL     bool
	Version      string
	// ProjectPath is the host directory bind-mounted at /mnt/target inside
	// the container; the builder image writes its output artifacts there.
	ProjectPath string
}

// BuildResult reports how the container exited.
type BuildResult struct {
	ContainerID string
	ExitCode    int64
}

// ContainerRuntime is the container lifecycle surface the builder depends
// on. A real implementation talks to a Docker engine; tests use a fake.
type ContainerRuntime interface {
	// EnsureImage makes sure the builder image for version is present
	// locally, pulling it if not. A no-op if the image already exists.
	EnsureImage(ctx context.Context, version string) error

	// RunBuild creates, starts and waits for the builder container to
	// exit, streaming its combined stdout/stderr to a log file named after
	// job.JobID, then returns without removing the container — removal is
	// the caller's responsibility via RemoveContainer.
	RunBuild(ctx context.Context, job BuildJob) (BuildResult, error)

	// RemoveContainer force-removes a single container by id.
	RemoveContainer(ctx context.Context, containerID string) error

	// PruneAllContainers force-removes every container visible to the
	// engine, used once at startup to clear anything orphaned by a crash.
	PruneAllContainers(ctx context.Context) error

	// PruneDanglingImages removes unreferenced (dangling) images, run
	// once at startup after image preparation to reclaim disk used by
	// superseded builder image layers.
	PruneDanglingImages(ctx context.Context) error
}
