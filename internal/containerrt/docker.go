package containerrt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
)

// imageRepo is the builder image published by the verifier's CI; each
// allowed version maps to a tag on this repository.
const imageRepo = "ghcr.io/gear-tech/sails-program-verifier"

// Docker is a ContainerRuntime backed by a real Docker engine reached over
// its local socket or DOCKER_HOST.
type Docker struct {
	cli     *client.Client
	logsDir string
}

// NewDocker connects to the Docker engine using the standard environment
// variables (DOCKER_HOST, DOCKER_TLS_VERIFY, ...), negotiating the API
// version with the daemon. Container logs are written under logsDir.
func NewDocker(logsDir string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &Docker{cli: cli, logsDir: logsDir}, nil
}

func imageTag(version string) string {
	return fmt.Sprintf("%s:%s", imageRepo, version)
}

// EnsureImage pulls the builder image for version if it is not already
// present locally.
func (d *Docker) EnsureImage(ctx context.Context, version string) error {
	tag := imageTag(version)
	exists, err := d.imageExists(ctx, tag)
	if err != nil {
		return fmt.Errorf("check image %s: %w", tag, err)
	}
	if exists {
		return nil
	}

	auth, err := imageAuth()
	if err != nil {
		return fmt.Errorf("build registry auth: %w", err)
	}
	reader, err := d.cli.ImagePull(ctx, tag, image.PullOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", tag, err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("stream pull of %s: %w", tag, err)
	}
	return nil
}

func (d *Docker) imageExists(ctx context.Context, tag string) (bool, error) {
	images, err := d.cli.ImageList(ctx, image.ListOptions{All: true})
	if err != nil {
		return false, err
	}
	for _, img := range images {
		for _, repoTag := range img.RepoTags {
			if repoTag == tag {
				return true, nil
			}
		}
	}
	return false, nil
}

// RunBuild creates, starts and waits for the builder container, streaming
// its logs to <logsDir>/<job.JobID>.log.
func (d *Docker) RunBuild(ctx context.Context, job BuildJob) (BuildResult, error) {
	envs := []string{
		"REPO_URL=" + job.RepoLink,
		"PROJECT_NAME=" + job.ProjectName,
		"MANIFEST_PATH=" + job.ManifestPath,
		"BASE_PATH=" + job.BasePath,
	}
	if job.BuildIDL {
		envs = append(envs, "BUILD_IDL=true")
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        imageTag(job.Version),
			Env:          envs,
			AttachStdout: true,
			AttachStderr: true,
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:     mount.TypeBind,
				Source:   job.ProjectPath,
				Target:   "/mnt/target",
				ReadOnly: false,
			}},
		},
		nil, nil, job.JobID,
	)
	if err != nil {
		return BuildResult{}, fmt.Errorf("create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return BuildResult{ContainerID: resp.ID}, fmt.Errorf("start container %s: %w", resp.ID[:12], err)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			return BuildResult{ContainerID: resp.ID}, fmt.Errorf("wait container %s: %w", resp.ID[:12], waitErr)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	if err := d.streamLogs(ctx, resp.ID, job.JobID); err != nil {
		return BuildResult{ContainerID: resp.ID, ExitCode: exitCode}, fmt.Errorf("stream logs for %s: %w", resp.ID[:12], err)
	}

	return BuildResult{ContainerID: resp.ID, ExitCode: exitCode}, nil
}

func (d *Docker) streamLogs(ctx context.Context, containerID, jobID string) error {
	out, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	logPath := filepath.Join(d.logsDir, jobID+".log")
	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create log file %s: %w", logPath, err)
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(f, out)
	return err
}

// RemoveContainer force-removes a single container.
func (d *Docker) RemoveContainer(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}

// PruneAllContainers force-removes every container the engine knows
// about, run once at startup to clear anything orphaned by a crash.
func (d *Docker) PruneAllContainers(ctx context.Context) error {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filters.NewArgs()})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, c := range containers {
		if err := d.RemoveContainer(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// PruneDanglingImages removes every dangling (unreferenced) image, run
// once at startup after the allow-listed builder image versions have
// been pulled.
func (d *Docker) PruneDanglingImages(ctx context.Context) error {
	args := filters.NewArgs()
	args.Add("dangling", "true")
	_, err := d.cli.ImagesPrune(ctx, args)
	if err != nil {
		return fmt.Errorf("prune dangling images: %w", err)
	}
	return nil
}

// imageAuth returns the base64url-encoded auth config ImagePull's
// RegistryAuth option expects. Anonymous pulls work for the public
// verifier image; credentials are only needed for a private mirror.
func imageAuth() (string, error) {
	user, pass := os.Getenv("DOCKER_USERNAME"), os.Getenv("DOCKER_ACCESS_TOKEN")
	if user == "" && pass == "" {
		return "", nil
	}
	encoded, err := json.Marshal(registry.AuthConfig{
		Username:      user,
		Password:      pass,
		ServerAddress: "ghcr.io",
	})
	if err != nil {
		return "", fmt.Errorf("encode registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(encoded), nil
}
