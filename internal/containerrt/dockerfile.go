package containerrt

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
)

// BuildFromDockerfile builds the builder image locally from a Dockerfile
// and a build script instead of pulling it, used by the project's own CI
// to produce the images EnsureImage later pulls. dockerfilePath and
// scriptPath are read from the local filesystem and packed into the build
// context tar sent to the daemon.
func (d *Docker) BuildFromDockerfile(ctx context.Context, version, dockerfilePath, scriptPath string) error {
	tag := imageTag(version)

	buildCtx, err := buildContextTar(dockerfilePath, scriptPath)
	if err != nil {
		return fmt.Errorf("build context for %s: %w", tag, err)
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{tag},
	})
	if err != nil {
		return fmt.Errorf("build image %s: %w", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("stream build of %s: %w", tag, err)
	}
	return nil
}

// buildContextTar packs a renamed Dockerfile plus the shared build script
// into the tar archive Docker's build API expects as its context.
func buildContextTar(dockerfilePath, scriptPath string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if err := addFileToTar(tw, dockerfilePath, "Dockerfile"); err != nil {
		return nil, err
	}
	if err := addFileToTar(tw, scriptPath, "build.sh"); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	return &buf, nil
}

func addFileToTar(tw *tar.Writer, srcPath, nameInTar string) error {
	content, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", srcPath, err)
	}
	hdr := &tar.Header{
		Name: nameInTar,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", nameInTar, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("write tar content for %s: %w", nameInTar, err)
	}
	return nil
}
