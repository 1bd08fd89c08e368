// Package intake validates a verification submission and persists it as
// a Pending job. It is the only writer of new Verification rows; the
// scheduler only ever transitions rows intake already created.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sails-verify/program-verifier/internal/codeid"
	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/hashutil"
	"github.com/sails-verify/program-verifier/internal/store"
)

// ErrUnsupportedVersion is returned when Request.Version is not in the
// configured allow-list.
var ErrUnsupportedVersion = errors.New("unsupported version")

// Request is one submission to POST /verify, already decoded off the
// wire by the HTTP collaborator.
type Request struct {
	RepoLink string
	Version  string
	Project  domain.ProjectSelector
	BasePath string
	Network  string
	CodeID   string
	BuildIDL *bool // nil means "use the default", which is true
}

// Intake validates submissions against a fixed allow-list of versions
// and persists accepted ones as Pending verifications.
type Intake struct {
	store           store.Store
	allowedVersions map[string]bool
}

// New returns an Intake that accepts only versions present in
// allowedVersions.
func New(st store.Store, allowedVersions []string) *Intake {
	allowed := make(map[string]bool, len(allowedVersions))
	for _, v := range allowedVersions {
		allowed[v] = true
	}
	return &Intake{store: st, allowedVersions: allowed}
}

// Submit validates req and, on success, persists a new Pending
// Verification, returning its generated id.
func (i *Intake) Submit(ctx context.Context, req Request) (string, error) {
	if !i.allowedVersions[req.Version] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, req.Version)
	}

	network, err := domain.ParseNetwork(req.Network)
	if err != nil {
		return "", err
	}

	normalizedCodeID, err := codeid.Normalize(req.CodeID)
	if err != nil {
		return "", err
	}

	projectName, manifestPath := req.Project.Split()

	id, err := hashutil.GenerateID()
	if err != nil {
		return "", fmt.Errorf("generate verification id: %w", err)
	}

	buildIDL := true
	if req.BuildIDL != nil {
		buildIDL = *req.BuildIDL
	}

	var basePath *string
	if req.BasePath != "" {
		basePath = &req.BasePath
	}

	v := domain.Verification{
		ID:           id,
		RepoLink:     req.RepoLink,
		CodeID:       normalizedCodeID,
		ProjectName:  projectName,
		ManifestPath: manifestPath,
		BasePath:     basePath,
		BuildIDL:     buildIDL,
		Version:      req.Version,
		Network:      network,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now(),
	}

	if err := i.store.InsertVerification(ctx, v); err != nil {
		return "", fmt.Errorf("insert verification: %w", err)
	}

	return id, nil
}

// AllowedVersions returns the configured version allow-list, in no
// particular order. Used by GET /supported_versions.
func (i *Intake) AllowedVersions() []string {
	out := make([]string, 0, len(i.allowedVersions))
	for v := range i.allowedVersions {
		out = append(out, v)
	}
	return out
}
