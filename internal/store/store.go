// Package store provides persistence for verification jobs, verified codes
// and their idls, with SQLite, MySQL and in-memory backends sharing one
// interface.
package store

import (
	"context"
	"errors"

	"github.com/sails-verify/program-verifier/internal/domain"
)

// ErrNotFound is returned when a requested id does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface the scheduler, builder and HTTP layer
// depend on. All methods are safe for concurrent use.
type Store interface {
	// InsertVerification persists a new job with the status it carries
	// (intake always submits StatusPending).
	InsertVerification(ctx context.Context, v domain.Verification) error

	// GetVerification returns a job by id, or ErrNotFound.
	GetVerification(ctx context.Context, id string) (domain.Verification, error)

	// UpdateStatus transitions a job to status, recording failedReason when
	// status is StatusFailed. failedReason is ignored otherwise.
	UpdateStatus(ctx context.Context, id string, status domain.Status, failedReason *string) error

	// ResetInProgress moves every StatusInProgress job back to StatusPending
	// and returns how many rows were affected. Called once at startup to
	// recover from a crash mid-build.
	ResetInProgress(ctx context.Context) (int, error)

	// AnyInProgressForCode reports whether another job for codeID is
	// currently InProgress, excluding the job identified by exceptID.
	AnyInProgressForCode(ctx context.Context, codeID, exceptID string) (bool, error)

	// ListPending returns up to limit StatusPending jobs, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Verification, error)

	// InsertCode persists a verified code record, replacing any existing
	// record with the same id.
	InsertCode(ctx context.Context, c domain.Code) error

	// GetCode returns a verified code by id, or ErrNotFound.
	GetCode(ctx context.Context, id string) (domain.Code, error)

	// GetCodes returns up to limit verified codes starting at offset,
	// ordered by id.
	GetCodes(ctx context.Context, limit, offset int) ([]domain.Code, error)

	// InsertIdl persists an idl blob, replacing any existing record with
	// the same id.
	InsertIdl(ctx context.Context, i domain.Idl) error

	// GetIdl returns an idl by id, or ErrNotFound.
	GetIdl(ctx context.Context, id string) (domain.Idl, error)

	// Close releases any resources held by the store.
	Close() error
}
