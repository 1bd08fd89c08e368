package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/store"
)

// newStores returns one of each Store implementation that can run without
// an external service, so the conformance checks below exercise all of
// them identically.
func newStores(t *testing.T) map[string]store.Store {
	t.Helper()
	sqlitePath := filepath.Join(t.TempDir(), "verifier.db")
	sqliteStore, err := store.NewSQLiteStore(sqlitePath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]store.Store{
		"memory": store.NewMemStore(),
		"sqlite": sqliteStore,
	}
}

func sampleVerification(id, codeID string) domain.Verification {
	return domain.Verification{
		ID:        id,
		RepoLink:  "https://github.com/example/program",
		CodeID:    codeID,
		BuildIDL:  true,
		Version:   "1.0.0",
		Network:   domain.NetworkTestnet,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestStoreConformance(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			v := sampleVerification("job-1", "1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcd")
			if err := s.InsertVerification(ctx, v); err != nil {
				t.Fatalf("InsertVerification: %v", err)
			}

			got, err := s.GetVerification(ctx, v.ID)
			if err != nil {
				t.Fatalf("GetVerification: %v", err)
			}
			if got.Status != domain.StatusPending || got.CodeID != v.CodeID {
				t.Fatalf("got %+v, want pending with code id %q", got, v.CodeID)
			}

			if _, err := s.GetVerification(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.UpdateStatus(ctx, v.ID, domain.StatusInProgress, nil); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			inProgress, err := s.AnyInProgressForCode(ctx, v.CodeID, "other-job")
			if err != nil {
				t.Fatalf("AnyInProgressForCode: %v", err)
			}
			if !inProgress {
				t.Fatal("expected AnyInProgressForCode to report true")
			}
			sameJob, err := s.AnyInProgressForCode(ctx, v.CodeID, v.ID)
			if err != nil {
				t.Fatalf("AnyInProgressForCode excluding self: %v", err)
			}
			if sameJob {
				t.Fatal("AnyInProgressForCode should exclude exceptID")
			}

			n, err := s.ResetInProgress(ctx)
			if err != nil {
				t.Fatalf("ResetInProgress: %v", err)
			}
			if n != 1 {
				t.Fatalf("expected 1 row reset, got %d", n)
			}
			got, err = s.GetVerification(ctx, v.ID)
			if err != nil {
				t.Fatalf("GetVerification after reset: %v", err)
			}
			if got.Status != domain.StatusPending {
				t.Fatalf("expected pending after reset, got %q", got.Status)
			}

			pending, err := s.ListPending(ctx, 10)
			if err != nil {
				t.Fatalf("ListPending: %v", err)
			}
			if len(pending) != 1 || pending[0].ID != v.ID {
				t.Fatalf("ListPending = %+v, want [%s]", pending, v.ID)
			}

			reason := "hash mismatch"
			if err := s.UpdateStatus(ctx, v.ID, domain.StatusFailed, &reason); err != nil {
				t.Fatalf("UpdateStatus failed: %v", err)
			}
			got, err = s.GetVerification(ctx, v.ID)
			if err != nil {
				t.Fatalf("GetVerification after fail: %v", err)
			}
			if got.Status != domain.StatusFailed || got.FailedReason == nil || *got.FailedReason != reason {
				t.Fatalf("got %+v, want failed with reason %q", got, reason)
			}

			code := domain.Code{ID: v.CodeID, Name: "my-program", RepoLink: v.RepoLink}
			if err := s.InsertCode(ctx, code); err != nil {
				t.Fatalf("InsertCode: %v", err)
			}
			gotCode, err := s.GetCode(ctx, code.ID)
			if err != nil {
				t.Fatalf("GetCode: %v", err)
			}
			if gotCode.Name != code.Name {
				t.Fatalf("got %+v, want %+v", gotCode, code)
			}
			codes, err := s.GetCodes(ctx, 10, 0)
			if err != nil {
				t.Fatalf("GetCodes: %v", err)
			}
			if len(codes) != 1 || codes[0].ID != code.ID {
				t.Fatalf("GetCodes = %+v, want [%s]", codes, code.ID)
			}

			idl := domain.Idl{ID: "idl-hash-1", Content: "service X { query Foo: () -> u8; }"}
			if err := s.InsertIdl(ctx, idl); err != nil {
				t.Fatalf("InsertIdl: %v", err)
			}
			gotIdl, err := s.GetIdl(ctx, idl.ID)
			if err != nil {
				t.Fatalf("GetIdl: %v", err)
			}
			if gotIdl.Content != idl.Content {
				t.Fatalf("got %+v, want %+v", gotIdl, idl)
			}
			if _, err := s.GetIdl(ctx, "missing-idl"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestResetInProgressOnlyAffectsInProgress(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			pending := sampleVerification("p1", "1111111111111111111111111111111111111111111111111111111111111111"[:64])
			verified := sampleVerification("v1", "2222222222222222222222222222222222222222222222222222222222222222"[:64])
			verified.Status = domain.StatusVerified

			if err := s.InsertVerification(ctx, pending); err != nil {
				t.Fatalf("InsertVerification pending: %v", err)
			}
			if err := s.InsertVerification(ctx, verified); err != nil {
				t.Fatalf("InsertVerification verified: %v", err)
			}

			n, err := s.ResetInProgress(ctx)
			if err != nil {
				t.Fatalf("ResetInProgress: %v", err)
			}
			if n != 0 {
				t.Fatalf("expected 0 rows reset, got %d", n)
			}

			got, err := s.GetVerification(ctx, "v1")
			if err != nil {
				t.Fatalf("GetVerification: %v", err)
			}
			if got.Status != domain.StatusVerified {
				t.Fatalf("expected verified status untouched, got %q", got.Status)
			}
		})
	}
}
