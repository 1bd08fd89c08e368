package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/sails-verify/program-verifier/internal/store"
)

func testDSN(t *testing.T) string {
	t.Helper()
	return os.Getenv("TEST_MYSQL_DSN")
}

func TestMySQLStoreConformance(t *testing.T) {
	dsn := testDSN(t)
	if dsn == "" {
		t.Skip("skipping MySQL store tests: TEST_MYSQL_DSN not set")
	}

	s, err := store.NewMySQLStore(dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore: %v", err)
	}
	defer s.Close()

	v := sampleVerification("mysql-job-1", "abcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcd"[:64])
	ctx := context.Background()
	if err := s.InsertVerification(ctx, v); err != nil {
		t.Fatalf("InsertVerification: %v", err)
	}
	got, err := s.GetVerification(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVerification: %v", err)
	}
	if got.CodeID != v.CodeID {
		t.Fatalf("got code id %q, want %q", got.CodeID, v.CodeID)
	}
}
