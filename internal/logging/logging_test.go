package logging

import "testing"

func TestNewProductionLogger(t *testing.T) {
	logger, err := New(false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Sync()

	if logger.Core() == nil {
		t.Fatal("expected a non-nil logger core")
	}
}

func TestNewDevelopmentLogger(t *testing.T) {
	logger, err := New(true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Sync()
}

func TestForVerificationAttachesID(t *testing.T) {
	base, err := New(true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer base.Sync()

	child := ForVerification(base, "job-123")
	if child == base {
		t.Fatal("expected a distinct child logger")
	}
}
