package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/intake"
	"github.com/sails-verify/program-verifier/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemStore()
	in := intake.New(st, []string{"0.8.0"})
	return New(in, st, "test-version", nil), st
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleVerifyAcceptsValidSubmission(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/verify", verifyRequest{
		RepoLink: "https://example.test/repo",
		Version:  "0.8.0",
		Network:  string(domain.NetworkMainnet),
		CodeID:   "0x" + strings.Repeat("a", 64),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("expected a non-empty id")
	}
}

func TestHandleVerifyRejectsUnsupportedVersion(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/verify", verifyRequest{
		RepoLink: "https://example.test/repo",
		Version:  "9.9.9",
		Network:  string(domain.NetworkMainnet),
		CodeID:   "0x" + strings.Repeat("a", 64),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleVerifyRejectsMutuallyExclusiveProject(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/verify", verifyRequest{
		RepoLink:     "https://example.test/repo",
		Version:      "0.8.0",
		Network:      string(domain.NetworkMainnet),
		CodeID:       "0x" + strings.Repeat("a", 64),
		ProjectName:  "pkg",
		ManifestPath: "Cargo.toml",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleVerifyStatusFoundAndMissing(t *testing.T) {
	s, _ := newTestServer(t)

	createRec := postJSON(t, s, "/verify", verifyRequest{
		RepoLink: "https://example.test/repo",
		Version:  "0.8.0",
		Network:  string(domain.NetworkMainnet),
		CodeID:   "0x" + strings.Repeat("a", 64),
	})
	var created map[string]string
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verify/status?id="+created["id"], nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	missRec := httptest.NewRecorder()
	s.ServeHTTP(missRec, httptest.NewRequest(http.MethodGet, "/verify/status?id=does-not-exist", nil))
	if missRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missRec.Code)
	}
}

func TestHandleGetCodeMissing(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/code?id="+strings.Repeat("a", 64), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetCodesByIDsReportsMisses(t *testing.T) {
	s, st := newTestServer(t)
	codeID := strings.Repeat("b", 64)
	if err := st.InsertCode(context.Background(), domain.Code{ID: codeID, Name: "x", RepoLink: "y"}); err != nil {
		t.Fatalf("InsertCode: %v", err)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/codes?ids="+codeID+",deadbeef", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entries []codeEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected an entry per requested id, got %+v", entries)
	}
	if entries[0].ID != codeID || entries[0].Code == nil || entries[0].Code.ID != codeID {
		t.Fatalf("expected first entry to carry the found code, got %+v", entries[0])
	}
	if entries[1].ID != "deadbeef" || entries[1].Code != nil {
		t.Fatalf("expected second entry to be a nil-code miss, got %+v", entries[1])
	}
}

func TestHandleVersionAndSupportedVersions(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "test-version") {
		t.Fatalf("unexpected /version response: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/supported_versions", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "0.8.0") {
		t.Fatalf("unexpected /supported_versions response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
