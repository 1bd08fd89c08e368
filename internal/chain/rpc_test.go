package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// validCodeID is a well-formed 32-byte hex code id, the only shape the
// probe will actually send to the node.
var validCodeID = strings.Repeat("aa", 32)

func newTestServer(t *testing.T, result json.RawMessage, rpcErr *rpcError) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "state_getStorage" {
			t.Fatalf("unexpected method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  result,
			Error:   rpcErr,
		})
	}))
}

func TestRPCProbeExistsTrue(t *testing.T) {
	srv := newTestServer(t, json.RawMessage(`"0xdeadbeef"`), nil)
	defer srv.Close()

	p := NewRPCProbe(srv.URL)
	exists, err := p.Exists(context.Background(), validCodeID)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected exists = true")
	}
}

func TestRPCProbeExistsFalseOnNull(t *testing.T) {
	srv := newTestServer(t, json.RawMessage(`null`), nil)
	defer srv.Close()

	p := NewRPCProbe(srv.URL)
	exists, err := p.Exists(context.Background(), validCodeID)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected exists = false for null result")
	}
}

func TestRPCProbeExistsFalseOnRPCError(t *testing.T) {
	srv := newTestServer(t, nil, &rpcError{Code: -32000, Message: "storage not found"})
	defer srv.Close()

	p := NewRPCProbe(srv.URL)
	exists, err := p.Exists(context.Background(), validCodeID)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected exists = false on rpc error")
	}
}

func TestRPCProbeExistsFalseOnUnreachable(t *testing.T) {
	p := NewRPCProbe("http://127.0.0.1:1")
	exists, err := p.Exists(context.Background(), validCodeID)
	if err != nil {
		t.Fatalf("Exists should swallow transport errors, got %v", err)
	}
	if exists {
		t.Fatal("expected exists = false when node is unreachable")
	}
}

func TestRPCProbeExistsFalseOnMalformedCodeID(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := NewRPCProbe(srv.URL)
	exists, err := p.Exists(context.Background(), "not-hex")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected exists = false for a non-hex code id")
	}
	if called {
		t.Fatal("expected the probe to short-circuit before calling the node")
	}

	exists, err = p.Exists(context.Background(), "aabb")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected exists = false for a code id shorter than 32 bytes")
	}
	if called {
		t.Fatal("expected the probe to short-circuit before calling the node")
	}
}
