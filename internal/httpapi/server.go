// Package httpapi exposes the verification service over HTTP: job
// submission and status, read-through access to verified codes and
// idls, and the service's own version and metrics. The transport is a
// thin, replaceable shell around the core, so it is built on net/http's
// ServeMux rather than a third-party router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/intake"
	"github.com/sails-verify/program-verifier/internal/store"
)

const defaultListLimit = 100

// Server wires the HTTP surface to the intake and store collaborators.
type Server struct {
	intake   *intake.Intake
	store    store.Store
	version  string
	registry *prometheus.Registry
	mux      *http.ServeMux
}

// New builds a Server. registry may be nil, in which case GET /metrics
// serves the default global Prometheus registry.
func New(in *intake.Intake, st store.Store, version string, registry *prometheus.Registry) *Server {
	s := &Server{intake: in, store: st, version: version, registry: registry}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /verify", s.handleVerify)
	s.mux.HandleFunc("GET /verify/status", s.handleVerifyStatus)
	s.mux.HandleFunc("GET /code", s.handleGetCode)
	s.mux.HandleFunc("GET /codes", s.handleGetCodes)
	s.mux.HandleFunc("GET /idl", s.handleGetIdl)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	s.mux.HandleFunc("GET /supported_versions", s.handleSupportedVersions)

	if s.registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// verifyRequest is the POST /verify wire body.
type verifyRequest struct {
	RepoLink     string `json:"repo_link"`
	Version      string `json:"version"`
	ProjectName  string `json:"project_name,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`
	BasePath     string `json:"base_path,omitempty"`
	Network      string `json:"network"`
	CodeID       string `json:"code_id"`
	BuildIDL     *bool  `json:"build_idl,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	project, err := projectSelectorFrom(body.ProjectName, body.ManifestPath)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.intake.Submit(r.Context(), intake.Request{
		RepoLink: body.RepoLink,
		Version:  body.Version,
		Project:  project,
		BasePath: body.BasePath,
		Network:  body.Network,
		CodeID:   body.CodeID,
		BuildIDL: body.BuildIDL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// errMutuallyExclusiveProject is returned when a submission names both
// a package and a manifest path; at most one project selector variant
// may be chosen.
var errMutuallyExclusiveProject = errors.New("project_name and manifest_path are mutually exclusive")

func projectSelectorFrom(projectName, manifestPath string) (domain.ProjectSelector, error) {
	switch {
	case projectName != "" && manifestPath != "":
		return domain.ProjectSelector{}, errMutuallyExclusiveProject
	case projectName != "":
		return domain.ProjectSelector{Kind: domain.ProjectPackage, PackageName: projectName}, nil
	case manifestPath != "":
		return domain.ProjectSelector{Kind: domain.ProjectManifestPath, ManifestPath: manifestPath}, nil
	default:
		return domain.ProjectSelector{Kind: domain.ProjectRoot}, nil
	}
}

type verifyStatusResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	FailedReason *string `json:"failed_reason,omitempty"`
	CreatedAtMs  int64   `json:"created_at_ms"`
	RepoLink     string  `json:"repo_link"`
	CodeID       string  `json:"code_id"`
	Version      string  `json:"version"`
	Network      string  `json:"network"`
}

func (s *Server) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errMissingParam("id"))
		return
	}

	v, err := s.store.GetVerification(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyStatusResponse{
		ID:           v.ID,
		Status:       string(v.Status),
		FailedReason: v.FailedReason,
		CreatedAtMs:  v.CreatedAt.UnixMilli(),
		RepoLink:     v.RepoLink,
		CodeID:       v.CodeID,
		Version:      v.Version,
		Network:      string(v.Network),
	})
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errMissingParam("id"))
		return
	}

	c, err := s.store.GetCode(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetCodes(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, errMissingParam("limit"))
			return
		}
		limit = n
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, errMissingParam("offset"))
			return
		}
		offset = n
	}

	ids := r.URL.Query().Get("ids")
	if ids == "" {
		codes, err := s.store.GetCodes(r.Context(), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, codes)
		return
	}

	var out []codeEntry
	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		c, err := s.store.GetCode(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			out = append(out, codeEntry{ID: id})
			continue
		}
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, codeEntry{ID: id, Code: &c})
	}
	writeJSON(w, http.StatusOK, out)
}

// codeEntry pairs a requested id with its code, or a nil Code when the id
// is not a known verified artifact, so callers can tell which of their
// requested ids were absent.
type codeEntry struct {
	ID   string       `json:"id"`
	Code *domain.Code `json:"code"`
}

func (s *Server) handleGetIdl(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errMissingParam("id"))
		return
	}

	i, err := s.store.GetIdl(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleSupportedVersions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"versions": s.intake.AllowedVersions()})
}

func errMissingParam(name string) error {
	return errors.New("missing required query parameter: " + name)
}

// decodeJSON is used instead of a shared middleware since the surface
// is small enough that one helper covers every POST handler.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Shutdown gives in-flight requests up to timeout to finish before the
// underlying listener (owned by the caller's http.Server) is closed.
func Shutdown(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
