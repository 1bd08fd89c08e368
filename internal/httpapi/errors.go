package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sails-verify/program-verifier/internal/chain"
	"github.com/sails-verify/program-verifier/internal/codeid"
	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/intake"
	"github.com/sails-verify/program-verifier/internal/store"
)

// appError is the JSON body returned for every non-2xx response:
// {"error": "..."}. Mirroring a single shape, rather than a different
// body per endpoint, keeps clients' error handling uniform.
type appError struct {
	Error string `json:"error"`
}

// writeError maps err to a status code and writes the {"error": "..."}
// body. InvalidRequest-shaped errors (bad version, bad network, bad code
// id, conflicting project selectors) are 400; a missing row is 404;
// anything else is 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errMutuallyExclusiveProject),
		errors.Is(err, intake.ErrUnsupportedVersion),
		errors.Is(err, codeid.ErrInvalidCodeID),
		errors.Is(err, domain.ErrUnsupportedNetwork),
		errors.Is(err, chain.ErrUnsupportedNetwork):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, appError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
