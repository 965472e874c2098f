package api

import (
	"encoding/json"
	"errors"
	"net/http"

	ctxmgr "github.com/shehryarbajwa/warmcontext/internal/context"
	"github.com/shehryarbajwa/warmcontext/internal/lifecycle"
	"github.com/shehryarbajwa/warmcontext/internal/session"
)

// statusFor maps domain errors to HTTP status codes. Anything that is not
// the caller's fault is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidRequest), errors.Is(err, ctxmgr.ErrInvalidArchive):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBaseContextMissing):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionNotRunning), errors.Is(err, lifecycle.ErrContextOpen):
		return http.StatusConflict
	case errors.Is(err, session.ErrConcurrencyLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
