package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/session"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

// ContextHandler holds dependencies for context HTTP handlers
type ContextHandler struct {
	sessionMgr *session.Manager
	defaultURL string
	logger     *zap.Logger
}

// NewContextHandler creates a new context HTTP handler.
// defaultURL is warmed when a request names no URL.
func NewContextHandler(sessionMgr *session.Manager, defaultURL string, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{
		sessionMgr: sessionMgr,
		defaultURL: defaultURL,
		logger:     logger,
	}
}

// ListContexts handles GET /v1/contexts
func (h *ContextHandler) ListContexts(w http.ResponseWriter, r *http.Request) {
	contexts, err := h.sessionMgr.Store().ListContexts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, contexts)
}

// GetBaseContext handles GET /v1/contexts/base
func (h *ContextHandler) GetBaseContext(w http.ResponseWriter, r *http.Request) {
	base, err := h.sessionMgr.BaseContext()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, base)
}

// WarmBaseContext handles POST /v1/contexts/base
func (h *ContextHandler) WarmBaseContext(w http.ResponseWriter, r *http.Request) {
	var req models.WarmBaseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	if req.URL == "" {
		req.URL = h.defaultURL
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}

	result, err := h.sessionMgr.WarmBase(r.Context(), req)
	if err != nil {
		h.logger.Warn("Warming base context failed", zap.Error(err))
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			// The browser could not load the page
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ExportBaseContext handles GET /v1/contexts/base/export
func (h *ContextHandler) ExportBaseContext(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessionMgr.BaseContext(); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="base-context.tar.gz"`)
	if err := h.sessionMgr.ExportBase(w); err != nil {
		// Headers are gone; all we can do is log
		h.logger.Error("Exporting base context failed", zap.Error(err))
	}
}

// ImportBaseContext handles PUT /v1/contexts/base/import
func (h *ContextHandler) ImportBaseContext(w http.ResponseWriter, r *http.Request) {
	base, err := h.sessionMgr.ImportBase(r.Body)
	if err != nil {
		h.logger.Warn("Importing base context failed", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, base)
}
