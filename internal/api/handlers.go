package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/session"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

// Handler holds dependencies for session HTTP handlers
type Handler struct {
	sessionMgr *session.Manager
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sessionMgr *session.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		sessionMgr: sessionMgr,
		logger:     logger,
	}
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	sess, err := h.sessionMgr.CreateSession(r.Context(), req)
	if err != nil {
		h.logger.Warn("Session creation failed", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := h.sessionMgr.GetSession(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := models.SessionStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, h.sessionMgr.ListSessions(status))
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	keep := false
	if v := r.URL.Query().Get("keep"); v != "" {
		var err error
		keep, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid keep parameter: %w", err))
			return
		}
	}

	if err := h.sessionMgr.DeleteSession(id, keep); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionNotRunning) {
			writeError(w, statusFor(err), err)
			return
		}
		h.logger.Warn("Session closed with errors", zap.String("session", id), zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}

// NavigateSession handles POST /v1/sessions/{id}/navigate
func (h *Handler) NavigateSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	sess, err := h.sessionMgr.Navigate(id, req.URL)
	if err != nil {
		h.logger.Warn("Navigation failed", zap.String("session", id), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// GetSessionScreenshot handles GET /v1/sessions/{id}/screenshot
func (h *Handler) GetSessionScreenshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	png, err := h.sessionMgr.Screenshot(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(png)
}

// GetCacheStats handles GET /v1/sessions/{id}/cache
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	stats, err := h.sessionMgr.CacheStats(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetDebugURL handles GET /v1/sessions/{id}/debug
func (h *Handler) GetDebugURL(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := h.sessionMgr.GetSession(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if sess.ConnectURL == "" {
		writeError(w, http.StatusConflict, fmt.Errorf("session %s does not expose a debugging endpoint", id))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"debuggerUrl": fmt.Sprintf("ws://%s/v1/sessions/%s/ws", r.Host, sess.ID),
		"sessionId":   sess.ID,
		"status":      string(sess.Status),
	})
}
