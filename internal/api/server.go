package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/warmcontext/internal/proxy"
	"github.com/shehryarbajwa/warmcontext/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(contextHandler *ContextHandler, proxyServer *proxy.Server, rateLimiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()

	// CORS preflight for every path
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Launching browsers is expensive, so only those endpoints are rate limited
	rateLimitedAPI := api.PathPrefix("").Subrouter()
	rateLimitedAPI.Use(RateLimitMiddleware(rateLimiter))
	rateLimitedAPI.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	rateLimitedAPI.HandleFunc("/contexts/base", contextHandler.WarmBaseContext).Methods("POST")

	// Session endpoints
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/navigate", h.NavigateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/screenshot", h.GetSessionScreenshot).Methods("GET")
	api.HandleFunc("/sessions/{id}/cache", h.GetCacheStats).Methods("GET")

	// Debug endpoints
	api.HandleFunc("/sessions/{id}/debug", h.GetDebugURL).Methods("GET")
	api.HandleFunc("/sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		proxyServer.HandleDebugConnection(w, r, mux.Vars(r)["id"])
	}).Methods("GET")

	// Context endpoints
	api.HandleFunc("/contexts", contextHandler.ListContexts).Methods("GET")
	api.HandleFunc("/contexts/base", contextHandler.GetBaseContext).Methods("GET")
	api.HandleFunc("/contexts/base/export", contextHandler.ExportBaseContext).Methods("GET")
	api.HandleFunc("/contexts/base/import", contextHandler.ImportBaseContext).Methods("PUT")

	r.Use(loggingMiddleware(h.logger))
	r.Use(corsMiddleware)

	return r
}
