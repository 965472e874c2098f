package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/internal/session"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionSource looks sessions up by ID
type SessionSource interface {
	GetSession(id string) (*models.Session, error)
}

// Server relays CDP traffic between a client and a session's browser
type Server struct {
	sessions SessionSource
	logger   *zap.Logger
}

// NewServer creates a CDP proxy over the given session source
func NewServer(sessions SessionSource, logger *zap.Logger) *Server {
	return &Server{
		sessions: sessions,
		logger:   logger,
	}
}

// HandleDebugConnection upgrades the request and proxies it to the session's CDP endpoint
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if sess.Status != models.StatusRunning {
		http.Error(w, session.ErrSessionNotRunning.Error(), http.StatusConflict)
		return
	}
	if sess.ConnectURL == "" {
		http.Error(w, "Session does not expose a debugging endpoint", http.StatusConflict)
		return
	}

	// Dial the browser before upgrading so failures still get an HTTP status
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	browserConn, _, err := websocket.DefaultDialer.DialContext(ctx, sess.ConnectURL, nil)
	if err != nil {
		s.logger.Warn("Failed to connect to browser", zap.String("session", sessionID), zap.Error(err))
		http.Error(w, fmt.Sprintf("Error connecting to browser: %v", err), http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("Debug client connected", zap.String("session", sessionID))

	// Bidirectional proxy
	errChan := make(chan error, 2)

	go func() {
		errChan <- s.proxyMessages(clientConn, browserConn, "client→browser")
	}()

	go func() {
		errChan <- s.proxyMessages(browserConn, clientConn, "browser→client")
	}()

	// Wait for either direction to close
	err = <-errChan
	if err != nil && err != io.EOF && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Warn("Proxy error", zap.String("session", sessionID), zap.Error(err))
	}

	s.logger.Info("Debug client disconnected", zap.String("session", sessionID))
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("WebSocket read error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			s.logger.Debug("WebSocket write error", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}
