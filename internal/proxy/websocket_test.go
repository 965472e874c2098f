package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shehryarbajwa/warmcontext/internal/session"
	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

type stubSessions map[string]*models.Session

func (s stubSessions) GetSession(id string) (*models.Session, error) {
	sess, ok := s[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

// echoBrowser answers every CDP frame with the same payload
func echoBrowser(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func proxyFor(t *testing.T, sessions stubSessions) *httptest.Server {
	t.Helper()
	server := NewServer(sessions, zaptest.NewLogger(t))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.HandleDebugConnection(w, r, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleDebugConnection_Relays(t *testing.T) {
	browserSrv := echoBrowser(t)
	srv := proxyFor(t, stubSessions{
		"abc": {ID: "abc", Status: models.StatusRunning, ConnectURL: "ws" + strings.TrimPrefix(browserSrv.URL, "http")},
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/abc", nil)
	require.NoError(t, err)
	defer conn.Close()

	payload := `{"id":1,"method":"Browser.getVersion"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, payload, string(msg))
}

func TestHandleDebugConnection_Rejects(t *testing.T) {
	srv := proxyFor(t, stubSessions{
		"stopped": {ID: "stopped", Status: models.StatusCompleted, ConnectURL: "ws://127.0.0.1:1"},
		"local":   {ID: "local", Status: models.StatusRunning},
		"dead":    {ID: "dead", Status: models.StatusRunning, ConnectURL: "ws://127.0.0.1:1/devtools"},
	})

	tests := []struct {
		id     string
		status int
	}{
		{"missing", http.StatusNotFound},
		{"stopped", http.StatusConflict},
		{"local", http.StatusConflict},
		{"dead", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/" + tt.id)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
