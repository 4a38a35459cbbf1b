package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []StopEvent
}

func (p *recordingPublisher) PublishStop(event StopEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newHubServer(t *testing.T, hub *Hub, userID uuid.UUID) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validate := func(token string) (uuid.UUID, error) {
		if token != "good" {
			return uuid.Nil, errors.New("bad token")
		}
		return userID, nil
	}
	router := gin.New()
	router.GET("/ws", ServeWS(hub, validate, zap.NewNop()))
	return httptest.NewServer(router)
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestNotifyStopReachesConnectedClient(t *testing.T) {
	userID := uuid.New()
	publisher := &recordingPublisher{}
	hub := NewHub(publisher, zap.NewNop())
	srv := newHubServer(t, hub, userID)
	defer srv.Close()

	conn := dialWS(t, srv, "good")
	defer conn.Close()

	sessionID := uuid.New()
	// Registration happens in the server goroutine after the upgrade.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.conns[userID]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.NotifyStop(userID, sessionID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event StopEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, EventRecordingStopped, event.Event)
	assert.Equal(t, userID, event.UserID)
	assert.Equal(t, sessionID, event.SessionID)

	// Also published for other instances.
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.events, 1)
	assert.Equal(t, sessionID, publisher.events[0].SessionID)
}

func TestServeWSRejectsBadToken(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	srv := newHubServer(t, hub, uuid.New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?token=bad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeliverRemoteDoesNotRepublish(t *testing.T) {
	userID := uuid.New()
	publisher := &recordingPublisher{}
	hub := NewHub(publisher, zap.NewNop())

	hub.DeliverRemote(StopEvent{Event: EventRecordingStopped, UserID: userID, SessionID: uuid.New()})

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Empty(t, publisher.events)
}
