package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventRecordingStopped is emitted when a session is stopped by admin or
// check-out. The audio core only needs to emit the stop fact; rendering is
// the client's concern.
const EventRecordingStopped = "recording_stopped"

// StopEvent is the payload broadcast on stop.
type StopEvent struct {
	Event     string    `json:"event"`
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	At        int64     `json:"at"`
}

// Publisher fans an event out to other instances (Redis pub/sub bridge).
type Publisher interface {
	PublishStop(event StopEvent) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected websocket listeners per user and broadcasts stop
// events locally and across instances.
type Hub struct {
	mu        sync.RWMutex
	conns     map[uuid.UUID]map[*websocket.Conn]struct{}
	publisher Publisher
	logger    *zap.Logger
}

// NewHub creates a notification hub. publisher may be nil for single-instance
// deployments.
func NewHub(publisher Publisher, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:     make(map[uuid.UUID]map[*websocket.Conn]struct{}),
		publisher: publisher,
		logger:    logger,
	}
}

// NotifyStop broadcasts the stop fact to the user's local connections and
// publishes it for other instances.
func (h *Hub) NotifyStop(userID, sessionID uuid.UUID) {
	event := StopEvent{
		Event:     EventRecordingStopped,
		UserID:    userID,
		SessionID: sessionID,
		At:        time.Now().Unix(),
	}
	h.deliverLocal(event)
	if h.publisher != nil {
		if err := h.publisher.PublishStop(event); err != nil {
			h.logger.Warn("stop event publish failed", zap.Error(err))
		}
	}
}

// DeliverRemote delivers an event received from another instance to local
// connections only (no re-publish).
func (h *Hub) DeliverRemote(event StopEvent) {
	h.deliverLocal(event)
}

func (h *Hub) deliverLocal(event StopEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns[event.UserID]))
	for conn := range h.conns[event.UserID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			h.remove(event.UserID, conn)
			conn.Close()
		}
	}
}

func (h *Hub) add(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) remove(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// ServeWS handles GET /ws?token=... — validates the token and keeps the
// connection registered until the client goes away.
func ServeWS(h *Hub, validate func(token string) (uuid.UUID, error), logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		userID, err := validate(token)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		h.add(userID, conn)
		defer func() {
			h.remove(userID, conn)
			conn.Close()
		}()
		for {
			// Reads only keep the connection alive; clients do not send data.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
