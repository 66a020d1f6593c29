package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// Frame types
const (
	TypeSystem = "system"
	TypeEvent  = "event"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeError  = "error"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Subscriber hands out event subscriptions
type Subscriber interface {
	Subscribe() (<-chan types.Event, func())
}

// Handler streams broadcast events to WebSocket clients
type Handler struct {
	bus          Subscriber
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewHandler creates a handler accepting browser connections from origins.
// Requests without an Origin header (non-browser clients) are always accepted.
func NewHandler(bus Subscriber, origins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		bus:          bus,
		logger:       logger,
		pingInterval: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				_, wildcard := allowed["*"]
				return ok || wildcard
			},
		},
	}
}

// WithMetrics tracks open connections
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleConnection upgrades the request and streams events until either side
// goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	events, cancel := h.bus.Subscribe()
	defer cancel()

	replies := make(chan types.WSMessage, 8)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go h.readLoop(conn, replies, readErr, stop)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	log := h.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Debug("Event stream connected")

	if err := h.send(conn, types.WSMessage{Type: TypeSystem, Message: "connected to kioskhelper event stream"}); err != nil {
		return
	}

	for {
		select {
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Event stream read error", zap.Error(err))
			}
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.send(conn, types.WSMessage{Type: TypeEvent, Event: &ev}); err != nil {
				log.Debug("Event stream write failed", zap.Error(err))
				return
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop answers client frames. Only the connection goroutine writes.
func (h *Handler) readLoop(conn *websocket.Conn, replies chan<- types.WSMessage, readErr chan<- error, stop <-chan struct{}) {
	pongWait := 2 * h.pingInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg types.WSMessage
		reply := types.WSMessage{Type: TypePong}
		if err := sonic.Unmarshal(data, &msg); err != nil {
			reply = types.WSMessage{Type: TypeError, Message: "malformed frame"}
		} else if msg.Type != TypePing {
			reply = types.WSMessage{Type: TypeError, Message: "unknown message type"}
		}

		select {
		case replies <- reply:
		case <-stop:
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg types.WSMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
