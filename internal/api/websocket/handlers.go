package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Upgrader configuration for WebSocket connections
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
}

// Handler manages WebSocket endpoints
type Handler struct {
	logger      *zap.Logger
	runEventHub *RunEventHub
}

// NewHandler creates a new WebSocket handler. The gauge tracks connected
// clients and may be nil.
func NewHandler(logger *zap.Logger, gauge ClientGauge) *Handler {
	return &Handler{
		logger:      logger,
		runEventHub: NewRunEventHub(logger, gauge),
	}
}

// Start initializes the WebSocket handler
func (h *Handler) Start(ctx context.Context) {
	go h.runEventHub.Run(ctx)
}

// Stop gracefully shuts down the WebSocket handler
func (h *Handler) Stop() {
	h.runEventHub.Stop()
}

// RunEvents returns the run event hub for publishing events
func (h *Handler) RunEvents() *RunEventHub {
	return h.runEventHub
}

// HandleRunEvents handles WebSocket connections for report-run events
func (h *Handler) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	client := NewRunClient(conn, h.runEventHub)
	h.runEventHub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("New WebSocket connection established",
		zap.String("client_id", client.ID.String()),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// HealthCheck verifies the WebSocket handler is functioning
func (h *Handler) HealthCheck() error {
	select {
	case <-h.runEventHub.done:
		return ErrEventHubNotRunning
	default:
		return nil
	}
}

// Errors
var (
	ErrEventHubNotRunning = &WebSocketError{Code: "WS001", Message: "Event hub is not running"}
)

// WebSocketError represents a WebSocket-specific error
type WebSocketError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WebSocketError) Error() string {
	return e.Code + ": " + e.Message
}
