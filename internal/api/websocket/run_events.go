package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// RunEventType represents the type of report-run event
type RunEventType string

const (
	RunEventStarted   RunEventType = "run.started"
	RunEventCompleted RunEventType = "run.completed"
	RunEventFailed    RunEventType = "run.failed"
)

// RunEvent is one report-run lifecycle event pushed to subscribers
type RunEvent struct {
	ID         string       `json:"id"`
	Type       RunEventType `json:"type"`
	RunID      string       `json:"run_id"`
	Window     string       `json:"window,omitempty"`
	DocumentID string       `json:"document_id,omitempty"`
	Error      string       `json:"error,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Data       interface{}  `json:"data,omitempty"`
}

// ClientGauge receives connected-client count changes. A nil gauge
// disables reporting.
type ClientGauge interface {
	UpdateWebsocketClients(delta int64)
}

// RunEventHub manages WebSocket connections for report-run events. It
// implements the reporting run-notifier contract, so the reporting service
// publishes into it directly.
type RunEventHub struct {
	logger      *zap.Logger
	gauge       ClientGauge
	clients     map[uuid.UUID]*RunClient
	clientsLock sync.RWMutex
	broadcast   chan *RunEvent
	register    chan *RunClient
	unregister  chan *RunClient
	done        chan struct{}
}

// RunClient represents one WebSocket subscriber to the run feed
type RunClient struct {
	ID      uuid.UUID
	conn    *websocket.Conn
	send    chan *RunEvent
	hub     *RunEventHub
	filters RunEventFilters
}

// RunEventFilters restrict which events a client receives. Empty filters
// mean everything.
type RunEventFilters struct {
	EventTypes []RunEventType `json:"event_types,omitempty"`
	Windows    []string       `json:"windows,omitempty"`
}

// NewRunEventHub creates a new run event hub
func NewRunEventHub(logger *zap.Logger, gauge ClientGauge) *RunEventHub {
	return &RunEventHub{
		logger:     logger,
		gauge:      gauge,
		clients:    make(map[uuid.UUID]*RunClient),
		broadcast:  make(chan *RunEvent, 100),
		register:   make(chan *RunClient),
		unregister: make(chan *RunClient),
		done:       make(chan struct{}),
	}
}

// Run starts the event hub loop
func (h *RunEventHub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.done:
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// Stop gracefully shuts down the hub
func (h *RunEventHub) Stop() {
	close(h.done)
}

// RunStarted publishes a run-started event
func (h *RunEventHub) RunStarted(runID uuid.UUID, w reporting.Window) {
	h.publish(&RunEvent{
		ID:        uuid.New().String(),
		Type:      RunEventStarted,
		RunID:     runID.String(),
		Window:    w.Key(),
		Timestamp: time.Now(),
	})
}

// RunCompleted publishes a run-completed event carrying the document ID
func (h *RunEventHub) RunCompleted(runID uuid.UUID, doc *report.Document) {
	event := &RunEvent{
		ID:        uuid.New().String(),
		Type:      RunEventCompleted,
		RunID:     runID.String(),
		Timestamp: time.Now(),
	}
	if doc != nil {
		event.DocumentID = doc.ID.String()
		event.Data = map[string]interface{}{
			"title":         doc.Title,
			"total_tickets": doc.TotalTickets,
			"empty_range":   doc.EmptyRange,
		}
	}
	h.publish(event)
}

// RunFailed publishes a run-failed event
func (h *RunEventHub) RunFailed(runID uuid.UUID, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	h.publish(&RunEvent{
		ID:        uuid.New().String(),
		Type:      RunEventFailed,
		RunID:     runID.String(),
		Error:     msg,
		Timestamp: time.Now(),
	})
}

// publish never blocks the reporting pipeline: when the broadcast buffer
// is full the event is dropped and logged.
func (h *RunEventHub) publish(event *RunEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("run event dropped, broadcast buffer full",
			zap.String("run_id", event.RunID),
			zap.String("type", string(event.Type)),
		)
	}
}

// RegisterClient registers a new WebSocket client
func (h *RunEventHub) RegisterClient(client *RunClient) {
	h.register <- client
}

// UnregisterClient unregisters a WebSocket client
func (h *RunEventHub) UnregisterClient(client *RunClient) {
	h.unregister <- client
}

func (h *RunEventHub) registerClient(client *RunClient) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	h.clients[client.ID] = client
	if h.gauge != nil {
		h.gauge.UpdateWebsocketClients(1)
	}
	h.logger.Info("WebSocket client registered",
		zap.String("client_id", client.ID.String()),
	)

	welcome := &RunEvent{
		ID:        uuid.New().String(),
		Type:      "connection.established",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"client_id": client.ID.String(),
			"message":   "Connected to report run stream",
		},
	}

	select {
	case client.send <- welcome:
	default:
		// Client send channel full
	}
}

func (h *RunEventHub) unregisterClient(client *RunClient) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, exists := h.clients[client.ID]; exists {
		delete(h.clients, client.ID)
		close(client.send)
		if h.gauge != nil {
			h.gauge.UpdateWebsocketClients(-1)
		}
		h.logger.Info("WebSocket client unregistered",
			zap.String("client_id", client.ID.String()),
		)
	}
}

func (h *RunEventHub) broadcastEvent(event *RunEvent) {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	for _, client := range h.clients {
		if !client.shouldReceiveEvent(event) {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID.String()),
			)
			go func(c *RunClient) {
				h.unregister <- c
			}(client)
		}
	}
}

func (h *RunEventHub) pingClients() {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	for _, client := range h.clients {
		if err := client.conn.WriteControl(
			websocket.PingMessage,
			nil,
			time.Now().Add(10*time.Second),
		); err != nil {
			h.logger.Error("Failed to ping client",
				zap.String("client_id", client.ID.String()),
				zap.Error(err),
			)
			go func(c *RunClient) {
				h.unregister <- c
			}(client)
		}
	}
}

func (h *RunEventHub) shutdown() {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	for _, client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	if h.gauge != nil && len(h.clients) > 0 {
		h.gauge.UpdateWebsocketClients(-int64(len(h.clients)))
	}
	h.clients = make(map[uuid.UUID]*RunClient)
}

// ClientCount returns the number of connected clients
func (h *RunEventHub) ClientCount() int {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()
	return len(h.clients)
}

// RunClient methods

// NewRunClient creates a new run-feed WebSocket client
func NewRunClient(conn *websocket.Conn, hub *RunEventHub) *RunClient {
	return &RunClient{
		ID:   uuid.New(),
		conn: conn,
		send: make(chan *RunEvent, 10),
		hub:  hub,
	}
}

// shouldReceiveEvent applies the client's filters
func (c *RunClient) shouldReceiveEvent(event *RunEvent) bool {
	if len(c.filters.EventTypes) > 0 {
		matched := false
		for _, t := range c.filters.EventTypes {
			if t == event.Type {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(c.filters.Windows) > 0 && event.Window != "" {
		matched := false
		for _, w := range c.filters.Windows {
			if w == event.Window {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// ReadPump pumps messages from the WebSocket connection to the hub. The
// only inbound message clients may send is a filter update.
func (c *RunClient) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err),
				)
			}
			return
		}

		var filters RunEventFilters
		if err := json.Unmarshal(message, &filters); err != nil {
			c.hub.logger.Warn("Invalid filter message",
				zap.String("client_id", c.ID.String()),
				zap.Error(err),
			)
			continue
		}
		c.filters = filters
	}
}

// WritePump pumps events from the hub to the WebSocket connection
func (c *RunClient) WritePump() {
	defer c.conn.Close()

	for event := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(event); err != nil {
			c.hub.logger.Error("WebSocket write error",
				zap.String("client_id", c.ID.String()),
				zap.Error(err),
			)
			return
		}
	}

	// Hub closed the channel; tell the client we are going away.
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
