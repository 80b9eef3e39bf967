package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event types pushed to WebSocket clients
const (
	EventLinkChanged   = "link_changed"
	EventTransmission  = "transmission"
	EventWiresXCommand = "wiresx_command"
	EventLinkTimeout   = "link_timeout"
)

// Event represents a WebSocket event to be broadcast to clients
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Marshal converts an event to JSON bytes
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	conn     *websocket.Conn
	messages chan []byte
}

// WebSocketHub manages WebSocket client connections and broadcasts. It is a
// gateway.Observer; per-frame notifications are not forwarded.
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Logger
	mu         sync.RWMutex
}

var _ gateway.Observer = (*WebSocketHub)(nil)

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run starts the WebSocket hub event loop
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered",
				logger.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.messages)
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered",
				logger.String("client_id", client.ID))

		case event := <-h.broadcast:
			data, err := event.Marshal()
			if err != nil {
				h.logger.Error("Failed to marshal event",
					logger.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.messages <- data:
				default:
					h.logger.Warn("Client message buffer full, skipping",
						logger.String("client_id", client.ID))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.messages)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			close(h.done)
			return
		}
	}
}

// Broadcast sends an event to all connected clients without blocking
func (h *WebSocketHub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			logger.String("event_type", event.Type))
	}
}

// Handler returns an HTTP handler for WebSocket connections
func (h *WebSocketHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{ID: uuid.NewString(), conn: conn, messages: make(chan []byte, 256)}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		// reader: detects the close
		go func() {
			defer func() {
				select {
				case h.unregister <- client:
				case <-h.done:
				}
				_ = client.conn.Close()
			}()
			client.conn.SetReadLimit(1024)
			for {
				if _, _, err := client.conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			for msg := range client.messages {
				_ = client.conn.WriteMessage(websocket.TextMessage, msg)
			}
		}()
	})
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LinkChanged implements gateway.Observer
func (h *WebSocketHub) LinkChanged(s gateway.Status) {
	h.Broadcast(Event{
		Type: EventLinkChanged,
		Data: map[string]interface{}{
			"network": s.Network,
			"dst_id":  s.DstID,
			"name":    s.Name,
			"state":   s.State,
		},
	})
}

// FrameRelayed implements gateway.Observer
func (h *WebSocketHub) FrameRelayed(gateway.Direction, reflectors.NetworkType) {}

// Transmission implements gateway.Observer
func (h *WebSocketHub) Transmission(dir gateway.Direction, callsign string, active bool) {
	h.Broadcast(Event{
		Type: EventTransmission,
		Data: map[string]interface{}{
			"direction": dir.String(),
			"callsign":  callsign,
			"active":    active,
		},
	})
}

// WiresXCommand implements gateway.Observer
func (h *WebSocketHub) WiresXCommand(command, source string) {
	h.Broadcast(Event{
		Type: EventWiresXCommand,
		Data: map[string]interface{}{
			"command": command,
			"source":  source,
		},
	})
}

// LinkTimeout implements gateway.Observer
func (h *WebSocketHub) LinkTimeout() {
	h.Broadcast(Event{Type: EventLinkTimeout, Data: map[string]interface{}{}})
}
