package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"tally/internal/events"
)

// ChatHandler processes a chat request arriving over a WebSocket connection.
type ChatHandler interface {
	Chat(ctx context.Context, userID, conversationID, content string) (any, error)
}

// Client is one connected WebSocket session bound to an authenticated user.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID string
}

// Hub tracks connected clients and relays bus events to them. Chat request
// frames are forwarded to the ChatHandler.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	chat        ChatHandler
	unsubscribe func()
}

// NewHub creates a hub that broadcasts every bus event as an event frame.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{clients: make(map[*Client]struct{})}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.ConversationID, e.Payload)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}

		h.mu.RLock()
		for c := range h.clients {
			c.enqueue(data)
		}
		h.mu.RUnlock()
	})

	return h
}

// SetChatHandler wires chat requests to the orchestrator.
func (h *Hub) SetChatHandler(ch ChatHandler) {
	h.chat = ch
}

// ServeWS upgrades the request and runs the client until it disconnects.
// The caller authenticates the request and passes the resolved user id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		userID: userID,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	slog.Info("ws client connected", "user_id", userID, "clients", len(h.clients))
	h.mu.Unlock()

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}

// enqueue hands data to the client's writer, dropping it when the client
// cannot keep up.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads frames from the connection until it closes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.drop(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			slog.Debug("ws read ended", "error", err)
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type != FrameTypeRequest {
			slog.Debug("ws unexpected frame type", "type", frame.Type)
			continue
		}
		c.handleRequest(ctx, frame)
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	if frame.Method != string(MethodChat) {
		c.reply(frame.ID, false, nil, "unknown method: "+frame.Method)
		return
	}
	if c.hub.chat == nil {
		c.reply(frame.ID, false, nil, "chat not available")
		return
	}

	var params struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		c.reply(frame.ID, false, nil, "invalid params")
		return
	}

	resp, err := c.hub.chat.Chat(ctx, c.userID, params.ConversationID, params.Content)
	if err != nil {
		c.reply(frame.ID, false, nil, err.Error())
		return
	}
	c.reply(frame.ID, true, resp, "")
}

func (c *Client) reply(id string, ok bool, payload any, errMsg string) {
	f, err := NewResponseFrame(id, ok, payload, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// writePump writes queued frames to the connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
