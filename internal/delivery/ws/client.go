package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/sealchat/internal/domain"
	"github.com/example/sealchat/internal/storage"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// RoomStore is consumed to check that a room exists before joining it.
type RoomStore interface {
	FindByID(id string) (*storage.Room, error)
}

// Client represents a single websocket connection with its bound identity.
// Identity is set once by the gatekeeper and never changes; event payloads
// are never trusted for user information.
type Client struct {
	ID       string
	Identity domain.Identity

	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	tracker  *Tracker
	pipeline *Pipeline
	rooms    RoomStore

	maxMessageSize int64
}

// NewClient creates a new Client with a fresh connection ID
func NewClient(conn *websocket.Conn, identity domain.Identity, tracker *Tracker, pipeline *Pipeline, rooms RoomStore, maxMessageSize int64) *Client {
	return &Client{
		ID:             uuid.New().String(),
		Identity:       identity,
		conn:           conn,
		send:           make(chan []byte, 256),
		done:           make(chan struct{}),
		tracker:        tracker,
		pipeline:       pipeline,
		rooms:          rooms,
		maxMessageSize: maxMessageSize,
	}
}

// ReadPump pumps events from the websocket connection through the dispatch
// loop. Events from one connection are processed strictly in delivery order.
// On exit it runs presence teardown while the room membership is still
// enumerable, then lets the remaining members know.
func (c *Client) ReadPump() {
	defer func() {
		if vacated := c.tracker.Leave(c); vacated != "" {
			c.tracker.BroadcastMembers(vacated)
		}
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var event domain.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		switch event.Type {
		case domain.EventTypeJoinRoom:
			c.handleJoinRoom(event.Payload)
		case domain.EventTypeSendMessage:
			c.handleSendMessage(event.Payload)
		}
	}
}

// handleJoinRoom vacates the client's current room, joins the requested one,
// broadcasts membership for both, and pushes the decrypted room history to
// the joining client.
func (c *Client) handleJoinRoom(payload json.RawMessage) {
	var req domain.JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		c.sendError("invalid join-room payload")
		return
	}

	if _, err := c.rooms.FindByID(req.RoomID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.sendError("room not found")
		} else {
			log.Printf("room lookup failed (room %s): %v", req.RoomID, err)
			c.sendError("room unavailable")
		}
		return
	}

	vacated := c.tracker.Join(c, req.RoomID)
	c.tracker.BroadcastMembers(req.RoomID)
	if vacated != "" && vacated != req.RoomID {
		c.tracker.BroadcastMembers(vacated)
	}

	history, err := c.pipeline.History(context.Background(), req.RoomID)
	if err != nil {
		log.Printf("history read failed (room %s): %v", req.RoomID, err)
		return
	}
	for _, msg := range history {
		event, err := domain.NewEvent(domain.EventTypeReceiveMessage, msg)
		if err != nil {
			continue
		}
		c.Send(event)
	}
}

// handleSendMessage runs one message through the pipeline. Persistence
// failures are logged server-side only; the sender gets no signal.
func (c *Client) handleSendMessage(payload json.RawMessage) {
	var req domain.SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" || req.Text == "" {
		c.sendError("invalid send-message payload")
		return
	}

	_ = c.pipeline.Send(context.Background(), c, req.RoomID, req.Text)
}

// WritePump pumps queued events to the websocket connection and keeps the
// peer alive with periodic pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued messages into the current frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send enqueues an event for delivery to this connection. Drops the event if
// the connection is gone or its buffer is full.
func (c *Client) Send(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		// Buffer full, slow consumer
	}
}

func (c *Client) sendError(message string) {
	event, err := domain.NewEvent(domain.EventTypeError, domain.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.Send(event)
}
