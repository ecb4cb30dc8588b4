package domain

import (
	"encoding/json"
	"time"
)

// EventType defines the type of event exchanged over a websocket connection
type EventType string

const (
	// Client -> server
	EventTypeJoinRoom    EventType = "join-room"
	EventTypeSendMessage EventType = "send-message"

	// Server -> client
	EventTypeRoomMembers    EventType = "room-members"
	EventTypeReceiveMessage EventType = "receive-message"
	EventTypeError          EventType = "error"
)

// Event is the wire envelope for every websocket frame, in both directions.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent wraps a payload into an Event envelope
func NewEvent(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Payload: data}, nil
}

// JoinRoomPayload is the payload for join-room events
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload is the payload for send-message events.
// Sender identity is taken from the connection, never from this payload.
type SendMessagePayload struct {
	Text   string `json:"text"`
	RoomID string `json:"roomId"`
}

// Member is one entry in a room-members payload
type Member struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomMembersPayload lists the live members of a room, deduplicated by userId
type RoomMembersPayload struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

// ReceiveMessagePayload is the payload for receive-message events.
// Text is plaintext; ciphertext never leaves the store.
type ReceiveMessagePayload struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorPayload is the payload for error events
type ErrorPayload struct {
	Message string `json:"message"`
}
