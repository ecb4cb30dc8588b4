package ws

import (
	"context"
	"fmt"
	"log"

	"github.com/example/sealchat/internal/cipher"
	"github.com/example/sealchat/internal/domain"
	"github.com/example/sealchat/internal/storage"
)

// MessageStore is the persistence collaborator consumed by the pipeline.
type MessageStore interface {
	Create(ctx context.Context, ciphertext, userID, username, roomID string) (*storage.Message, error)
	ListByRoom(ctx context.Context, roomID string) ([]*storage.Message, error)
}

// Pipeline carries each outgoing message through encrypt -> persist ->
// broadcast, and decrypts history on the way back out. Only ciphertext ever
// reaches the store; only plaintext ever reaches a connection.
type Pipeline struct {
	box      *cipher.Box
	messages MessageStore
	tracker  *Tracker
}

// NewPipeline creates a message pipeline
func NewPipeline(box *cipher.Box, messages MessageStore, tracker *Tracker) *Pipeline {
	return &Pipeline{
		box:      box,
		messages: messages,
		tracker:  tracker,
	}
}

// Send encrypts text, persists it under the sender's bound identity, and on
// success broadcasts the plaintext with the persisted metadata to every
// connection currently in roomID. A persistence failure aborts the send:
// nothing is broadcast and the sender is not notified.
func (p *Pipeline) Send(ctx context.Context, sender *Client, roomID, text string) error {
	ciphertext := p.box.Encrypt(text)

	record, err := p.messages.Create(ctx, ciphertext, sender.Identity.UserID, sender.Identity.Username, roomID)
	if err != nil {
		log.Printf("message persist failed (room %s, user %s): %v", roomID, sender.Identity.UserID, err)
		return fmt.Errorf("persist message: %w", err)
	}

	event, err := domain.NewEvent(domain.EventTypeReceiveMessage, domain.ReceiveMessagePayload{
		ID:        record.ID,
		UserID:    record.UserID,
		Username:  record.Username,
		Text:      text,
		RoomID:    roomID,
		CreatedAt: record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}

	for _, c := range p.tracker.Clients(roomID) {
		c.Send(event)
	}
	return nil
}

// History returns all messages for roomID in creation order, decrypted. A
// record that fails to decrypt comes back with its raw stored string so one
// bad row never blocks the rest of the read.
func (p *Pipeline) History(ctx context.Context, roomID string) ([]domain.ReceiveMessagePayload, error) {
	records, err := p.messages.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	history := make([]domain.ReceiveMessagePayload, 0, len(records))
	for _, r := range records {
		history = append(history, domain.ReceiveMessagePayload{
			ID:        r.ID,
			UserID:    r.UserID,
			Username:  r.Username,
			Text:      p.box.Decrypt(r.Ciphertext),
			RoomID:    r.RoomID,
			CreatedAt: r.CreatedAt,
		})
	}
	return history, nil
}
