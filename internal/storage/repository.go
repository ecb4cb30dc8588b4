package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a uniqueness constraint is violated.
var ErrDuplicate = errors.New("record already exists")

// UserRepository provides access to user storage.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create saves a new user.
func (r *UserRepository) Create(username, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// FindByUsername retrieves a user by username.
func (r *UserRepository) FindByUsername(username string) (*User, error) {
	var user User
	if err := r.db.First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// RoomRepository provides access to room storage.
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create saves a new room. passwordHash may be empty for open rooms.
func (r *RoomRepository) Create(name, passwordHash string) (*Room, error) {
	room := &Room{
		ID:           uuid.New().String(),
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if err := r.db.Create(room).Error; err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// FindByID retrieves a room by its ID.
func (r *RoomRepository) FindByID(id string) (*Room, error) {
	var room Room
	if err := r.db.First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// FindAll retrieves all rooms.
func (r *RoomRepository) FindAll() ([]*Room, error) {
	var rooms []*Room
	if err := r.db.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to find rooms: %w", err)
	}
	return rooms, nil
}

// MessageRepository provides access to message storage.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists an encrypted message and returns the stored record.
// Username is denormalized onto the record so history reads need no join.
func (r *MessageRepository) Create(ctx context.Context, ciphertext, userID, username, roomID string) (*Message, error) {
	msg := &Message{
		ID:         uuid.New().String(),
		Ciphertext: ciphertext,
		UserID:     userID,
		Username:   username,
		RoomID:     roomID,
		CreatedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// ListByRoom retrieves all messages for a room ordered by creation time.
func (r *MessageRepository) ListByRoom(ctx context.Context, roomID string) ([]*Message, error) {
	var messages []*Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
