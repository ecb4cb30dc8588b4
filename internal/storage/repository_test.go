package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	user, err := repo.Create("alice", "hashed-password")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)

	found, err := repo.FindByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "hashed-password", found.PasswordHash)

	_, err = repo.FindByUsername("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	_, err := repo.Create("alice", "hash1")
	require.NoError(t, err)

	_, err = repo.Create("alice", "hash2")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRoomRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)

	room, err := repo.Create("general", "")
	require.NoError(t, err)

	found, err := repo.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", found.Name)
	assert.Empty(t, found.PasswordHash)

	_, err = repo.FindByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	rooms, err := repo.FindAll()
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestMessageRepository_ListByRoomOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	// Insert out of order with explicit timestamps to pin the ordering.
	older := &Message{ID: "m1", Ciphertext: "c1", UserID: "u1", RoomID: "room-a", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Message{ID: "m2", Ciphertext: "c2", UserID: "u1", RoomID: "room-a", CreatedAt: time.Now()}
	require.NoError(t, db.Create(newer).Error)
	require.NoError(t, db.Create(older).Error)

	// A message in another room must not leak into the listing.
	other := &Message{ID: "m3", Ciphertext: "c3", UserID: "u2", RoomID: "room-b", CreatedAt: time.Now()}
	require.NoError(t, db.Create(other).Error)

	messages, err := repo.ListByRoom(ctx, "room-a")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
}

func TestMessageRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)

	msg, err := repo.Create(context.Background(), "deadbeef:cafe:0102", "user-1", "alice", "room-1")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	var found Message
	require.NoError(t, db.First(&found, "id = ?", msg.ID).Error)
	assert.Equal(t, "deadbeef:cafe:0102", found.Ciphertext)
}
