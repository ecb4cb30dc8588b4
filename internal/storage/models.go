package storage

import "time"

// User is a registered account.
type User struct {
	ID           string    `gorm:"primarykey;size:36" json:"id"`
	Username     string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the table name for User model.
func (User) TableName() string {
	return "users"
}

// Room is a durable broadcast domain. PasswordHash is empty for open rooms.
type Room struct {
	ID           string    `gorm:"primarykey;size:36" json:"id"`
	Name         string    `gorm:"size:50;not null" json:"name"`
	PasswordHash string    `gorm:"size:100" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the table name for Room model.
func (Room) TableName() string {
	return "rooms"
}

// Message is a persisted chat message. Ciphertext is the only form ever
// written; plaintext exists only in flight.
type Message struct {
	ID         string    `gorm:"primarykey;size:36" json:"id"`
	Ciphertext string    `gorm:"not null" json:"-"`
	UserID     string    `gorm:"size:36;index;not null" json:"user_id"`
	Username   string    `gorm:"size:50;not null" json:"username"`
	RoomID     string    `gorm:"size:36;index;not null" json:"room_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}
