package ws

import (
	"sort"
	"sync"

	"github.com/example/sealchat/internal/domain"
)

// Tracker is the in-memory presence registry: which identities are live in
// which room. It is process-local, never persisted, and rebuilt from zero on
// restart. A connection belongs to at most one room at a time.
type Tracker struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client // roomID -> connID -> client
	byConn map[string]string             // connID -> current roomID
}

// NewTracker creates an empty presence tracker
func NewTracker() *Tracker {
	return &Tracker{
		rooms:  make(map[string]map[string]*Client),
		byConn: make(map[string]string),
	}
}

// Join moves the client into roomID, vacating whatever room it was in
// before. It returns the vacated room ID, or "" if the client was not in a
// room. Rooms whose membership drops to zero are deleted outright.
func (t *Tracker) Join(c *Client, roomID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	vacated := t.removeLocked(c)

	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		t.rooms[roomID] = room
	}
	room[c.ID] = c
	t.byConn[c.ID] = roomID

	return vacated
}

// Leave removes the client from its current room and returns the room ID it
// was in, or "" if it was not in any room. Called from connection teardown,
// while the membership is still enumerable.
func (t *Tracker) Leave(c *Client) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(c)
}

// removeLocked drops the client's presence entry and garbage-collects the
// room if it became empty. Caller holds t.mu.
func (t *Tracker) removeLocked(c *Client) string {
	roomID, ok := t.byConn[c.ID]
	if !ok {
		return ""
	}
	delete(t.byConn, c.ID)

	room, ok := t.rooms[roomID]
	if !ok {
		return ""
	}
	delete(room, c.ID)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	return roomID
}

// Members collapses a room's connection-keyed presence map into a user-keyed
// member list, so an identity holding several connections (multiple tabs)
// appears exactly once. The list is sorted by username for stable output.
func (t *Tracker) Members(roomID string) []domain.Member {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byUser := make(map[string]string)
	for _, c := range t.rooms[roomID] {
		byUser[c.Identity.UserID] = c.Identity.Username
	}

	members := make([]domain.Member, 0, len(byUser))
	for userID, username := range byUser {
		members = append(members, domain.Member{UserID: userID, Username: username})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Username < members[j].Username
	})
	return members
}

// Clients returns a snapshot of the connections currently in roomID
func (t *Tracker) Clients(roomID string) []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()

	clients := make([]*Client, 0, len(t.rooms[roomID]))
	for _, c := range t.rooms[roomID] {
		clients = append(clients, c)
	}
	return clients
}

// Room returns the room the client is currently in, or "" if none
func (t *Tracker) Room(c *Client) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byConn[c.ID]
}

// RoomCount returns the number of rooms with at least one live connection
func (t *Tracker) RoomCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// BroadcastMembers pushes the deduplicated member list of roomID to every
// connection currently in the room. A no-op for empty (deleted) rooms.
func (t *Tracker) BroadcastMembers(roomID string) {
	members := t.Members(roomID)
	if len(members) == 0 {
		return
	}

	event, err := domain.NewEvent(domain.EventTypeRoomMembers, domain.RoomMembersPayload{
		RoomID:  roomID,
		Members: members,
	})
	if err != nil {
		return
	}

	for _, c := range t.Clients(roomID) {
		c.Send(event)
	}
}
