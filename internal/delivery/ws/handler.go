package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/example/sealchat/internal/domain"
)

// Verifier validates an opaque signed credential and returns the identity it
// asserts.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// Handler gates every websocket connection attempt. The credential is
// verified before the upgrade: an unauthenticated attempt is refused with a
// generic 401 and never reaches the event loop, so no presence or pipeline
// state is created for it.
type Handler struct {
	verifier       Verifier
	tracker        *Tracker
	pipeline       *Pipeline
	rooms          RoomStore
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// NewHandler creates the websocket gatekeeper
func NewHandler(verifier Verifier, tracker *Tracker, pipeline *Pipeline, rooms RoomStore, allowedOrigins []string, maxMessageSize int64) *Handler {
	return &Handler{
		verifier:       verifier,
		tracker:        tracker,
		pipeline:       pipeline,
		rooms:          rooms,
		maxMessageSize: maxMessageSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return isOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
}

// ServeHTTP authenticates and upgrades a connection attempt.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		// Generic signal regardless of why verification failed.
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}

	client := NewClient(conn, identity, h.tracker, h.pipeline, h.rooms, h.maxMessageSize)

	go client.WritePump()
	go client.ReadPump()
}

// extractToken pulls the credential from the upgrade request's out-of-band
// metadata: the Authorization header, or a token query parameter for browser
// clients that cannot set headers on websocket dials.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// isOriginAllowed checks if the origin is in the allowed list. An empty
// origin (same-origin or non-browser client) is allowed.
func isOriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || origin == a {
			return true
		}
	}
	return false
}
