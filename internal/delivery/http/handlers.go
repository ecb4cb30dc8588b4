package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/example/sealchat/internal/auth"
	"github.com/example/sealchat/internal/domain"
	"github.com/example/sealchat/internal/storage"
)

type contextKey string

// identityKey is the request-context key holding the verified identity
const identityKey contextKey = "identity"

// Verifier validates a signed credential from the Authorization header.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// TokenIssuer signs identity tokens after a successful login.
type TokenIssuer interface {
	Generate(userID, username string) (string, error)
}

// Handler serves the thin request/response glue around the session core:
// account registration, login, and room CRUD.
type Handler struct {
	users    *storage.UserRepository
	rooms    *storage.RoomRepository
	issuer   TokenIssuer
	verifier Verifier
	hasher   *auth.PasswordHasher
}

// NewHandler creates the HTTP API handler
func NewHandler(users *storage.UserRepository, rooms *storage.RoomRepository, issuer TokenIssuer, verifier Verifier, hasher *auth.PasswordHasher) *Handler {
	return &Handler{
		users:    users,
		rooms:    rooms,
		issuer:   issuer,
		verifier: verifier,
		hasher:   hasher,
	}
}

// sanitizeName cleans and bounds user-supplied names
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	if utf8.RuneCountInString(name) > 50 {
		runes := []rune(name)
		name = string(runes[:50])
	}

	// Remove HTML tags to prevent XSS
	htmlTagRegex := regexp.MustCompile(`<[^>]*>`)
	name = htmlTagRegex.ReplaceAllString(name, "")

	// Remove control characters
	controlCharRegex := regexp.MustCompile(`[\x00-\x1F\x7F]`)
	name = controlCharRegex.ReplaceAllString(name, "")

	return strings.TrimSpace(name)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// RequireAuth wraps a handler with bearer-token verification and stores the
// identity in the request context.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := h.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// HandleRegister creates an account and returns a signed identity token
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = sanitizeName(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user, err := h.users.Create(req.Username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := h.issuer.Generate(user.ID, user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"token":    token,
		"userId":   user.ID,
		"username": user.Username,
	})
}

// HandleLogin verifies credentials and returns a signed identity token
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.FindByUsername(req.Username)
	if err != nil || !h.hasher.Verify(req.Password, user.PasswordHash) {
		// Same answer whether the user is unknown or the password is wrong
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issuer.Generate(user.ID, user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"userId":   user.ID,
		"username": user.Username,
	})
}

// HandleCreateRoom creates a room, optionally protected by a password
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		req.Name = "Room Chat"
	}

	var hash string
	if req.Password != "" {
		var err error
		hash, err = h.hasher.Hash(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "room creation failed")
			return
		}
	}

	room, err := h.rooms.Create(req.Name, hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "room creation failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        room.ID,
		"name":      room.Name,
		"protected": room.PasswordHash != "",
	})
}

// HandleListRooms lists all rooms. Password hashes never leave the server.
func (h *Handler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rooms, err := h.rooms.FindAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	out := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, map[string]any{
			"id":        room.ID,
			"name":      room.Name,
			"protected": room.PasswordHash != "",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleJoinRoom checks a room's password, if it has one, before the client
// connects and joins over the websocket
func (h *Handler) HandleJoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		RoomID   string `json:"roomId"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	room, err := h.rooms.FindByID(req.RoomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "room lookup failed")
		return
	}

	if room.PasswordHash != "" && !h.hasher.Verify(req.Password, room.PasswordHash) {
		writeError(w, http.StatusForbidden, "wrong room password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":   room.ID,
		"name": room.Name,
	})
}
