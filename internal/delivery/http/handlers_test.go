package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/sealchat/internal/auth"
	"github.com/example/sealchat/internal/storage"
)

func setupHandler(t *testing.T) (*Handler, *auth.TokenManager) {
	t.Helper()

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := NewHandler(
		storage.NewUserRepository(db),
		storage.NewRoomRepository(db),
		tokens,
		tokens,
		auth.NewPasswordHasher(),
	)
	return h, tokens
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHandleRegister(t *testing.T) {
	h, _ := setupHandler(t)

	rec := postJSON(t, h.HandleRegister, "/api/register", map[string]string{
		"username": "alice",
		"password": "hunter22",
	}, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["token"] == "" || body["userId"] == "" {
		t.Error("Expected token and userId in response")
	}
	if body["username"] != "alice" {
		t.Errorf("Expected username alice, got %v", body["username"])
	}
}

func TestHandleRegister_DuplicateUsername(t *testing.T) {
	h, _ := setupHandler(t)

	payload := map[string]string{"username": "alice", "password": "hunter22"}
	postJSON(t, h.HandleRegister, "/api/register", payload, "")
	rec := postJSON(t, h.HandleRegister, "/api/register", payload, "")

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate username, got %d", rec.Code)
	}
}

func TestHandleRegister_StripsMarkup(t *testing.T) {
	h, _ := setupHandler(t)

	rec := postJSON(t, h.HandleRegister, "/api/register", map[string]string{
		"username": "  <script>alert(1)</script>mallory  ",
		"password": "hunter22",
	}, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["username"]; got != "mallory" {
		t.Errorf("Expected sanitized username mallory, got %v", got)
	}
}

func TestHandleLogin(t *testing.T) {
	h, tokens := setupHandler(t)
	postJSON(t, h.HandleRegister, "/api/register", map[string]string{
		"username": "alice", "password": "hunter22",
	}, "")

	t.Run("valid credentials", func(t *testing.T) {
		rec := postJSON(t, h.HandleLogin, "/api/login", map[string]string{
			"username": "alice", "password": "hunter22",
		}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		token, _ := decodeBody(t, rec)["token"].(string)
		identity, err := tokens.Verify(token)
		if err != nil {
			t.Fatalf("Returned token does not verify: %v", err)
		}
		if identity.Username != "alice" {
			t.Errorf("Expected token for alice, got %s", identity.Username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := postJSON(t, h.HandleLogin, "/api/login", map[string]string{
			"username": "alice", "password": "wrong",
		}, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := postJSON(t, h.HandleLogin, "/api/login", map[string]string{
			"username": "nobody", "password": "hunter22",
		}, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})
}

func TestHandleCreateRoomAndJoin(t *testing.T) {
	h, _ := setupHandler(t)

	rec := postJSON(t, h.HandleCreateRoom, "/api/rooms", map[string]string{
		"name": "secret lair", "password": "letmein",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	roomID, _ := body["id"].(string)
	if roomID == "" {
		t.Fatal("Expected room id")
	}
	if body["protected"] != true {
		t.Error("Expected room to be marked protected")
	}

	t.Run("correct password", func(t *testing.T) {
		rec := postJSON(t, h.HandleJoinRoom, "/api/rooms/join", map[string]string{
			"roomId": roomID, "password": "letmein",
		}, "")
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := postJSON(t, h.HandleJoinRoom, "/api/rooms/join", map[string]string{
			"roomId": roomID, "password": "wrong",
		}, "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rec.Code)
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		rec := postJSON(t, h.HandleJoinRoom, "/api/rooms/join", map[string]string{
			"roomId": "missing", "password": "",
		}, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})
}

func TestHandleListRooms_HidesPasswordHashes(t *testing.T) {
	h, _ := setupHandler(t)
	postJSON(t, h.HandleCreateRoom, "/api/rooms", map[string]string{
		"name": "open", "password": "",
	}, "")
	postJSON(t, h.HandleCreateRoom, "/api/rooms", map[string]string{
		"name": "locked", "password": "letmein",
	}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	h.HandleListRooms(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hash") || strings.Contains(rec.Body.String(), "$2a$") {
		t.Error("Password hash leaked in room listing")
	}

	var rooms []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&rooms); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(rooms))
	}
}

func TestRequireAuth(t *testing.T) {
	h, tokens := setupHandler(t)

	called := false
	protected := h.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing header", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		rec := httptest.NewRecorder()
		protected(rec, req)
		if rec.Code != http.StatusUnauthorized || called {
			t.Errorf("Expected 401 without handler call, got %d called=%v", rec.Code, called)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		protected(rec, req)
		if rec.Code != http.StatusUnauthorized || called {
			t.Errorf("Expected 401 without handler call, got %d called=%v", rec.Code, called)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		called = false
		token, err := tokens.Generate("u-alice", "alice")
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected(rec, req)
		if rec.Code != http.StatusOK || !called {
			t.Errorf("Expected handler to run, got %d called=%v", rec.Code, called)
		}
	})
}
