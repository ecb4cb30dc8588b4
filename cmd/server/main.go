package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/sealchat/internal/auth"
	"github.com/example/sealchat/internal/cipher"
	"github.com/example/sealchat/internal/config"
	httpHandler "github.com/example/sealchat/internal/delivery/http"
	"github.com/example/sealchat/internal/delivery/ws"
	"github.com/example/sealchat/internal/middleware"
	"github.com/example/sealchat/internal/storage"
)

func main() {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	cfg := config.LoadFromEnv()

	// Configuring Logging
	if cfg.LogLevel == "silent" || cfg.LogLevel == "off" {
		log.SetOutput(io.Discard)
	}

	// Persistence
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	users := storage.NewUserRepository(db)
	rooms := storage.NewRoomRepository(db)
	messages := storage.NewMessageRepository(db)

	// Session core
	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	hasher := auth.NewPasswordHasher()
	box := cipher.New(cfg.MessageSecret)
	tracker := ws.NewTracker()
	pipeline := ws.NewPipeline(box, messages, tracker)

	wsHandler := ws.NewHandler(tokens, tracker, pipeline, rooms, cfg.AllowedOrigins, int64(cfg.MaxMessageSize))
	apiHandler := httpHandler.NewHandler(users, rooms, tokens, tokens, hasher)

	// Rate limiters
	apiLimiter := middleware.NewIPRateLimiter(cfg.RateLimitAPI, int(cfg.RateLimitAPI)*2)
	wsLimiter := middleware.NewIPRateLimiter(cfg.RateLimitWS, int(cfg.RateLimitWS)*2)

	// Setup routes
	mux := http.NewServeMux()

	// WebSocket route with rate limiting
	mux.Handle("/ws", middleware.RateLimit(wsLimiter, wsHandler))

	// API routes with rate limiting
	mux.HandleFunc("/api/register", middleware.RateLimitFunc(apiLimiter, apiHandler.HandleRegister))
	mux.HandleFunc("/api/login", middleware.RateLimitFunc(apiLimiter, apiHandler.HandleLogin))
	mux.HandleFunc("/api/rooms", middleware.RateLimitFunc(apiLimiter, apiHandler.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			apiHandler.HandleCreateRoom(w, r)
		default:
			apiHandler.HandleListRooms(w, r)
		}
	})))
	mux.HandleFunc("/api/rooms/join", middleware.RateLimitFunc(apiLimiter, apiHandler.RequireAuth(apiHandler.HandleJoinRoom)))

	// Apply security headers middleware to all requests
	securedHandler := middleware.SecurityHeaders(mux)

	// Create server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      securedHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("sealchat running at http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
