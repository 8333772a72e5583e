package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"direct-chat/internal/auth"
	"direct-chat/internal/config"
	"direct-chat/internal/database"
	"direct-chat/internal/handlers"
	"direct-chat/internal/services"
	"direct-chat/internal/websocket"
	"direct-chat/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}

	handler, hub := newHandler(cfg, db)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s (%s storage)", cfg.Server.Port, cfg.Database.Driver)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}
	// Hijacked websockets are not covered by server.Shutdown.
	hub.Shutdown()
	db.Close()
	logger.Info("Server stopped")
}

// newHandler wires services, the websocket hub and routes around db.
func newHandler(cfg *config.Config, db database.Database) (http.Handler, *websocket.Hub) {
	// Initialize services
	authService := auth.NewService(db, cfg)
	registry := websocket.NewRegistry()
	router := websocket.NewRouter(registry)
	messageService := services.NewMessageService(db, db, router)
	userService := services.NewUserService(db, registry)

	// Initialize WebSocket hub
	hub := websocket.NewHub(registry, router, authService, messageService, db, cfg.WebSocket)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	messageHandlers := handlers.NewMessageHandlers(messageService, authService)
	userHandlers := handlers.NewUserHandlers(userService, authService)
	wsHandlers := handlers.NewWebSocketHandlers(hub, cfg.Server.CORSOrigin)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, messageHandlers, userHandlers, wsHandlers)

	return corsMiddleware(cfg.Server.CORSOrigin, mux), hub
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, messageHandlers *handlers.MessageHandlers, userHandlers *handlers.UserHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("POST /api/auth/register", authHandlers.Register)
	mux.HandleFunc("POST /api/auth/login", authHandlers.Login)

	// User routes
	mux.HandleFunc("GET /api/users", userHandlers.ListUsers)

	// Message routes
	mux.HandleFunc("GET /api/messages/{userId}", messageHandlers.History)
	mux.HandleFunc("POST /api/messages", messageHandlers.Send)
	mux.HandleFunc("PUT /api/messages/read/{senderId}", messageHandlers.MarkRead)
	mux.HandleFunc("DELETE /api/messages/{messageId}", messageHandlers.Delete)

	// WebSocket route
	mux.HandleFunc("GET /ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST   /api/auth/register")
	logger.Info("   POST   /api/auth/login")
	logger.Info("   GET    /api/users")
	logger.Info("   GET    /api/messages/{userId}")
	logger.Info("   POST   /api/messages")
	logger.Info("   PUT    /api/messages/read/{senderId}")
	logger.Info("   DELETE /api/messages/{messageId}")
}
