package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the operator-facing status/control HTTP API, exposing
// /api/v1/status, /health, /api/v1/override/{command}, and a
// websocket feed of block/bundle events, matching SPEC_FULL.md's ambient
// HTTP/control surface.
type Server struct {
	port        int
	server      *http.Server
	handlers    *Handlers
	authService *AuthService
	rateLimiter *RateLimiter
	websockets  *WebSocketServer
	log         *zap.Logger
}

// NewServer builds a Server around a running strategy loop.
func NewServer(port int, apiKey string, status StatusProvider, control Controller, log *zap.Logger) (*Server, string) {
	if log == nil {
		log = zap.NewNop()
	}
	authService, generatedKey := NewAuthService(apiKey)
	rateLimiter := NewRateLimiter()
	websockets := NewWebSocketServer()
	handlers := NewHandlers(status, control, websockets)

	s := &Server{
		port:        port,
		handlers:    handlers,
		authService: authService,
		rateLimiter: rateLimiter,
		websockets:  websockets,
		log:         log,
	}
	s.setupServer()
	return s, generatedKey
}

// Websockets exposes the hub so callers can push block/bundle events to
// connected operators. The engine's own strategy loop pushes none.
func (s *Server) Websockets() *WebSocketServer {
	return s.websockets
}

// Start starts the HTTP and WebSocket servers.
func (s *Server) Start(ctx context.Context) error {
	if err := s.websockets.Start(ctx); err != nil {
		return fmt.Errorf("start websocket hub: %w", err)
	}

	go s.rateLimiterCleanup(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("api server error", zap.Error(err))
		}
	}()

	s.log.Info("api server started", zap.Int("port", s.port))
	return nil
}

// Stop gracefully shuts the HTTP and WebSocket servers down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.websockets.Stop(ctx); err != nil {
		s.log.Warn("websocket shutdown error", zap.Error(err))
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}

func (s *Server) setupServer() {
	router := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	router.Use(s.loggingMiddleware)
	router.Use(s.rateLimiter.RateLimitMiddleware)

	router.HandleFunc("/health", HealthHandler).Methods("GET")
	router.HandleFunc("/ws", s.websockets.HandleWebSocket)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(s.authService.AuthMiddleware)
	apiRouter.HandleFunc("/status", s.handlers.GetSystemStatus).Methods("GET")
	apiRouter.HandleFunc("/override/{command}", s.handlers.HandleOverride).Methods("POST")

	handler := c.Handler(router)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.log.Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.Int("status", wrapper.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) rateLimiterCleanup(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.CleanupExpiredClients()
		}
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
