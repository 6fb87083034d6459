package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kidtask/internal/handler"
	"github.com/dukerupert/kidtask/internal/middleware"
	"github.com/dukerupert/kidtask/internal/store"
	ws "github.com/dukerupert/kidtask/internal/websocket"
	"github.com/dukerupert/kidtask/internal/workflow"
)

type Server struct {
	engine      *workflow.Engine
	hub         *ws.Hub
	taskH       *handler.TaskHandler
	wishH       *handler.WishHandler
	userH       *handler.UserHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(st *store.Store, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	engine := workflow.New(st, logger.With("component", "workflow"))

	return &Server{
		engine:      engine,
		hub:         hub,
		taskH:       handler.NewTaskHandler(engine, hub, logger.With("component", "task")),
		wishH:       handler.NewWishHandler(engine, hub, logger.With("component", "wish")),
		userH:       handler.NewUserHandler(engine, hub, logger.With("component", "user")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Engine exposes the workflow engine for embedding callers.
func (s *Server) Engine() *workflow.Engine {
	return s.engine
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Task workflow
	mux.Handle("POST /api/tasks", s.limited(s.taskH.Assign))
	mux.Handle("POST /api/tasks/class", s.limited(s.taskH.AssignClass))
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.Handle("POST /api/tasks/{id}/complete", s.limited(s.taskH.Complete))
	mux.Handle("POST /api/tasks/{id}/approve", s.limited(s.taskH.Approve))
	mux.Handle("POST /api/tasks/{id}/reject", s.limited(s.taskH.Reject))

	// Wish workflow
	mux.Handle("POST /api/wishes", s.limited(s.wishH.Request))
	mux.HandleFunc("GET /api/wishes", s.wishH.List)
	mux.Handle("POST /api/wishes/{id}/decide", s.limited(s.wishH.Decide))

	// Users and derived views
	mux.Handle("POST /api/users", s.limited(s.userH.Create))
	mux.HandleFunc("GET /api/users", s.userH.List)
	mux.HandleFunc("GET /api/children", s.userH.ListChildren)
	mux.HandleFunc("GET /api/summary", s.userH.Summary)

	// WebSocket change feed
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// limited wraps a mutating handler with per-IP rate limiting.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 60, time.Minute)(h)
}
