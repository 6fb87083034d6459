package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidtask/internal/model"
	"github.com/dukerupert/kidtask/internal/websocket"
	"github.com/dukerupert/kidtask/internal/workflow"
)

type UserHandler struct {
	engine *workflow.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewUserHandler(engine *workflow.Engine, hub *websocket.Hub, logger *slog.Logger) *UserHandler {
	return &UserHandler{engine: engine, hub: hub, logger: logger}
}

func (h *UserHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// userView is the outward shape of a user record; the stored credential
// hash never leaves the process.
type userView struct {
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
	TotalPoints *int       `json:"total_points,omitempty"`
	Level       *int       `json:"level,omitempty"`
}

func viewOf(u model.User) userView {
	v := userView{UserID: u.UserID, Email: u.Email, Role: u.Role}
	if u.IsChild() {
		v.TotalPoints = &u.Child.TotalPoints
		v.Level = &u.Child.Level
	}
	return v
}

func viewsOf(users []model.User) []userView {
	views := []userView{}
	for _, u := range users {
		views = append(views, viewOf(u))
	}
	return views
}

type createUserRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	user, err := h.engine.CreateUser(req.Email, req.Password, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("user", "created", user.UserID, nil))

	writeJSON(w, http.StatusCreated, viewOf(user))
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.engine.ListUsers()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(users))
}

// ListChildren serves the progress view: every child with points and level.
func (h *UserHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.engine.ListChildren()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(children))
}

// Summary serves the dashboard aggregates.
func (h *UserHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Summarize()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
