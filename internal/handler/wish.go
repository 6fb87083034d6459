package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidtask/internal/model"
	"github.com/dukerupert/kidtask/internal/websocket"
	"github.com/dukerupert/kidtask/internal/workflow"
)

type WishHandler struct {
	engine *workflow.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewWishHandler(engine *workflow.Engine, hub *websocket.Hub, logger *slog.Logger) *WishHandler {
	return &WishHandler{engine: engine, hub: hub, logger: logger}
}

func (h *WishHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type requestWishRequest struct {
	ChildID       string `json:"child_id"`
	Name          string `json:"name"`
	Cost          int    `json:"cost"`
	RequiredLevel int    `json:"required_level"`
}

func (h *WishHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestWishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	wish, err := h.engine.RequestWish(req.ChildID, req.Name, req.Cost, req.RequiredLevel)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("wish", "requested", wish.WishID, nil))

	writeJSON(w, http.StatusCreated, wish)
}

func (h *WishHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wishes, err := h.engine.ListWishes(workflow.WishFilter{
		RequestedByID: q.Get("requested_by"),
		Status:        model.WishStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wishes)
}

func (h *WishHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApproverID string `json:"approver_id"`
		Approve    bool   `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	wish, err := h.engine.DecideWish(req.ApproverID, r.PathValue("id"), req.Approve)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("wish", string(wish.Status), wish.WishID, nil))

	writeJSON(w, http.StatusOK, wish)
}
