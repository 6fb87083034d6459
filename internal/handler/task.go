package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kidtask/internal/model"
	"github.com/dukerupert/kidtask/internal/websocket"
	"github.com/dukerupert/kidtask/internal/workflow"
)

type TaskHandler struct {
	engine *workflow.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewTaskHandler(engine *workflow.Engine, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{engine: engine, hub: hub, logger: logger}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type assignTaskRequest struct {
	CreatorID   string `json:"creator_id"`
	ChildID     string `json:"child_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"` // YYYY-MM-DD, empty = no deadline
	Points      int    `json:"points"`
}

// parseDueDate accepts the legacy YYYY-MM-DD form or full RFC 3339.
func parseDueDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return &d, true
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return &d, true
	}
	return nil, false
}

func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	due, ok := parseDueDate(req.DueDate)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "due_date must be YYYY-MM-DD"})
		return
	}

	task, err := h.engine.AssignTask(req.CreatorID, req.ChildID, req.Title, req.Description, due, req.Points)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "assigned", task.TaskID, nil))

	writeJSON(w, http.StatusCreated, task)
}

type assignClassRequest struct {
	CreatorID   string `json:"creator_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Points      int    `json:"points"`
}

func (h *TaskHandler) AssignClass(w http.ResponseWriter, r *http.Request) {
	var req assignClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	due, ok := parseDueDate(req.DueDate)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "due_date must be YYYY-MM-DD"})
		return
	}

	created, failed, err := h.engine.AssignToClass(req.CreatorID, req.Title, req.Description, due, req.Points)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	for _, t := range created {
		h.broadcast(websocket.NewMessage("task", "assigned", t.TaskID, nil))
	}

	if created == nil {
		created = []model.Task{}
	}
	if failed == nil {
		failed = []workflow.ChildError{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created": created,
		"failed":  failed,
	})
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := workflow.TaskFilter{
		AssignedToID: q.Get("assigned_to"),
		Status:       model.TaskStatus(q.Get("status")),
	}
	if before, ok := parseDueDate(q.Get("due_before")); ok {
		filter.DueBefore = before
	}
	if after, ok := parseDueDate(q.Get("due_after")); ok {
		filter.DueAfter = after
	}

	tasks, err := h.engine.ListTasks(filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildID string `json:"child_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	task, err := h.engine.CompleteTask(req.ChildID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "completed", task.TaskID, nil))

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApproverID string `json:"approver_id"`
		Rating     int    `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	task, child, err := h.engine.ApproveTask(req.ApproverID, r.PathValue("id"), req.Rating)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "approved", task.TaskID, map[string]any{
		"child_id": child.UserID,
		"points":   task.Points,
	}))

	writeJSON(w, http.StatusOK, map[string]any{
		"task":  task,
		"child": viewOf(child),
	})
}

func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApproverID string `json:"approver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	task, err := h.engine.RejectTask(req.ApproverID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "rejected", task.TaskID, nil))

	writeJSON(w, http.StatusOK, task)
}
