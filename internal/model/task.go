package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/kidtask/internal/apperr"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskApproved  TaskStatus = "approved"
	TaskRejected  TaskStatus = "rejected"
)

// taskTransitions is the legal transition table. Approved and rejected
// have no entries: they are terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:   {TaskCompleted},
	TaskCompleted: {TaskApproved, TaskRejected},
}

type Task struct {
	TaskID       string     `json:"task_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Points       int        `json:"points"`
	Status       TaskStatus `json:"status"`
	AssignedToID string     `json:"assigned_to_id"`
	Rating       int        `json:"rating"` // 0 = unrated, otherwise 1-5 set on approval
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewTask creates a pending task assigned to the given child. A nil
// dueDate means the task has no deadline.
func NewTask(title, description string, dueDate *time.Time, points int, assignedToID string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, apperr.InvalidArgument("title is required")
	}
	if points < 0 {
		return Task{}, apperr.InvalidArgument("points must be >= 0, got %d", points)
	}
	if assignedToID == "" {
		return Task{}, apperr.InvalidArgument("assigned_to_id is required")
	}

	now := time.Now().UTC()
	return Task{
		TaskID:       uuid.NewString(),
		Title:        title,
		Description:  description,
		DueDate:      dueDate,
		Points:       points,
		Status:       TaskPending,
		AssignedToID: assignedToID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Transition moves the task to the target status, failing InvalidState
// for anything outside the transition table.
func (t *Task) Transition(to TaskStatus) error {
	for _, next := range taskTransitions[t.Status] {
		if next == to {
			t.Status = to
			t.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperr.InvalidState("task %s: cannot go %s -> %s", t.TaskID, t.Status, to)
}

// SetRating records an approval rating. Zero stays "unrated".
func (t *Task) SetRating(rating int) error {
	if rating < 1 || rating > 5 {
		return apperr.InvalidArgument("rating must be 1-5, got %d", rating)
	}
	t.Rating = rating
	t.UpdatedAt = time.Now().UTC()
	return nil
}
