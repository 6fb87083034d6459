package workflow

import (
	"time"

	"github.com/dukerupert/kidtask/internal/model"
)

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	AssignedToID string
	Status       model.TaskStatus
	DueBefore    *time.Time
	DueAfter     *time.Time
}

func (f TaskFilter) matches(t model.Task) bool {
	if f.AssignedToID != "" && t.AssignedToID != f.AssignedToID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.DueAfter != nil && (t.DueDate == nil || !t.DueDate.After(*f.DueAfter)) {
		return false
	}
	return true
}

// ListTasks returns tasks matching the filter, in stored order.
func (e *Engine) ListTasks(f TaskFilter) ([]model.Task, error) {
	tasks, err := e.store.LoadTasks()
	if err != nil {
		return nil, err
	}
	out := []model.Task{}
	for _, t := range tasks {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// WishFilter narrows ListWishes. Zero fields match everything.
type WishFilter struct {
	RequestedByID string
	Status        model.WishStatus
}

// ListWishes returns wishes matching the filter, in stored order.
func (e *Engine) ListWishes(f WishFilter) ([]model.Wish, error) {
	wishes, err := e.store.LoadWishes()
	if err != nil {
		return nil, err
	}
	out := []model.Wish{}
	for _, w := range wishes {
		if f.RequestedByID != "" && w.RequestedByID != f.RequestedByID {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// ListUsers returns every user record.
func (e *Engine) ListUsers() ([]model.User, error) {
	return e.store.LoadUsers()
}

// ListChildren returns the child users with their current points and level.
func (e *Engine) ListChildren() ([]model.User, error) {
	users, err := e.store.LoadUsers()
	if err != nil {
		return nil, err
	}
	children := []model.User{}
	for _, u := range users {
		if u.IsChild() {
			children = append(children, u)
		}
	}
	return children, nil
}

// Summary aggregates the dashboard counters the role views show.
type Summary struct {
	TaskCounts    map[model.TaskStatus]int `json:"task_counts"`
	WishCounts    map[model.WishStatus]int `json:"wish_counts"`
	ChildCount    int                      `json:"child_count"`
	AverageRating float64                  `json:"average_rating"` // over rated approved tasks; 0 when none
}

// Summarize derives the aggregate view over all three collections. Pure
// read, no mutation.
func (e *Engine) Summarize() (Summary, error) {
	s := Summary{
		TaskCounts: map[model.TaskStatus]int{},
		WishCounts: map[model.WishStatus]int{},
	}

	tasks, err := e.store.LoadTasks()
	if err != nil {
		return Summary{}, err
	}
	ratingSum, rated := 0, 0
	for _, t := range tasks {
		s.TaskCounts[t.Status]++
		if t.Status == model.TaskApproved && t.Rating > 0 {
			ratingSum += t.Rating
			rated++
		}
	}
	if rated > 0 {
		s.AverageRating = float64(ratingSum) / float64(rated)
	}

	wishes, err := e.store.LoadWishes()
	if err != nil {
		return Summary{}, err
	}
	for _, w := range wishes {
		s.WishCounts[w.Status]++
	}

	users, err := e.store.LoadUsers()
	if err != nil {
		return Summary{}, err
	}
	for _, u := range users {
		if u.IsChild() {
			s.ChildCount++
		}
	}
	return s, nil
}
