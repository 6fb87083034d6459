package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/kidtask/internal/apperr"
)

type WishStatus string

const (
	WishPending  WishStatus = "pending"
	WishApproved WishStatus = "approved"
	WishRejected WishStatus = "rejected"
)

var wishTransitions = map[WishStatus][]WishStatus{
	WishPending: {WishApproved, WishRejected},
}

// Wish is a reward a child asks for. Cost and RequiredLevel are
// informational: approval never debits points (legacy behavior, kept).
type Wish struct {
	WishID        string     `json:"wish_id"`
	Name          string     `json:"name"`
	Cost          int        `json:"cost"`
	Status        WishStatus `json:"status"`
	RequestedByID string     `json:"requested_by_id"`
	ApprovedByID  string     `json:"approved_by_id,omitempty"`
	RequiredLevel int        `json:"required_level"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewWish creates a pending wish requested by the given child.
func NewWish(name string, cost int, requestedByID string, requiredLevel int) (Wish, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Wish{}, apperr.InvalidArgument("name is required")
	}
	if cost < 0 {
		return Wish{}, apperr.InvalidArgument("cost must be >= 0, got %d", cost)
	}
	if requestedByID == "" {
		return Wish{}, apperr.InvalidArgument("requested_by_id is required")
	}
	if requiredLevel < 0 {
		return Wish{}, apperr.InvalidArgument("required_level must be >= 0, got %d", requiredLevel)
	}

	now := time.Now().UTC()
	return Wish{
		WishID:        uuid.NewString(),
		Name:          name,
		Cost:          cost,
		Status:        WishPending,
		RequestedByID: requestedByID,
		RequiredLevel: requiredLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Transition moves the wish to the target status, failing InvalidState
// for anything outside the transition table.
func (w *Wish) Transition(to WishStatus) error {
	for _, next := range wishTransitions[w.Status] {
		if next == to {
			w.Status = to
			w.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperr.InvalidState("wish %s: cannot go %s -> %s", w.WishID, w.Status, to)
}
