package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/kidtask/internal/apperr"
)

type Role string

const (
	RoleChild   Role = "child"
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleChild, RoleParent, RoleTeacher:
		return true
	}
	return false
}

// CanApprove reports whether the role may approve or reject tasks and wishes.
func (r Role) CanApprove() bool {
	return r == RoleParent || r == RoleTeacher
}

// ChildProfile carries the point ledger fields that only child users have.
type ChildProfile struct {
	TotalPoints int `json:"total_points"`
	Level       int `json:"level"`
}

// User is a single account record. A child user carries a non-nil Child
// payload; parents and teachers carry none. This replaces the legacy
// User/Child subclass split so a user has exactly one identity.
type User struct {
	UserID       string        `json:"user_id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"password_hash"`
	Role         Role          `json:"role"`
	Child        *ChildProfile `json:"child,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewUser creates a parent, teacher, or child user. Child users start at
// zero points, level 1.
func NewUser(email, passwordHash string, role Role) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, apperr.InvalidArgument("email is required")
	}
	if !ValidRole(role) {
		return User{}, apperr.InvalidArgument("unknown role %q", role)
	}

	now := time.Now().UTC()
	u := User{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if role == RoleChild {
		u.Child = &ChildProfile{TotalPoints: 0, Level: 1}
	}
	return u, nil
}

// IsChild reports whether the user is a child with a ledger payload.
func (u User) IsChild() bool {
	return u.Role == RoleChild && u.Child != nil
}
