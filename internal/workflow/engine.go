// Package workflow is the only writer of the three collections. It
// enforces the task and wish state machines, role gating, and the
// exactly-once point credit on task approval. Every operation validates
// all of its preconditions before staging a single write, so a returned
// error always means no state changed.
package workflow

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/kidtask/internal/apperr"
	"github.com/dukerupert/kidtask/internal/ledger"
	"github.com/dukerupert/kidtask/internal/model"
	"github.com/dukerupert/kidtask/internal/store"
)

// classDueDateOffset is the default deadline for class-wide assignments
// when the assigner supplies none, carried over from the legacy app.
const classDueDateOffset = 72 * time.Hour

type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

func New(st *store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: st, logger: logger}
}

// --- users ---

// CreateUser registers a user. The password is stored as a bcrypt hash;
// it is an opaque credential here, no login flow consumes it.
func (e *Engine) CreateUser(email, password string, role model.Role) (model.User, error) {
	if strings.TrimSpace(password) == "" {
		return model.User{}, apperr.InvalidArgument("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, apperr.InvalidArgument("hash password: %v", err)
	}

	user, err := model.NewUser(email, string(hash), role)
	if err != nil {
		return model.User{}, err
	}

	unlock := e.store.Lock(store.Users)
	defer unlock()

	users, err := e.store.LoadUsers()
	if err != nil {
		return model.User{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, user.Email) {
			return model.User{}, apperr.InvalidArgument("email %s already registered", user.Email)
		}
	}

	users = append(users, user)
	if err := e.store.SaveUsers(users); err != nil {
		return model.User{}, err
	}

	e.logger.Info("user created", "user_id", user.UserID, "role", string(user.Role))
	return user, nil
}

// --- tasks ---

// AssignTask creates a pending task for one child.
func (e *Engine) AssignTask(creatorID, childID, title, description string, dueDate *time.Time, points int) (model.Task, error) {
	task, err := model.NewTask(title, description, dueDate, points, childID)
	if err != nil {
		return model.Task{}, err
	}

	users, err := e.store.LoadUsers()
	if err != nil {
		return model.Task{}, err
	}
	if err := requireApprover(users, creatorID); err != nil {
		return model.Task{}, err
	}
	if _, ok := findChild(users, childID); !ok {
		return model.Task{}, apperr.NotFound("child %s", childID)
	}

	unlock := e.store.Lock(store.Tasks)
	defer unlock()

	tasks, err := e.store.LoadTasks()
	if err != nil {
		return model.Task{}, err
	}
	tasks = append(tasks, task)
	if err := e.store.SaveTasks(tasks); err != nil {
		return model.Task{}, err
	}

	e.logger.Info("task assigned", "task_id", task.TaskID, "child_id", childID, "points", points)
	return task, nil
}

// ChildError reports a per-child failure from a class-wide assignment.
type ChildError struct {
	ChildID string `json:"child_id"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// AssignToClass fans one task out to every child. Per-child failures do
// not abort the batch: tasks already created stay persisted and the
// failures come back alongside them.
func (e *Engine) AssignToClass(creatorID, title, description string, dueDate *time.Time, points int) ([]model.Task, []ChildError, error) {
	if points < 0 {
		return nil, nil, apperr.InvalidArgument("points must be >= 0, got %d", points)
	}
	if dueDate == nil {
		d := time.Now().UTC().Add(classDueDateOffset)
		dueDate = &d
	}

	users, err := e.store.LoadUsers()
	if err != nil {
		return nil, nil, err
	}
	if err := requireApprover(users, creatorID); err != nil {
		return nil, nil, err
	}

	unlock := e.store.Lock(store.Tasks)
	defer unlock()

	tasks, err := e.store.LoadTasks()
	if err != nil {
		return nil, nil, err
	}

	var created []model.Task
	var failed []ChildError
	for _, u := range users {
		if !u.IsChild() {
			continue
		}
		task, err := model.NewTask(title, description, dueDate, points, u.UserID)
		if err != nil {
			failed = append(failed, ChildError{ChildID: u.UserID, Err: err, Message: err.Error()})
			continue
		}
		tasks = append(tasks, task)
		created = append(created, task)
	}

	if len(created) > 0 {
		if err := e.store.SaveTasks(tasks); err != nil {
			return nil, nil, err
		}
	}

	e.logger.Info("class task assigned", "created", len(created), "failed", len(failed))
	return created, failed, nil
}

// CompleteTask marks a pending task completed. Only the assigned child
// may do this.
func (e *Engine) CompleteTask(actorChildID, taskID string) (model.Task, error) {
	unlock := e.store.Lock(store.Tasks)
	defer unlock()

	tasks, err := e.store.LoadTasks()
	if err != nil {
		return model.Task{}, err
	}
	i, ok := findTask(tasks, taskID)
	if !ok {
		return model.Task{}, apperr.NotFound("task %s", taskID)
	}
	if tasks[i].AssignedToID != actorChildID {
		return model.Task{}, apperr.Forbidden("task %s is not assigned to %s", taskID, actorChildID)
	}
	if err := tasks[i].Transition(model.TaskCompleted); err != nil {
		return model.Task{}, err
	}

	if err := e.store.SaveTasks(tasks); err != nil {
		return model.Task{}, err
	}

	e.logger.Info("task completed", "task_id", taskID, "child_id", actorChildID)
	return tasks[i], nil
}

// ApproveTask approves a completed task, optionally rates it (1-5,
// 0 means unrated), and credits the task's points to the assignee.
// Tasks and users are committed together: a later reader sees both the
// approval and the credit, or neither.
func (e *Engine) ApproveTask(approverID, taskID string, rating int) (model.Task, model.User, error) {
	unlock := e.store.Lock(store.Users, store.Tasks)
	defer unlock()

	users, err := e.store.LoadUsers()
	if err != nil {
		return model.Task{}, model.User{}, err
	}
	if err := requireApprover(users, approverID); err != nil {
		return model.Task{}, model.User{}, err
	}

	tasks, err := e.store.LoadTasks()
	if err != nil {
		return model.Task{}, model.User{}, err
	}
	i, ok := findTask(tasks, taskID)
	if !ok {
		return model.Task{}, model.User{}, apperr.NotFound("task %s", taskID)
	}

	j, ok := findChild(users, tasks[i].AssignedToID)
	if !ok {
		return model.Task{}, model.User{}, apperr.NotFound("assignee %s", tasks[i].AssignedToID)
	}

	// All preconditions checked before anything is touched.
	if rating != 0 {
		if err := tasks[i].SetRating(rating); err != nil {
			return model.Task{}, model.User{}, err
		}
	}
	if err := tasks[i].Transition(model.TaskApproved); err != nil {
		return model.Task{}, model.User{}, err
	}

	profile, err := ledger.ApplyPoints(*users[j].Child, tasks[i].Points)
	if err != nil {
		return model.Task{}, model.User{}, err
	}
	users[j].Child = &profile
	users[j].UpdatedAt = time.Now().UTC()

	if err := e.store.CommitTasksAndUsers(tasks, users); err != nil {
		return model.Task{}, model.User{}, err
	}

	e.logger.Info("task approved",
		"task_id", taskID,
		"approver_id", approverID,
		"points", tasks[i].Points,
		"child_total", profile.TotalPoints,
		"child_level", profile.Level,
	)
	return tasks[i], users[j], nil
}

// RejectTask rejects a completed task. No points move.
func (e *Engine) RejectTask(approverID, taskID string) (model.Task, error) {
	users, err := e.store.LoadUsers()
	if err != nil {
		return model.Task{}, err
	}
	if err := requireApprover(users, approverID); err != nil {
		return model.Task{}, err
	}

	unlock := e.store.Lock(store.Tasks)
	defer unlock()

	tasks, err := e.store.LoadTasks()
	if err != nil {
		return model.Task{}, err
	}
	i, ok := findTask(tasks, taskID)
	if !ok {
		return model.Task{}, apperr.NotFound("task %s", taskID)
	}
	if err := tasks[i].Transition(model.TaskRejected); err != nil {
		return model.Task{}, err
	}

	if err := e.store.SaveTasks(tasks); err != nil {
		return model.Task{}, err
	}

	e.logger.Info("task rejected", "task_id", taskID, "approver_id", approverID)
	return tasks[i], nil
}

// --- wishes ---

// RequestWish records a child's reward request.
func (e *Engine) RequestWish(childID, name string, cost, requiredLevel int) (model.Wish, error) {
	wish, err := model.NewWish(name, cost, childID, requiredLevel)
	if err != nil {
		return model.Wish{}, err
	}

	users, err := e.store.LoadUsers()
	if err != nil {
		return model.Wish{}, err
	}
	if _, ok := findChild(users, childID); !ok {
		return model.Wish{}, apperr.NotFound("child %s", childID)
	}

	unlock := e.store.Lock(store.Wishes)
	defer unlock()

	wishes, err := e.store.LoadWishes()
	if err != nil {
		return model.Wish{}, err
	}
	wishes = append(wishes, wish)
	if err := e.store.SaveWishes(wishes); err != nil {
		return model.Wish{}, err
	}

	e.logger.Info("wish requested", "wish_id", wish.WishID, "child_id", childID, "cost", cost)
	return wish, nil
}

// DecideWish approves or rejects a pending wish and records who decided.
// Approval never debits the child's points; cost stays informational.
func (e *Engine) DecideWish(approverID, wishID string, approve bool) (model.Wish, error) {
	users, err := e.store.LoadUsers()
	if err != nil {
		return model.Wish{}, err
	}
	if err := requireApprover(users, approverID); err != nil {
		return model.Wish{}, err
	}

	unlock := e.store.Lock(store.Wishes)
	defer unlock()

	wishes, err := e.store.LoadWishes()
	if err != nil {
		return model.Wish{}, err
	}
	i, ok := findWish(wishes, wishID)
	if !ok {
		return model.Wish{}, apperr.NotFound("wish %s", wishID)
	}

	target := model.WishRejected
	if approve {
		target = model.WishApproved
	}
	if err := wishes[i].Transition(target); err != nil {
		return model.Wish{}, err
	}
	wishes[i].ApprovedByID = approverID

	if err := e.store.SaveWishes(wishes); err != nil {
		return model.Wish{}, err
	}

	e.logger.Info("wish decided", "wish_id", wishID, "approver_id", approverID, "status", string(wishes[i].Status))
	return wishes[i], nil
}

// --- lookups ---

func findTask(tasks []model.Task, id string) (int, bool) {
	for i := range tasks {
		if tasks[i].TaskID == id {
			return i, true
		}
	}
	return 0, false
}

func findWish(wishes []model.Wish, id string) (int, bool) {
	for i := range wishes {
		if wishes[i].WishID == id {
			return i, true
		}
	}
	return 0, false
}

func findUser(users []model.User, id string) (int, bool) {
	for i := range users {
		if users[i].UserID == id {
			return i, true
		}
	}
	return 0, false
}

func findChild(users []model.User, id string) (int, bool) {
	i, ok := findUser(users, id)
	if !ok || !users[i].IsChild() {
		return 0, false
	}
	return i, true
}

func requireApprover(users []model.User, id string) error {
	i, ok := findUser(users, id)
	if !ok {
		return apperr.NotFound("user %s", id)
	}
	if !users[i].Role.CanApprove() {
		return apperr.Forbidden("user %s has role %s", id, users[i].Role)
	}
	return nil
}
