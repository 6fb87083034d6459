package workflow

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/kidtask/internal/apperr"
	"github.com/dukerupert/kidtask/internal/model"
	"github.com/dukerupert/kidtask/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := store.Open(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createUser(t *testing.T, e *Engine, email string, role model.Role) model.User {
	t.Helper()
	u, err := e.CreateUser(email, "secret123", role)
	if err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	return u
}

func childPoints(t *testing.T, e *Engine, childID string) (int, int) {
	t.Helper()
	children, err := e.ListChildren()
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	for _, c := range children {
		if c.UserID == childID {
			return c.Child.TotalPoints, c.Child.Level
		}
	}
	t.Fatalf("child %s not found", childID)
	return 0, 0
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	e := newTestEngine(t)
	createUser(t, e, "mom@example.com", model.RoleParent)

	if _, err := e.CreateUser("MOM@example.com", "pw", model.RoleParent); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("duplicate email: err = %v, want ErrInvalidArgument", err)
	}
}

func TestAssignTask(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	task, err := e.AssignTask(parent.UserID, child.UserID, "Dishes", "After dinner", &due, 25)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if task.Status != model.TaskPending {
		t.Errorf("status = %s, want pending", task.Status)
	}

	tasks, err := e.ListTasks(TaskFilter{AssignedToID: child.UserID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != task.TaskID {
		t.Errorf("task not persisted: %+v", tasks)
	}
}

func TestAssignTaskErrors(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	if _, err := e.AssignTask(parent.UserID, "nope", "Dishes", "", nil, 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown child: err = %v, want ErrNotFound", err)
	}
	if _, err := e.AssignTask(parent.UserID, child.UserID, "Dishes", "", nil, -1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("negative points: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := e.AssignTask(child.UserID, child.UserID, "Dishes", "", nil, 10); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("child assigner: err = %v, want ErrForbidden", err)
	}
	// Assigning to a parent is not assigning to a child.
	if _, err := e.AssignTask(parent.UserID, parent.UserID, "Dishes", "", nil, 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("parent assignee: err = %v, want ErrNotFound", err)
	}

	// Nothing was persisted by the failed attempts.
	tasks, err := e.ListTasks(TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("failed assigns left %d tasks behind", len(tasks))
	}
}

func TestAssignToClass(t *testing.T) {
	e := newTestEngine(t)
	teacher := createUser(t, e, "teacher@example.com", model.RoleTeacher)
	createUser(t, e, "mom@example.com", model.RoleParent)
	c1 := createUser(t, e, "kid1@example.com", model.RoleChild)
	c2 := createUser(t, e, "kid2@example.com", model.RoleChild)

	created, failed, err := e.AssignToClass(teacher.UserID, "Reading", "Chapter 3", nil, 15)
	if err != nil {
		t.Fatalf("assign to class: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("unexpected per-child failures: %+v", failed)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(created))
	}

	assignees := map[string]bool{}
	for _, task := range created {
		assignees[task.AssignedToID] = true
		if task.DueDate == nil {
			t.Error("class task missing default due date")
		}
	}
	if !assignees[c1.UserID] || !assignees[c2.UserID] {
		t.Errorf("tasks went to %v, want both children", assignees)
	}
}

func TestCompleteTask(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)
	other := createUser(t, e, "sibling@example.com", model.RoleChild)

	task, err := e.AssignTask(parent.UserID, child.UserID, "Dishes", "", nil, 25)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := e.CompleteTask(other.UserID, task.TaskID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("foreign completion: err = %v, want ErrForbidden", err)
	}
	if _, err := e.CompleteTask(child.UserID, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown task: err = %v, want ErrNotFound", err)
	}

	done, err := e.CompleteTask(child.UserID, task.TaskID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.TaskCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}

	// Completing twice is not a legal transition.
	if _, err := e.CompleteTask(child.UserID, task.TaskID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("double complete: err = %v, want ErrInvalidState", err)
	}
}

// The headline scenario: a 50-point task is completed, approved with a
// rating of 4, and the credit moves the child from 60 points (level 1)
// to 110 (level 2).
func TestApproveTaskCreditsChild(t *testing.T) {
	e := newTestEngine(t)
	teacher := createUser(t, e, "teacher@example.com", model.RoleTeacher)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	// Seed the child to 60 points via an earlier approved task.
	warmup, err := e.AssignTask(teacher.UserID, child.UserID, "Warmup", "", nil, 60)
	if err != nil {
		t.Fatalf("assign warmup: %v", err)
	}
	if _, err := e.CompleteTask(child.UserID, warmup.TaskID); err != nil {
		t.Fatalf("complete warmup: %v", err)
	}
	if _, _, err := e.ApproveTask(teacher.UserID, warmup.TaskID, 0); err != nil {
		t.Fatalf("approve warmup: %v", err)
	}
	if pts, lvl := childPoints(t, e, child.UserID); pts != 60 || lvl != 1 {
		t.Fatalf("after warmup: %d points level %d, want 60/1", pts, lvl)
	}

	task, err := e.AssignTask(teacher.UserID, child.UserID, "Essay", "", nil, 50)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := e.CompleteTask(child.UserID, task.TaskID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	approved, updated, err := e.ApproveTask(teacher.UserID, task.TaskID, 4)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.TaskApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}
	if approved.Rating != 4 {
		t.Errorf("rating = %d, want 4", approved.Rating)
	}
	if updated.Child.TotalPoints != 110 || updated.Child.Level != 2 {
		t.Errorf("child = %d points level %d, want 110/2",
			updated.Child.TotalPoints, updated.Child.Level)
	}

	// Level invariant holds in the persisted state too.
	if pts, lvl := childPoints(t, e, child.UserID); pts != 110 || lvl != 2 {
		t.Errorf("persisted child = %d points level %d, want 110/2", pts, lvl)
	}
}

func TestApproveTaskExactlyOnce(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	task, _ := e.AssignTask(parent.UserID, child.UserID, "Dishes", "", nil, 30)
	e.CompleteTask(child.UserID, task.TaskID)

	if _, _, err := e.ApproveTask(parent.UserID, task.TaskID, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if pts, _ := childPoints(t, e, child.UserID); pts != 30 {
		t.Fatalf("points = %d, want 30", pts)
	}

	// Re-approving or rejecting a terminal task fails and credits nothing.
	if _, _, err := e.ApproveTask(parent.UserID, task.TaskID, 0); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("re-approve: err = %v, want ErrInvalidState", err)
	}
	if _, err := e.RejectTask(parent.UserID, task.TaskID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("reject approved: err = %v, want ErrInvalidState", err)
	}
	if pts, _ := childPoints(t, e, child.UserID); pts != 30 {
		t.Errorf("points after failed retries = %d, want 30 (double credit)", pts)
	}
}

func TestApproveTaskPreconditions(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	task, _ := e.AssignTask(parent.UserID, child.UserID, "Dishes", "", nil, 30)

	// Approval straight from pending is illegal.
	if _, _, err := e.ApproveTask(parent.UserID, task.TaskID, 0); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("approve pending: err = %v, want ErrInvalidState", err)
	}

	e.CompleteTask(child.UserID, task.TaskID)

	if _, _, err := e.ApproveTask(child.UserID, task.TaskID, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("child approver: err = %v, want ErrForbidden", err)
	}
	if _, _, err := e.ApproveTask(parent.UserID, task.TaskID, 9); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("bad rating: err = %v, want ErrInvalidArgument", err)
	}

	// All failures above left the task completed and the child uncredited.
	tasks, _ := e.ListTasks(TaskFilter{Status: model.TaskCompleted})
	if len(tasks) != 1 {
		t.Fatalf("task status disturbed by failed approvals: %+v", tasks)
	}
	if pts, _ := childPoints(t, e, child.UserID); pts != 0 {
		t.Errorf("points = %d, want 0", pts)
	}
}

func TestRejectTask(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	task, _ := e.AssignTask(parent.UserID, child.UserID, "Dishes", "", nil, 30)
	e.CompleteTask(child.UserID, task.TaskID)

	rejected, err := e.RejectTask(parent.UserID, task.TaskID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.TaskRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}
	if pts, _ := childPoints(t, e, child.UserID); pts != 0 {
		t.Errorf("rejection credited %d points", pts)
	}
}

// Two approvals racing on different tasks of the same child must both
// land: no lost update on the shared user record.
func TestConcurrentApprovalsBothCredit(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	t1, _ := e.AssignTask(parent.UserID, child.UserID, "Dishes", "", nil, 40)
	t2, _ := e.AssignTask(parent.UserID, child.UserID, "Laundry", "", nil, 70)
	if _, err := e.CompleteTask(child.UserID, t1.TaskID); err != nil {
		t.Fatalf("complete t1: %v", err)
	}
	if _, err := e.CompleteTask(child.UserID, t2.TaskID); err != nil {
		t.Fatalf("complete t2: %v", err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{t1.TaskID, t2.TaskID} {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			if _, _, err := e.ApproveTask(parent.UserID, taskID, 0); err != nil {
				t.Errorf("approve %s: %v", taskID, err)
			}
		}(id)
	}
	wg.Wait()

	if pts, lvl := childPoints(t, e, child.UserID); pts != 110 || lvl != 2 {
		t.Errorf("child = %d points level %d, want 110/2", pts, lvl)
	}
}

func TestWishLifecycle(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	wish, err := e.RequestWish(child.UserID, "Bicycle", 80, 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if wish.Status != model.WishPending {
		t.Errorf("status = %s, want pending", wish.Status)
	}

	decided, err := e.DecideWish(parent.UserID, wish.WishID, true)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != model.WishApproved {
		t.Errorf("status = %s, want approved", decided.Status)
	}
	if decided.ApprovedByID != parent.UserID {
		t.Errorf("approved_by = %q, want %q", decided.ApprovedByID, parent.UserID)
	}

	// Wish approval never moves points.
	if pts, _ := childPoints(t, e, child.UserID); pts != 0 {
		t.Errorf("wish approval debited/credited %d points", pts)
	}

	// Terminal: no second decision.
	if _, err := e.DecideWish(parent.UserID, wish.WishID, false); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("re-decide: err = %v, want ErrInvalidState", err)
	}
}

func TestWishErrors(t *testing.T) {
	e := newTestEngine(t)
	parent := createUser(t, e, "mom@example.com", model.RoleParent)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	if _, err := e.RequestWish(child.UserID, "Bicycle", -5, 0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("negative cost: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := e.RequestWish(parent.UserID, "Bicycle", 5, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("parent requester: err = %v, want ErrNotFound", err)
	}

	wish, _ := e.RequestWish(child.UserID, "Bicycle", 80, 1)
	if _, err := e.DecideWish(child.UserID, wish.WishID, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("child decider: err = %v, want ErrForbidden", err)
	}
	if _, err := e.DecideWish(parent.UserID, "nope", true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown wish: err = %v, want ErrNotFound", err)
	}
}

func TestViewsAndSummary(t *testing.T) {
	e := newTestEngine(t)
	teacher := createUser(t, e, "teacher@example.com", model.RoleTeacher)
	child := createUser(t, e, "kid@example.com", model.RoleChild)

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	t1, _ := e.AssignTask(teacher.UserID, child.UserID, "Dishes", "", &due, 20)
	e.AssignTask(teacher.UserID, child.UserID, "Laundry", "", nil, 30)

	e.CompleteTask(child.UserID, t1.TaskID)
	e.ApproveTask(teacher.UserID, t1.TaskID, 5)

	pending, err := e.ListTasks(TaskFilter{Status: model.TaskPending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}

	cutoff := due.Add(24 * time.Hour)
	dueSoon, err := e.ListTasks(TaskFilter{DueBefore: &cutoff})
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(dueSoon) != 1 || dueSoon[0].TaskID != t1.TaskID {
		t.Errorf("due window returned %+v", dueSoon)
	}

	e.RequestWish(child.UserID, "Bicycle", 80, 1)

	summary, err := e.Summarize()
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.TaskCounts[model.TaskApproved] != 1 || summary.TaskCounts[model.TaskPending] != 1 {
		t.Errorf("task counts = %+v", summary.TaskCounts)
	}
	if summary.WishCounts[model.WishPending] != 1 {
		t.Errorf("wish counts = %+v", summary.WishCounts)
	}
	if summary.ChildCount != 1 {
		t.Errorf("child count = %d, want 1", summary.ChildCount)
	}
	if summary.AverageRating != 5 {
		t.Errorf("average rating = %v, want 5", summary.AverageRating)
	}
}
