package task

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"taskboard/internal/model"
)

// memStore is a simple in-memory task store for testing.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*model.Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[int64]*model.Task)}
}

func (m *memStore) Insert(ctx context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t.ID = m.nextID
	// deterministic, strictly increasing creation times
	t.CreatedAt = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.nextID) * time.Second)
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) FindByOwner(ctx context.Context, taskID, ownerID int64) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, taskID, ownerID int64, status *model.Status, description *string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return nil, pgx.ErrNoRows
	}
	if status != nil {
		t.Status = *status
	}
	if description != nil {
		t.Description = *description
	}
	t.UpdatedAt = t.UpdatedAt.Add(time.Second)
	cp := *t
	return &cp, nil
}

func (m *memStore) Delete(ctx context.Context, taskID, ownerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return false, nil
	}
	delete(m.tasks, taskID)
	return true, nil
}

func (m *memStore) byOwner(ownerID int64) []model.Task {
	out := []model.Task{}
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.byOwner(ownerID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return slicePage(out, limit, offset), nil
}

func (m *memStore) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byOwner(ownerID)), nil
}

func overduePredicate(t model.Task, before time.Time) bool {
	return t.DueDate.Before(before) && t.Status != model.StatusCompleted
}

func (m *memStore) ListOverdue(ctx context.Context, ownerID int64, before time.Time, limit, offset int) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []model.Task{}
	for _, t := range m.byOwner(ownerID) {
		if overduePredicate(t, before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return slicePage(out, limit, offset), nil
}

func (m *memStore) CountOverdue(ctx context.Context, ownerID int64, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range m.byOwner(ownerID) {
		if overduePredicate(t, before) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Stats(ctx context.Context, ownerID int64, overdueBefore time.Time) (total, completed, pending, overdue int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.byOwner(ownerID) {
		total++
		if t.Status == model.StatusCompleted {
			completed++
		}
		if t.Status == model.StatusPending {
			pending++
		}
		if overduePredicate(t, overdueBefore) {
			overdue++
		}
	}
	return total, completed, pending, overdue, nil
}

func slicePage(tasks []model.Task, limit, offset int) []model.Task {
	if offset >= len(tasks) {
		return []model.Task{}
	}
	end := offset + limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[offset:end]
}

// recordingPublisher captures published routing keys.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

var testNow = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := NewService(store, nil, pub, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, store, pub
}

func day(offset int) time.Time {
	return testNow.AddDate(0, 0, offset)
}

func mustCreate(t *testing.T, svc *Service, ownerID int64, in CreateInput) *model.Task {
	t.Helper()
	created, err := svc.Create(context.Background(), ownerID, in)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return created
}

func TestCreateDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	created := mustCreate(t, svc, 1, CreateInput{Title: "Pay rent", DueDate: day(1)})

	if created.ID == 0 {
		t.Error("expected task ID to be set")
	}
	if created.Status != model.StatusPending {
		t.Errorf("expected status %s, got %s", model.StatusPending, created.Status)
	}
	if created.Priority != model.PriorityMedium {
		t.Errorf("expected priority %s, got %s", model.PriorityMedium, created.Priority)
	}
	if created.Category != model.CategoryOther {
		t.Errorf("expected category %s, got %s", model.CategoryOther, created.Category)
	}
	if created.OwnerID != 1 {
		t.Errorf("expected owner 1, got %d", created.OwnerID)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, CreateInput{DueDate: day(1)}); err != ErrMissingFields {
		t.Errorf("expected ErrMissingFields without title, got %v", err)
	}
	if _, err := svc.Create(ctx, 1, CreateInput{Title: "   ", DueDate: day(1)}); err != ErrMissingFields {
		t.Errorf("expected ErrMissingFields for blank title, got %v", err)
	}
	if _, err := svc.Create(ctx, 1, CreateInput{Title: "x"}); err != ErrMissingFields {
		t.Errorf("expected ErrMissingFields without due date, got %v", err)
	}
	if _, err := svc.Create(ctx, 1, CreateInput{Title: "x", DueDate: day(1), Priority: "Urgent"}); err != ErrInvalidPriority {
		t.Errorf("expected ErrInvalidPriority, got %v", err)
	}
	if _, err := svc.Create(ctx, 1, CreateInput{Title: "x", DueDate: day(1), Category: "Chores"}); err != ErrInvalidCategory {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, 1, CreateInput{Title: "Mine", DueDate: day(-1)})

	// user 2 cannot update, delete or even observe the task
	status := model.StatusCompleted
	if _, err := svc.Update(ctx, 2, created.ID, UpdateInput{Status: &status}); err != ErrTaskNotFound {
		t.Errorf("expected ErrTaskNotFound on foreign update, got %v", err)
	}
	if err := svc.Delete(ctx, 2, created.ID); err != ErrTaskNotFound {
		t.Errorf("expected ErrTaskNotFound on foreign delete, got %v", err)
	}

	page, err := svc.List(ctx, 2, 1, 10)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(page.Tasks) != 0 {
		t.Errorf("expected user 2 to see no tasks, got %d", len(page.Tasks))
	}

	// the owner still sees it untouched
	mine, err := svc.List(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(mine.Tasks) != 1 || mine.Tasks[0].Status != model.StatusPending {
		t.Errorf("expected owner's task to remain pending, got %+v", mine.Tasks)
	}
}

func TestCompletionGuard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	status := model.StatusCompleted

	tomorrow := mustCreate(t, svc, 1, CreateInput{Title: "Tomorrow", DueDate: day(1)})
	if _, err := svc.Update(ctx, 1, tomorrow.ID, UpdateInput{Status: &status}); err != ErrDueDateInFuture {
		t.Errorf("expected ErrDueDateInFuture for tomorrow's task, got %v", err)
	}

	// due later today is still "today", not the future
	today := mustCreate(t, svc, 1, CreateInput{Title: "Today", DueDate: day(0).Add(7 * time.Hour)})
	if _, err := svc.Update(ctx, 1, today.ID, UpdateInput{Status: &status}); err != nil {
		t.Errorf("expected completing today's task to succeed, got %v", err)
	}

	yesterday := mustCreate(t, svc, 1, CreateInput{Title: "Yesterday", DueDate: day(-1)})
	updated, err := svc.Update(ctx, 1, yesterday.ID, UpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("expected completing yesterday's task to succeed, got %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("expected status completed, got %s", updated.Status)
	}

	// completing an already-completed task is a no-op, not an error
	if _, err := svc.Update(ctx, 1, yesterday.ID, UpdateInput{Status: &status}); err != nil {
		t.Errorf("expected re-completing to succeed, got %v", err)
	}
}

func TestUpdateInvalidStatus(t *testing.T) {
	svc, _, _ := newTestService(t)

	created := mustCreate(t, svc, 1, CreateInput{Title: "x", DueDate: day(-1)})
	bad := model.Status("archived")
	if _, err := svc.Update(context.Background(), 1, created.ID, UpdateInput{Status: &bad}); err != ErrInvalidStatus {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestPartialUpdate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, 1, CreateInput{Title: "x", Description: "original", DueDate: day(-1)})

	desc := "rewritten"
	updated, err := svc.Update(ctx, 1, created.ID, UpdateInput{Description: &desc})
	if err != nil {
		t.Fatalf("failed to update description: %v", err)
	}
	if updated.Description != "rewritten" {
		t.Errorf("expected description rewritten, got %q", updated.Description)
	}
	if updated.Status != model.StatusPending {
		t.Errorf("description-only update must not touch status, got %s", updated.Status)
	}

	status := model.StatusCompleted
	updated, err = svc.Update(ctx, 1, created.ID, UpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("expected status completed, got %s", updated.Status)
	}
	if updated.Description != "rewritten" {
		t.Errorf("status-only update must not touch description, got %q", updated.Description)
	}
}

func TestDeleteTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, 1, CreateInput{Title: "x", DueDate: day(0)})

	if err := svc.Delete(ctx, 1, created.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}
	if err := svc.Delete(ctx, 1, created.ID); err != ErrTaskNotFound {
		t.Errorf("expected ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestPaginationTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		mustCreate(t, svc, 1, CreateInput{Title: "Task", DueDate: day(1)})
	}

	page1, err := svc.List(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("failed to list page 1: %v", err)
	}
	if len(page1.Tasks) != 10 {
		t.Errorf("expected 10 tasks on page 1, got %d", len(page1.Tasks))
	}
	if !page1.Pagination.HasNextPage || page1.Pagination.HasPrevPage {
		t.Errorf("unexpected page 1 metadata: %+v", page1.Pagination)
	}

	page2, err := svc.List(ctx, 1, 2, 10)
	if err != nil {
		t.Fatalf("failed to list page 2: %v", err)
	}
	if len(page2.Tasks) != 2 {
		t.Errorf("expected 2 tasks on page 2, got %d", len(page2.Tasks))
	}
	p := page2.Pagination
	if p.TotalPages != 2 || p.TotalTasks != 12 || p.HasNextPage || !p.HasPrevPage || p.Limit != 10 {
		t.Errorf("unexpected page 2 metadata: %+v", p)
	}

	// a page past the end is empty but well-formed
	page9, err := svc.List(ctx, 1, 9, 10)
	if err != nil {
		t.Fatalf("failed to list page 9: %v", err)
	}
	if len(page9.Tasks) != 0 {
		t.Errorf("expected empty slice past the end, got %d tasks", len(page9.Tasks))
	}
	if page9.Pagination.TotalPages != 2 || page9.Pagination.HasNextPage {
		t.Errorf("unexpected out-of-range metadata: %+v", page9.Pagination)
	}
}

func TestListOrdering(t *testing.T) {
	svc, _, _ := newTestService(t)

	first := mustCreate(t, svc, 1, CreateInput{Title: "first", DueDate: day(1)})
	second := mustCreate(t, svc, 1, CreateInput{Title: "second", DueDate: day(1)})

	page, err := svc.List(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(page.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(page.Tasks))
	}
	if page.Tasks[0].ID != second.ID || page.Tasks[1].ID != first.ID {
		t.Errorf("expected most recent first, got %d then %d", page.Tasks[0].ID, page.Tasks[1].ID)
	}
}

func TestOverduePredicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	status := model.StatusCompleted

	dueToday := mustCreate(t, svc, 1, CreateInput{Title: "due today", DueDate: day(0)})
	overdueOld := mustCreate(t, svc, 1, CreateInput{Title: "long overdue", DueDate: day(-5)})
	overdueNew := mustCreate(t, svc, 1, CreateInput{Title: "just overdue", DueDate: day(-1)})
	done := mustCreate(t, svc, 1, CreateInput{Title: "done", DueDate: day(-10)})
	if _, err := svc.Update(ctx, 1, done.ID, UpdateInput{Status: &status}); err != nil {
		t.Fatalf("failed to complete task: %v", err)
	}

	page, err := svc.ListOverdue(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("failed to list overdue tasks: %v", err)
	}

	// a task due today is not yet overdue, a completed task never is
	if len(page.Tasks) != 2 {
		t.Fatalf("expected 2 overdue tasks, got %d", len(page.Tasks))
	}
	// oldest due date first
	if page.Tasks[0].ID != overdueOld.ID || page.Tasks[1].ID != overdueNew.ID {
		t.Errorf("unexpected overdue order: %d, %d", page.Tasks[0].ID, page.Tasks[1].ID)
	}
	for _, got := range page.Tasks {
		if got.ID == done.ID || got.ID == dueToday.ID {
			t.Errorf("task %d must not be classified overdue", got.ID)
		}
	}
}

func TestOverdueExcludesFuture(t *testing.T) {
	svc, _, _ := newTestService(t)

	mustCreate(t, svc, 1, CreateInput{Title: "tomorrow", DueDate: day(1)})
	mustCreate(t, svc, 1, CreateInput{Title: "yesterday", DueDate: day(-1)})

	page, err := svc.ListOverdue(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("failed to list overdue tasks: %v", err)
	}
	if len(page.Tasks) != 1 || page.Tasks[0].Title != "yesterday" {
		t.Fatalf("expected only yesterday's task to be overdue, got %d tasks", len(page.Tasks))
	}
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	status := model.StatusCompleted

	mustCreate(t, svc, 1, CreateInput{Title: "pending future", DueDate: day(3)})
	mustCreate(t, svc, 1, CreateInput{Title: "pending overdue", DueDate: day(-2)})
	done := mustCreate(t, svc, 1, CreateInput{Title: "done", DueDate: day(-1)})
	if _, err := svc.Update(ctx, 1, done.ID, UpdateInput{Status: &status}); err != nil {
		t.Fatalf("failed to complete task: %v", err)
	}
	// another user's tasks must not leak into the counts
	mustCreate(t, svc, 2, CreateInput{Title: "foreign", DueDate: day(-2)})

	stats, err := svc.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}
	if stats.TotalTasks != 3 {
		t.Errorf("expected 3 total tasks, got %d", stats.TotalTasks)
	}
	if stats.CompletedTasks != 1 {
		t.Errorf("expected 1 completed task, got %d", stats.CompletedTasks)
	}
	if stats.PendingTasks != 2 {
		t.Errorf("expected 2 pending tasks, got %d", stats.PendingTasks)
	}
	if stats.OverdueTasks != 1 {
		t.Errorf("expected 1 overdue task, got %d", stats.OverdueTasks)
	}
}

func TestLifecycleEvents(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()
	status := model.StatusCompleted

	created := mustCreate(t, svc, 1, CreateInput{Title: "x", DueDate: day(-1)})
	if _, err := svc.Update(ctx, 1, created.ID, UpdateInput{Status: &status}); err != nil {
		t.Fatalf("failed to complete task: %v", err)
	}
	// re-completing must not emit a second completed event
	if _, err := svc.Update(ctx, 1, created.ID, UpdateInput{Status: &status}); err != nil {
		t.Fatalf("failed to re-complete task: %v", err)
	}
	if err := svc.Delete(ctx, 1, created.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}

	want := []string{"task.created", "task.completed", "task.deleted"}
	if len(pub.keys) != len(want) {
		t.Fatalf("expected events %v, got %v", want, pub.keys)
	}
	for i := range want {
		if pub.keys[i] != want[i] {
			t.Errorf("expected event %q at position %d, got %q", want[i], i, pub.keys[i])
		}
	}
}
