package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskboard/internal/model"
	"taskboard/internal/util"
	"taskboard/pkg/metrics"
)

const (
	defaultLimit  = 10
	statsCacheTTL = 30 * time.Second
)

// Store is the persistence surface the service needs. All lookups and
// mutations are scoped by owner id; the store must treat a task owned
// by someone else as absent (pgx.ErrNoRows).
type Store interface {
	Insert(ctx context.Context, t *model.Task) error
	FindByOwner(ctx context.Context, taskID, ownerID int64) (*model.Task, error)
	Update(ctx context.Context, taskID, ownerID int64, status *model.Status, description *string) (*model.Task, error)
	Delete(ctx context.Context, taskID, ownerID int64) (bool, error)
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]model.Task, error)
	CountByOwner(ctx context.Context, ownerID int64) (int, error)
	ListOverdue(ctx context.Context, ownerID int64, before time.Time, limit, offset int) ([]model.Task, error)
	CountOverdue(ctx context.Context, ownerID int64, before time.Time) (int, error)
	Stats(ctx context.Context, ownerID int64, overdueBefore time.Time) (total, completed, pending, overdue int, err error)
}

// Publisher emits lifecycle events. Matches mq.Publisher.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

type Service struct {
	store  Store
	cache  *redis.Client
	events Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the task service. cache and events may be nil; the
// service then skips caching and event publishing.
func NewService(store Store, cache *redis.Client, events Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

type CreateInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Priority    model.Priority
	Category    model.Category
}

type UpdateInput struct {
	Status      *model.Status
	Description *string
}

type Page struct {
	Tasks      []model.Task `json:"tasks"`
	Pagination Pagination   `json:"pagination"`
}

type Stats struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	PendingTasks   int `json:"pendingTasks"`
	OverdueTasks   int `json:"overdueTasks"`
}

// Create validates the input, fills in defaults and stores a new
// pending task owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput) (*model.Task, error) {
	if strings.TrimSpace(in.Title) == "" || in.DueDate.IsZero() {
		return nil, ErrMissingFields
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	} else if !model.ValidPriority(in.Priority) {
		return nil, ErrInvalidPriority
	}
	if in.Category == "" {
		in.Category = model.CategoryOther
	} else if !model.ValidCategory(in.Category) {
		return nil, ErrInvalidCategory
	}

	t := &model.Task{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      model.StatusPending,
		Priority:    in.Priority,
		Category:    in.Category,
		DueDate:     in.DueDate,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	metrics.IncrementTaskMutation("create")
	s.invalidateStats(ctx, ownerID)
	s.publish("task.created", map[string]any{
		"task_id":  t.ID,
		"owner_id": t.OwnerID,
		"title":    t.Title,
		"due_date": t.DueDate.Format("2006-01-02"),
	})
	return t, nil
}

// Update applies a partial update to the owner's task. Only status and
// description are mutable; absent fields are left untouched. Setting
// status to completed is refused while the task's due day is still
// ahead of today.
func (s *Service) Update(ctx context.Context, ownerID, taskID int64, in UpdateInput) (*model.Task, error) {
	existing, err := s.store.FindByOwner(ctx, taskID, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to look up task: %w", err)
	}

	completing := false
	if in.Status != nil {
		if !model.ValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		if *in.Status == model.StatusCompleted {
			due := util.StartOfDay(existing.DueDate)
			today := util.StartOfDay(s.now())
			if due.After(today) {
				return nil, ErrDueDateInFuture
			}
			completing = existing.Status != model.StatusCompleted
		}
	}

	updated, err := s.store.Update(ctx, taskID, ownerID, in.Status, in.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	metrics.IncrementTaskMutation("update")
	s.invalidateStats(ctx, ownerID)
	if completing {
		s.publish("task.completed", map[string]any{
			"task_id":  updated.ID,
			"owner_id": updated.OwnerID,
			"title":    updated.Title,
		})
	}
	return updated, nil
}

// Delete permanently removes the owner's task.
func (s *Service) Delete(ctx context.Context, ownerID, taskID int64) error {
	deleted, err := s.store.Delete(ctx, taskID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return ErrTaskNotFound
	}

	metrics.IncrementTaskMutation("delete")
	s.invalidateStats(ctx, ownerID)
	s.publish("task.deleted", map[string]any{
		"task_id":  taskID,
		"owner_id": ownerID,
	})
	return nil
}

// List returns one page of the owner's tasks, most recently created
// first.
func (s *Service) List(ctx context.Context, ownerID int64, page, limit int) (*Page, error) {
	page, limit = clampPage(page, limit)

	total, err := s.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	tasks, err := s.store.ListByOwner(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &Page{Tasks: tasks, Pagination: NewPagination(page, limit, total)}, nil
}

// ListOverdue returns one page of the owner's overdue tasks: due day
// fully elapsed and not completed, ordered with the oldest due date
// first. A task due any time today is not yet overdue.
func (s *Service) ListOverdue(ctx context.Context, ownerID int64, page, limit int) (*Page, error) {
	page, limit = clampPage(page, limit)
	cutoff := util.StartOfDay(s.now())

	total, err := s.store.CountOverdue(ctx, ownerID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue tasks: %w", err)
	}

	tasks, err := s.store.ListOverdue(ctx, ownerID, cutoff, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue tasks: %w", err)
	}

	return &Page{Tasks: tasks, Pagination: NewPagination(page, limit, total)}, nil
}

// Stats returns the owner's task counts. Results are cached briefly in
// redis; a cache failure falls through to the store.
func (s *Service) Stats(ctx context.Context, ownerID int64) (*Stats, error) {
	key := statsKey(ownerID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var st Stats
			if json.Unmarshal(data, &st) == nil {
				metrics.IncrementStatsCache("hit")
				return &st, nil
			}
		}
		metrics.IncrementStatsCache("miss")
	}

	total, completed, pending, overdue, err := s.store.Stats(ctx, ownerID, util.StartOfDay(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to compute task stats: %w", err)
	}
	st := &Stats{
		TotalTasks:     total,
		CompletedTasks: completed,
		PendingTasks:   pending,
		OverdueTasks:   overdue,
	}

	if s.cache != nil {
		if data, err := json.Marshal(st); err == nil {
			if err := s.cache.Set(ctx, key, data, statsCacheTTL).Err(); err != nil {
				s.logger.Warn("Failed to cache task stats",
					zap.Int64("owner_id", ownerID),
					zap.Error(err),
				)
			}
		}
	}
	return st, nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	return page, limit
}

func statsKey(ownerID int64) string {
	return fmt.Sprintf("stats:%d", ownerID)
}

func (s *Service) invalidateStats(ctx context.Context, ownerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsKey(ownerID)).Err(); err != nil {
		s.logger.Warn("Failed to invalidate stats cache",
			zap.Int64("owner_id", ownerID),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(routingKey string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(routingKey, payload); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
