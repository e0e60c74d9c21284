package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskboard/internal/model"
	"taskboard/pkg/metrics"
)

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `id, owner_id, title, description, status, priority, category, due_date, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }, t *model.Task) error {
	return row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.Category,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}

func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "tasks", time.Since(start)) }()

	r.logger.Debug("Inserting task",
		zap.Int64("owner_id", t.OwnerID),
		zap.String("title", t.Title),
		zap.String("status", string(t.Status)),
	)
	query := `
        INSERT INTO tasks (owner_id, title, description, status, priority, category, due_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		t.OwnerID,
		t.Title,
		t.Description,
		t.Status,
		t.Priority,
		t.Category,
		t.DueDate,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert task",
			zap.Error(err),
			zap.Int64("owner_id", t.OwnerID),
		)
		return err
	}
	r.logger.Info("Task inserted",
		zap.Int64("task_id", t.ID),
		zap.Int64("owner_id", t.OwnerID),
	)
	return nil
}

// FindByOwner returns the task with the given id, but only if it
// belongs to ownerID. A task owned by someone else behaves exactly
// like a missing task (pgx.ErrNoRows).
func (r *TaskRepository) FindByOwner(ctx context.Context, taskID, ownerID int64) (*model.Task, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "tasks", time.Since(start)) }()

	query := `
        SELECT ` + taskColumns + `
        FROM tasks
        WHERE id = $1 AND owner_id = $2
    `
	var t model.Task
	if err := scanTask(r.db.QueryRow(ctx, query, taskID, ownerID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Update applies the non-nil fields to the task identified by
// (taskID, ownerID) and returns the updated row.
func (r *TaskRepository) Update(ctx context.Context, taskID, ownerID int64, status *model.Status, description *string) (*model.Task, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "tasks", time.Since(start)) }()

	query := `
        UPDATE tasks
        SET status      = COALESCE($3, status),
            description = COALESCE($4, description),
            updated_at  = NOW()
        WHERE id = $1 AND owner_id = $2
        RETURNING ` + taskColumns + `
    `
	var t model.Task
	if err := scanTask(r.db.QueryRow(ctx, query, taskID, ownerID, status, description), &t); err != nil {
		r.logger.Error("Failed to update task",
			zap.Error(err),
			zap.Int64("task_id", taskID),
			zap.Int64("owner_id", ownerID),
		)
		return nil, err
	}
	r.logger.Info("Task updated",
		zap.Int64("task_id", t.ID),
		zap.Int64("owner_id", ownerID),
	)
	return &t, nil
}

// Delete removes the task identified by (taskID, ownerID). It reports
// whether a row was actually deleted.
func (r *TaskRepository) Delete(ctx context.Context, taskID, ownerID int64) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("delete", "tasks", time.Since(start)) }()

	query := `
        DELETE FROM tasks
        WHERE id = $1 AND owner_id = $2
    `
	result, err := r.db.Exec(ctx, query, taskID, ownerID)
	if err != nil {
		r.logger.Error("Failed to delete task",
			zap.Error(err),
			zap.Int64("task_id", taskID),
			zap.Int64("owner_id", ownerID),
		)
		return false, err
	}
	deleted := result.RowsAffected() > 0
	if deleted {
		r.logger.Info("Task deleted",
			zap.Int64("task_id", taskID),
			zap.Int64("owner_id", ownerID),
		)
	}
	return deleted, nil
}

// ListByOwner returns a page of the owner's tasks, most recent first.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]model.Task, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "tasks", time.Since(start)) }()

	query := `
        SELECT ` + taskColumns + `
        FROM tasks
        WHERE owner_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to query tasks",
			zap.Error(err),
			zap.Int64("owner_id", ownerID),
		)
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountByOwner returns the total number of tasks the owner has.
func (r *TaskRepository) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("count", "tasks", time.Since(start)) }()

	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE owner_id = $1`,
		ownerID,
	).Scan(&count)
	return count, err
}

// ListOverdue returns a page of the owner's overdue tasks: due before
// the cutoff and not completed, soonest due date first.
func (r *TaskRepository) ListOverdue(ctx context.Context, ownerID int64, before time.Time, limit, offset int) ([]model.Task, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "tasks", time.Since(start)) }()

	query := `
        SELECT ` + taskColumns + `
        FROM tasks
        WHERE owner_id = $1
          AND due_date < $2
          AND status <> 'completed'
        ORDER BY due_date ASC
        LIMIT $3 OFFSET $4
    `
	rows, err := r.db.Query(ctx, query, ownerID, before, limit, offset)
	if err != nil {
		r.logger.Error("Failed to query overdue tasks",
			zap.Error(err),
			zap.Int64("owner_id", ownerID),
		)
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountOverdue returns the number of the owner's overdue tasks.
func (r *TaskRepository) CountOverdue(ctx context.Context, ownerID int64, before time.Time) (int, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("count", "tasks", time.Since(start)) }()

	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE owner_id = $1 AND due_date < $2 AND status <> 'completed'`,
		ownerID, before,
	).Scan(&count)
	return count, err
}

// Stats returns the owner's task counts in a single pass.
func (r *TaskRepository) Stats(ctx context.Context, ownerID int64, overdueBefore time.Time) (total, completed, pending, overdue int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("stats", "tasks", time.Since(start)) }()

	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status = 'completed'),
            COUNT(*) FILTER (WHERE status = 'pending'),
            COUNT(*) FILTER (WHERE due_date < $2 AND status <> 'completed')
        FROM tasks
        WHERE owner_id = $1
    `
	err = r.db.QueryRow(ctx, query, ownerID, overdueBefore).Scan(&total, &completed, &pending, &overdue)
	if err != nil {
		r.logger.Error("Failed to query task stats",
			zap.Error(err),
			zap.Int64("owner_id", ownerID),
		)
	}
	return total, completed, pending, overdue, err
}
