package task

import "errors"

var (
	// ErrMissingFields is returned when a create request lacks a title
	// or a due date.
	ErrMissingFields = errors.New("title and due date are required")

	// ErrInvalidStatus is returned for a status outside {pending, completed}.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidPriority is returned for a priority outside {Low, Medium, High}.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidCategory is returned for an unknown category.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrTaskNotFound is returned when a task does not exist for the
	// calling owner. A task owned by someone else is reported the same
	// way, so callers cannot probe for foreign task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDueDateInFuture rejects completing a task before its due day.
	ErrDueDateInFuture = errors.New("task cannot be marked as completed if its due date is in the future")
)
