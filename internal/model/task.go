package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategoryHealth   Category = "Health"
	CategoryStudy    Category = "Study"
	CategoryFinance  Category = "Finance"
	CategoryOther    Category = "Other"
)

type Task struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	Category    Category  `json:"category"`
	DueDate     time.Time `json:"dueDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s Status) bool {
	return s == StatusPending || s == StatusCompleted
}

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p Priority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryHealth, CategoryStudy, CategoryFinance, CategoryOther:
		return true
	}
	return false
}
