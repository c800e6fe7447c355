package models

import "time"

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
)

// OpenStatuses are the statuses of tasks that still need work.
var OpenStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusBlocked}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

type Task struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"projectId"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Priority     TaskPriority `json:"priority"`
	Status       TaskStatus   `json:"status"`
	AssigneeID   string       `json:"assigneeId,omitempty"`
	CreatedBy    string       `json:"createdBy,omitempty"`
	StartDate    *time.Time   `json:"startDate,omitempty"`
	DueDate      *time.Time   `json:"dueDate,omitempty"`
	Progress     int          `json:"progress"`
	Blockers     []string     `json:"blockers"`
	AIConfidence int          `json:"aiConfidence"`
	Dependencies []string     `json:"dependencies"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (t Task) IsDone() bool { return t.Status == StatusDone }

// IsOverdue reports whether the task has a due date before now and is not done.
func (t Task) IsOverdue(now time.Time) bool {
	return !t.IsDone() && t.DueDate != nil && t.DueDate.Before(now)
}

// DailyUpdate is a progress note an author logs against a task.
// Progress and Blockers are snapshots and may be absent.
type DailyUpdate struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	AuthorID  string    `json:"authorId"`
	Note      string    `json:"note,omitempty"`
	Progress  *int      `json:"progress,omitempty"`
	Blockers  []string  `json:"blockers,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
