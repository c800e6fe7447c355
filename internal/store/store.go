// Package store defines the document-store contract the services borrow
// tasks, updates, users, projects and notifications through.
package store

import (
	"context"
	"errors"
	"time"

	"altivio-backend/internal/models"
)

// ErrNotFound is returned when a record looked up by id does not exist.
var ErrNotFound = errors.New("not found")

type TaskFilter struct {
	IDs             []string
	ProjectIDs      []string
	AssigneeID      string
	HasAssignee     bool
	Statuses        []models.TaskStatus
	ExcludeStatuses []models.TaskStatus
	DueFrom         *time.Time // inclusive
	DueTo           *time.Time // inclusive
	DueBefore       *time.Time // exclusive
}

type UpdateFilter struct {
	TaskIDs  []string
	AuthorID string
	Since    *time.Time // inclusive
	Until    *time.Time // inclusive
}

type ProjectFilter struct {
	// InvolvesUser matches projects the user owns or is a member of.
	InvolvesUser string
	Status       models.ProjectStatus
}

type UserFilter struct {
	IDs        []string
	Roles      []models.Role
	ActiveOnly bool
}

type NotificationFilter struct {
	UserID string
	Type   models.NotificationType
	Read   *bool
	Limit  int
	Offset int
}

type TaskStore interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// ListTasks returns matching tasks, most recently created first.
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	SaveTask(ctx context.Context, t *models.Task) error
	UpdateTaskConfidence(ctx context.Context, id string, score int) error
}

type UpdateStore interface {
	CreateUpdate(ctx context.Context, u *models.DailyUpdate) error
	// ListUpdates returns matching updates, newest first.
	ListUpdates(ctx context.Context, f UpdateFilter) ([]models.DailyUpdate, error)
	CountUpdates(ctx context.Context, f UpdateFilter) (int, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]models.Project, error)
	SaveProject(ctx context.Context, p *models.Project) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	// ListNotifications returns matching notifications, newest first.
	ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error)
	CountNotifications(ctx context.Context, f NotificationFilter) (int, error)
	CountUnreadByType(ctx context.Context, userID string) (map[models.NotificationType]int, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
	DeleteReadNotifications(ctx context.Context, userID string) (int64, error)
}

// Store is the full contract implemented by the memory and SQL backends.
type Store interface {
	TaskStore
	UpdateStore
	UserStore
	ProjectStore
	NotificationStore
	Close() error
}
