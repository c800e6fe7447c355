package models

import (
	"slices"
	"time"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
)

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Key         string        `json:"key"`
	Description string        `json:"description,omitempty"`
	OwnerID     string        `json:"ownerId"`
	MemberIDs   []string      `json:"members"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Involves reports whether the user owns or is a member of the project.
func (p Project) Involves(userID string) bool {
	return p.OwnerID == userID || slices.Contains(p.MemberIDs, userID)
}

type NotificationType string

const (
	NotificationTaskAssigned     NotificationType = "task_assigned"
	NotificationTaskUpdate       NotificationType = "task_update"
	NotificationEODReminder      NotificationType = "eod_reminder"
	NotificationDeadlineSoon     NotificationType = "deadline_soon"
	NotificationGeneric          NotificationType = "generic"
	NotificationAIRecommendation NotificationType = "ai_recommendation"
	NotificationProjectUpdate    NotificationType = "project_update"
	NotificationBlockerAlert     NotificationType = "blocker_alert"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	ActionURL string           `json:"actionUrl,omitempty"`
	Meta      map[string]any   `json:"meta,omitempty"`
	Read      bool             `json:"read"`
	SeenAt    *time.Time       `json:"seenAt,omitempty"`
	Priority  string           `json:"priority"`
	CreatedAt time.Time        `json:"createdAt"`
}
