package store

import (
	"slices"

	"altivio-backend/internal/models"
)

// Match reports whether t satisfies every set field of the filter.
func (f TaskFilter) Match(t models.Task) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, t.ID) {
		return false
	}
	if len(f.ProjectIDs) > 0 && !slices.Contains(f.ProjectIDs, t.ProjectID) {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.HasAssignee && t.AssigneeID == "" {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if slices.Contains(f.ExcludeStatuses, t.Status) {
		return false
	}
	if f.DueFrom != nil || f.DueTo != nil || f.DueBefore != nil {
		if t.DueDate == nil {
			return false
		}
		if f.DueFrom != nil && t.DueDate.Before(*f.DueFrom) {
			return false
		}
		if f.DueTo != nil && t.DueDate.After(*f.DueTo) {
			return false
		}
		if f.DueBefore != nil && !t.DueDate.Before(*f.DueBefore) {
			return false
		}
	}
	return true
}

func (f UpdateFilter) Match(u models.DailyUpdate) bool {
	if len(f.TaskIDs) > 0 && !slices.Contains(f.TaskIDs, u.TaskID) {
		return false
	}
	if f.AuthorID != "" && u.AuthorID != f.AuthorID {
		return false
	}
	if f.Since != nil && u.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && u.CreatedAt.After(*f.Until) {
		return false
	}
	return true
}

func (f ProjectFilter) Match(p models.Project) bool {
	if f.InvolvesUser != "" && !p.Involves(f.InvolvesUser) {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

func (f UserFilter) Match(u models.User) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, u.ID) {
		return false
	}
	if len(f.Roles) > 0 && !slices.Contains(f.Roles, u.Role) {
		return false
	}
	if f.ActiveOnly && !u.IsActive {
		return false
	}
	return true
}

func (f NotificationFilter) Match(n models.Notification) bool {
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	return true
}
