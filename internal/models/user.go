package models

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleDev     Role = "dev"
)

// CanManage reports whether the role sees team-level data.
func (r Role) CanManage() bool {
	return r == RoleAdmin || r == RoleManager
}

type NotificationPreferences struct {
	Email             bool   `json:"email"`
	Push              bool   `json:"push"`
	EODReminder       bool   `json:"eodReminder"`
	DeadlineAlerts    bool   `json:"deadlineAlerts"`
	TaskAssignments   bool   `json:"taskAssignments"`
	AIRecommendations bool   `json:"aiRecommendations"`
	QuietHoursStart   string `json:"quietHoursStart"` // HH:mm
	QuietHoursEnd     string `json:"quietHoursEnd"`
}

func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		Email:             true,
		Push:              true,
		EODReminder:       true,
		DeadlineAlerts:    true,
		TaskAssignments:   true,
		AIRecommendations: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}
}

type User struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Email       string                  `json:"email"`
	Role        Role                    `json:"role"`
	IsActive    bool                    `json:"isActive"`
	Timezone    string                  `json:"timezone,omitempty"`
	Preferences NotificationPreferences `json:"notificationPreferences"`
}

// ShouldReceiveNotification maps a notification type onto the user's opt-outs.
// Types without a preference are always delivered.
func (u User) ShouldReceiveNotification(t NotificationType) bool {
	p := u.Preferences
	switch t {
	case NotificationTaskAssigned:
		return p.TaskAssignments
	case NotificationEODReminder:
		return p.EODReminder
	case NotificationDeadlineSoon:
		return p.DeadlineAlerts
	case NotificationAIRecommendation:
		return p.AIRecommendations
	default:
		return true
	}
}

// IsQuietHours reports whether now falls inside the user's quiet window,
// evaluated in the user's timezone. The start is inclusive, the end exclusive,
// and windows may wrap past midnight (22:00 to 08:00).
func (u User) IsQuietHours(now time.Time) bool {
	start, ok := parseClock(u.Preferences.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := parseClock(u.Preferences.QuietHoursEnd)
	if !ok {
		return false
	}

	local := now.In(u.Location())
	current := local.Hour()*60 + local.Minute()

	if start > end {
		return current >= start || current < end
	}
	return current >= start && current < end
}

func (u User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseClock(s string) (int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}
