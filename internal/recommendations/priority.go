package recommendations

import (
	"time"

	"altivio-backend/internal/models"
)

var typeScores = map[models.NotificationType]int{
	models.NotificationDeadlineSoon:     90,
	models.NotificationTaskAssigned:     70,
	models.NotificationAIRecommendation: 60,
	models.NotificationEODReminder:      50,
	models.NotificationGeneric:          30,
}

// NotificationScore ranks a notification for display ordering, 0 to 100.
// Unread and fresh notifications rank higher; deadline alerts get a boost
// when the user already has overdue work.
func NotificationScore(n models.Notification, hasOverdue bool, now time.Time) int {
	score, ok := typeScores[n.Type]
	if !ok {
		score = 50
	}
	if !n.Read {
		score += 20
	}

	switch age := now.Sub(n.CreatedAt); {
	case age < time.Hour:
		score += 15
	case age < 6*time.Hour:
		score += 10
	case age > 24*time.Hour:
		score -= 10
	}

	if hasOverdue && n.Type == models.NotificationDeadlineSoon {
		score += 10
	}
	return min(100, max(0, score))
}
