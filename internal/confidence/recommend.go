package confidence

import (
	"fmt"
	"sort"

	"altivio-backend/internal/models"
)

// Priority orders recommendations and insights.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns 0 for the most urgent priority. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// IsUrgent reports critical or high.
func (p Priority) IsUrgent() bool {
	return p == PriorityCritical || p == PriorityHigh
}

// SortByPriority stable-sorts items most urgent first, keeping rule order within a priority.
func SortByPriority[T any](items []T, priority func(T) Priority) {
	sort.SliceStable(items, func(i, j int) bool {
		return priority(items[i]).Rank() < priority(items[j]).Rank()
	})
}

type Recommendation struct {
	Priority Priority `json:"priority"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
	Blockers []string `json:"blockers,omitempty"`
}

// Recommend evaluates the task-level rules in a fixed order; each rule adds
// at most one recommendation and the result keeps that order.
func Recommend(task models.Task, factors Factors, daysLeft, progressDelta float64) []Recommendation {
	recs := []Recommendation{}

	switch {
	case daysLeft <= 1 && task.Progress < 90:
		recs = append(recs, Recommendation{
			Priority: PriorityCritical,
			Type:     "deadline",
			Message:  "Task is due very soon with low completion. Consider requesting deadline extension or additional resources.",
			Action:   "request_extension",
		})
	case daysLeft <= 3 && task.Progress < 70:
		recs = append(recs, Recommendation{
			Priority: PriorityHigh,
			Type:     "deadline",
			Message:  "Task may not be completed on time. Increase focus or break down remaining work.",
			Action:   "increase_priority",
		})
	}

	if progressDelta < -20 {
		behind := -roundHalfUp(progressDelta)
		recs = append(recs, Recommendation{
			Priority: PriorityHigh,
			Type:     "progress",
			Message:  fmt.Sprintf("Progress is %d%% behind schedule. Consider daily check-ins.", behind),
			Action:   "schedule_checkin",
		})
	}

	if n := len(task.Blockers); n > 0 {
		recs = append(recs, Recommendation{
			Priority: PriorityHigh,
			Type:     "blocker",
			Message:  fmt.Sprintf("%d blocker(s) identified. Address blockers to improve velocity.", n),
			Action:   "resolve_blockers",
			Blockers: append([]string(nil), task.Blockers...),
		})
	}

	if factors.ActivityScore < 4 {
		recs = append(recs, Recommendation{
			Priority: PriorityMedium,
			Type:     "activity",
			Message:  "Low recent activity on this task. Add daily updates to track progress.",
			Action:   "add_update",
		})
	}

	if task.Status == models.StatusBlocked {
		recs = append(recs, Recommendation{
			Priority: PriorityCritical,
			Type:     "status",
			Message:  "Task is marked as blocked. Escalate to manager if not resolved within 24 hours.",
			Action:   "escalate",
		})
	}

	return recs
}
