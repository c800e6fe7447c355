// Package recommendations builds user-level recommendation feeds and
// team insights on top of the confidence scores.
package recommendations

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"altivio-backend/internal/confidence"
	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

const (
	week               = 7 * 24 * time.Hour
	dueSoonWindow      = 48 * time.Hour
	dueSoonProgressMax = 80
	minUpdateDays      = 3
	workloadLimit      = 5
	lowConfidence      = 50
	overloadTasks      = 10
	overloadUrgent     = 3
)

type Store interface {
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	ListUpdates(ctx context.Context, f store.UpdateFilter) ([]models.DailyUpdate, error)
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]models.Project, error)
	ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error)
}

// Scorer is satisfied by *confidence.Service.
type Scorer interface {
	Score(ctx context.Context, task models.Task) (confidence.Result, error)
	ProjectHealthSummary(ctx context.Context, projectID string) (*confidence.HealthSummary, error)
	Now() time.Time
}

type TaskRef struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	DueDate    *time.Time           `json:"dueDate,omitempty"`
	Progress   *int                 `json:"progress,omitempty"`
	Blockers   []string             `json:"blockers,omitempty"`
	Confidence *int                 `json:"confidence,omitempty"`
	RiskLevel  confidence.RiskLevel `json:"riskLevel,omitempty"`
}

type Recommendation struct {
	ID       string              `json:"id"`
	Priority confidence.Priority `json:"priority"`
	Type     string              `json:"type"`
	Title    string              `json:"title"`
	Message  string              `json:"message"`
	Action   string              `json:"action"`
	Tasks    []TaskRef           `json:"tasks,omitempty"`
}

type Service struct {
	store  Store
	scorer Scorer
	loc    *time.Location
	logger *slog.Logger
}

func NewService(st Store, scorer Scorer, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		scorer: scorer,
		loc:    loc,
		logger: logger.With("component", "recommendations"),
	}
}

func (s *Service) activeTasks(ctx context.Context, userID string) ([]models.Task, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{
		AssigneeID:      userID,
		ExcludeStatuses: []models.TaskStatus{models.StatusDone},
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks of %s: %w", userID, err)
	}
	return tasks, nil
}

// UserRecommendations evaluates the user-level rules over the user's open
// tasks and returns them most urgent first.
func (s *Service) UserRecommendations(ctx context.Context, userID string) ([]Recommendation, error) {
	tasks, err := s.activeTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.scorer.Now()
	weekAgo := now.Add(-week)
	updates, err := s.store.ListUpdates(ctx, store.UpdateFilter{AuthorID: userID, Since: &weekAgo})
	if err != nil {
		return nil, fmt.Errorf("list updates of %s: %w", userID, err)
	}

	recs := []Recommendation{}

	var overdue []TaskRef
	for _, t := range tasks {
		if t.DueDate != nil && t.DueDate.Before(now) {
			overdue = append(overdue, TaskRef{ID: t.ID, Title: t.Title, DueDate: t.DueDate})
		}
	}
	if len(overdue) > 0 {
		recs = append(recs, Recommendation{
			ID:       "overdue-tasks",
			Priority: confidence.PriorityCritical,
			Type:     "deadline",
			Title:    "Overdue Tasks",
			Message:  fmt.Sprintf("You have %d overdue task(s). Consider updating status or requesting extensions.", len(overdue)),
			Action:   "view_overdue",
			Tasks:    overdue,
		})
	}

	soon := now.Add(dueSoonWindow)
	var upcoming []TaskRef
	for _, t := range tasks {
		if t.DueDate == nil || t.DueDate.Before(now) || t.DueDate.After(soon) || t.Progress >= dueSoonProgressMax {
			continue
		}
		p := t.Progress
		upcoming = append(upcoming, TaskRef{ID: t.ID, Title: t.Title, Progress: &p})
	}
	if len(upcoming) > 0 {
		recs = append(recs, Recommendation{
			ID:       "upcoming-deadlines",
			Priority: confidence.PriorityHigh,
			Type:     "deadline",
			Title:    "Upcoming Deadlines",
			Message:  fmt.Sprintf("%d task(s) due in the next 48 hours need attention.", len(upcoming)),
			Action:   "focus_tasks",
			Tasks:    upcoming,
		})
	}

	if days := s.distinctDays(updates); days < minUpdateDays && len(tasks) > 0 {
		recs = append(recs, Recommendation{
			ID:       "low-update-frequency",
			Priority: confidence.PriorityMedium,
			Type:     "activity",
			Title:    "Low Update Frequency",
			Message:  fmt.Sprintf("You've only logged updates on %d day(s) this week. Regular updates help track progress and identify blockers early.", days),
			Action:   "add_update",
		})
	}

	var blocked []TaskRef
	for _, t := range tasks {
		if t.Status == models.StatusBlocked {
			blocked = append(blocked, TaskRef{ID: t.ID, Title: t.Title, Blockers: t.Blockers})
		}
	}
	if len(blocked) > 0 {
		recs = append(recs, Recommendation{
			ID:       "blocked-tasks",
			Priority: confidence.PriorityHigh,
			Type:     "blocker",
			Title:    "Blocked Tasks",
			Message:  fmt.Sprintf("%d task(s) are blocked. Escalate if blockers persist beyond 24 hours.", len(blocked)),
			Action:   "resolve_blockers",
			Tasks:    blocked,
		})
	}

	heavy := 0
	for _, t := range tasks {
		if (t.Priority == models.PriorityUrgent || t.Priority == models.PriorityHigh) && !t.IsDone() {
			heavy++
		}
	}
	if heavy > workloadLimit {
		recs = append(recs, Recommendation{
			ID:       "high-workload",
			Priority: confidence.PriorityHigh,
			Type:     "workload",
			Title:    "High Workload Detected",
			Message:  fmt.Sprintf("You have %d high-priority/urgent tasks. Consider discussing priorities with your manager.", heavy),
			Action:   "review_priorities",
		})
	}

	touched := make(map[string]bool, len(updates))
	for _, u := range updates {
		touched[u.TaskID] = true
	}
	var stale []TaskRef
	for _, t := range tasks {
		if t.Status == models.StatusInProgress && !touched[t.ID] {
			stale = append(stale, TaskRef{ID: t.ID, Title: t.Title})
		}
	}
	if len(stale) > 0 {
		recs = append(recs, Recommendation{
			ID:       "stale-tasks",
			Priority: confidence.PriorityMedium,
			Type:     "progress",
			Title:    "Stale Tasks",
			Message:  fmt.Sprintf("%d in-progress task(s) haven't been updated in 7 days.", len(stale)),
			Action:   "update_progress",
			Tasks:    stale,
		})
	}

	var risky []TaskRef
	for _, t := range tasks {
		res, err := s.scorer.Score(ctx, t)
		if err != nil {
			s.logger.Warn("confidence failed, task skipped", "user", userID, "task", t.ID, "err", err)
			continue
		}
		if res.Score < lowConfidence {
			score := res.Score
			risky = append(risky, TaskRef{ID: t.ID, Title: t.Title, Confidence: &score, RiskLevel: res.RiskLevel})
		}
	}
	if len(risky) > 0 {
		recs = append(recs, Recommendation{
			ID:       "low-confidence-tasks",
			Priority: confidence.PriorityHigh,
			Type:     "ai_insight",
			Title:    "At-Risk Tasks",
			Message:  fmt.Sprintf("AI analysis indicates %d task(s) may not be completed on time.", len(risky)),
			Action:   "review_risks",
			Tasks:    risky,
		})
	}

	confidence.SortByPriority(recs, func(r Recommendation) confidence.Priority { return r.Priority })
	return recs, nil
}

func (s *Service) distinctDays(updates []models.DailyUpdate) int {
	days := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		days[u.CreatedAt.In(s.loc).Format(time.DateOnly)] = struct{}{}
	}
	return len(days)
}

type MemberLoad struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	TaskCount    int    `json:"taskCount"`
	UrgentCount  int    `json:"urgentCount"`
	BlockedCount int    `json:"blockedCount,omitempty"`
}

type Insight struct {
	ID          string                    `json:"id"`
	Type        string                    `json:"type"`
	Priority    confidence.Priority       `json:"priority"`
	Title       string                    `json:"title"`
	Message     string                    `json:"message"`
	Action      string                    `json:"action,omitempty"`
	ProjectID   string                    `json:"projectId,omitempty"`
	ProjectName string                    `json:"projectName,omitempty"`
	Health      *confidence.HealthSummary `json:"health,omitempty"`
	Members     []MemberLoad              `json:"members,omitempty"`
}

// TeamInsights reports at-risk projects, overloaded members and blocked
// work across the active projects the manager owns or belongs to.
func (s *Service) TeamInsights(ctx context.Context, managerID string) ([]Insight, error) {
	projects, err := s.store.ListProjects(ctx, store.ProjectFilter{
		InvolvesUser: managerID,
		Status:       models.ProjectActive,
	})
	if err != nil {
		return nil, fmt.Errorf("list projects of %s: %w", managerID, err)
	}

	insights := []Insight{}
	if len(projects) == 0 {
		return insights, nil
	}

	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)

		health, err := s.scorer.ProjectHealthSummary(ctx, p.ID)
		if err != nil {
			s.logger.Warn("project health failed, project skipped", "project", p.ID, "err", err)
			continue
		}
		if health.RiskLevel != confidence.RiskCritical && health.RiskLevel != confidence.RiskHigh {
			continue
		}
		insights = append(insights, Insight{
			ID:          "project-" + p.ID,
			Type:        "project_health",
			Priority:    confidence.Priority(health.RiskLevel),
			Title:       "Project at Risk: " + p.Name,
			Message:     fmt.Sprintf("%d of %d tasks are at risk. Overall health: %d%%", health.AtRiskTasks, health.TaskCount, health.OverallHealth),
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Health:      health,
		})
	}

	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{
		ProjectIDs:      ids,
		ExcludeStatuses: []models.TaskStatus{models.StatusDone},
	})
	if err != nil {
		return nil, fmt.Errorf("list team tasks: %w", err)
	}
	loads := groupByAssignee(tasks)

	var overloaded []MemberLoad
	for _, m := range loads {
		if m.TaskCount > overloadTasks || m.UrgentCount > overloadUrgent {
			overloaded = append(overloaded, m)
		}
	}
	if len(overloaded) > 0 {
		s.attachNames(ctx, overloaded)
		insights = append(insights, Insight{
			ID:       "overloaded-members",
			Type:     "team_workload",
			Priority: confidence.PriorityHigh,
			Title:    "Overloaded Team Members",
			Message:  fmt.Sprintf("%d team member(s) have high workload.", len(overloaded)),
			Members:  overloaded,
		})
	}

	members, totalBlocked := 0, 0
	for _, m := range loads {
		if m.BlockedCount > 0 {
			members++
			totalBlocked += m.BlockedCount
		}
	}
	if members > 0 {
		insights = append(insights, Insight{
			ID:       "team-blockers",
			Type:     "team_blockers",
			Priority: confidence.PriorityHigh,
			Title:    "Team Blockers",
			Message:  fmt.Sprintf("%d blocked task(s) across %d team member(s).", totalBlocked, members),
			Action:   "review_blockers",
		})
	}

	return insights, nil
}

// groupByAssignee skips unassigned tasks and returns loads ordered by user id.
func groupByAssignee(tasks []models.Task) []MemberLoad {
	byUser := map[string]*MemberLoad{}
	for _, t := range tasks {
		if t.AssigneeID == "" {
			continue
		}
		m, ok := byUser[t.AssigneeID]
		if !ok {
			m = &MemberLoad{UserID: t.AssigneeID}
			byUser[t.AssigneeID] = m
		}
		m.TaskCount++
		if t.Priority == models.PriorityUrgent {
			m.UrgentCount++
		}
		if t.Status == models.StatusBlocked {
			m.BlockedCount++
		}
	}

	out := make([]MemberLoad, 0, len(byUser))
	for _, m := range byUser {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *Service) attachNames(ctx context.Context, members []MemberLoad) {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.store.ListUsers(ctx, store.UserFilter{IDs: ids})
	if err != nil {
		s.logger.Warn("member lookup failed", "err", err)
	}
	for i := range members {
		members[i].Name = "Unknown"
		idx := slices.IndexFunc(users, func(u models.User) bool { return u.ID == members[i].UserID })
		if idx >= 0 {
			members[i].Name = users[idx].Name
		}
	}
}
