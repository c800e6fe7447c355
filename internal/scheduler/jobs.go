package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"altivio-backend/internal/ai"
	"altivio-backend/internal/confidence"
	"altivio-backend/internal/models"
	"altivio-backend/internal/notify"
	"altivio-backend/internal/recommendations"
	"altivio-backend/internal/store"
)

const (
	JobEODReminder     = "eod-reminder"
	JobDeadlineAlert   = "deadline-alert"
	JobConfidence      = "confidence-recalc"
	JobOverdueCheck    = "overdue-check"
	JobDailyBriefing   = "daily-briefing"
	JobRecommendations = "recommendation-digest"
	JobManagerInsights = "manager-insights"
	JobWeeklySummary   = "weekly-summary"

	deadlineWindow = 24 * time.Hour
	retroWindow    = 14 * 24 * time.Hour
	dueLayout      = "Jan 2, 2006 3:04 PM"
)

type Store interface {
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	UpdateTaskConfidence(ctx context.Context, id string, score int) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error)
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]models.Project, error)
}

type Scorer interface {
	CalculateTaskConfidence(ctx context.Context, taskID string) (*confidence.Result, error)
	ProjectHealthSummary(ctx context.Context, projectID string) (*confidence.HealthSummary, error)
}

type Recommender interface {
	UserRecommendations(ctx context.Context, userID string) ([]recommendations.Recommendation, error)
	TeamInsights(ctx context.Context, managerID string) ([]recommendations.Insight, error)
}

// Enricher is the optional LLM layer. Any error it returns is treated as
// "no enrichment".
type Enricher interface {
	IsAvailable() bool
	GenerateDailyInsights(ctx context.Context, userID string) (*ai.DailyInsights, error)
	GenerateTeamSummary(ctx context.Context, managerID string) (*ai.TeamSummary, error)
	GenerateSprintRetrospective(ctx context.Context, projectID string, from, to time.Time) (*ai.Retrospective, error)
}

type Notifier interface {
	Notify(ctx context.Context, m notify.Message) (*models.Notification, error)
}

var _ Enricher = (*ai.Service)(nil)

type Deps struct {
	Store       Store
	Scorer      Scorer
	Recommender Recommender
	Enricher    Enricher
	Notifier    Notifier
	AITimeout   time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

type Jobs struct {
	store     Store
	scorer    Scorer
	recs      Recommender
	enricher  Enricher
	notifier  Notifier
	aiTimeout time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewJobs(d Deps) *Jobs {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.AITimeout <= 0 {
		d.AITimeout = 20 * time.Second
	}
	return &Jobs{
		store:     d.Store,
		scorer:    d.Scorer,
		recs:      d.Recommender,
		enricher:  d.Enricher,
		notifier:  d.Notifier,
		aiTimeout: d.AITimeout,
		now:       d.Now,
		logger:    d.Logger.With("component", "jobs"),
	}
}

// All returns every job with its cron spec.
func (j *Jobs) All() []Job {
	return []Job{
		{Name: JobEODReminder, Spec: "0 18 * * *", Run: j.EODReminder},
		{Name: JobDeadlineAlert, Spec: "0 * * * *", Run: j.DeadlineAlert},
		{Name: JobConfidence, Spec: "0 */6 * * *", Run: j.RecalculateConfidence},
		{Name: JobOverdueCheck, Spec: "0 */4 * * *", Run: j.OverdueCheck},
		{Name: JobDailyBriefing, Spec: "30 8 * * *", Run: j.DailyBriefing},
		{Name: JobRecommendations, Spec: "0 9 * * *", Run: j.RecommendationDigest},
		{Name: JobManagerInsights, Spec: "0 10 * * 1-5", Run: j.ManagerInsights},
		{Name: JobWeeklySummary, Spec: "0 9 * * 1", Run: j.WeeklySummary},
	}
}

func (j *Jobs) aiReady() bool {
	return j.enricher != nil && j.enricher.IsAvailable()
}

func (j *Jobs) allowed(u models.User, t models.NotificationType) bool {
	return u.ShouldReceiveNotification(t) && !u.IsQuietHours(j.now())
}

// recipient loads a user and applies their preferences. A missing user is
// a skip, any other lookup error a failure.
func (j *Jobs) recipient(ctx context.Context, userID string, t models.NotificationType, res *Result) (*models.User, bool) {
	u, err := j.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			res.Skipped++
		} else {
			res.Failed++
			j.logger.Warn("load recipient failed", "user", userID, "err", err)
		}
		return nil, false
	}
	if !j.allowed(*u, t) {
		res.Skipped++
		return nil, false
	}
	return u, true
}

func (j *Jobs) send(ctx context.Context, m notify.Message, res *Result) {
	if _, err := j.notifier.Notify(ctx, m); err != nil {
		res.Failed++
		j.logger.Error("notify failed", "user", m.UserID, "type", m.Type, "err", err)
		return
	}
	res.Processed++
}

func countByAssignee(tasks []models.Task) ([]string, map[string][]models.Task) {
	groups := map[string][]models.Task{}
	for _, t := range tasks {
		if t.AssigneeID == "" {
			continue
		}
		groups[t.AssigneeID] = append(groups[t.AssigneeID], t)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, groups
}

func (j *Jobs) EODReminder(ctx context.Context) (Result, error) {
	var res Result
	tasks, err := j.store.ListTasks(ctx, store.TaskFilter{Statuses: models.OpenStatuses, HasAssignee: true})
	if err != nil {
		return res, fmt.Errorf("list open tasks: %w", err)
	}

	ids, groups := countByAssignee(tasks)
	for _, userID := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, ok := j.recipient(ctx, userID, models.NotificationEODReminder, &res); !ok {
			continue
		}
		j.send(ctx, notify.Message{
			UserID:    userID,
			Type:      models.NotificationEODReminder,
			Title:     "End of day update",
			Message:   "You have " + strconv.Itoa(len(groups[userID])) + " active task(s). Add your update.",
			ActionURL: "/tasks",
		}, &res)
	}
	return res, nil
}

func (j *Jobs) DeadlineAlert(ctx context.Context) (Result, error) {
	var res Result
	now := j.now()
	soon := now.Add(deadlineWindow)
	tasks, err := j.store.ListTasks(ctx, store.TaskFilter{
		Statuses:    models.OpenStatuses,
		HasAssignee: true,
		DueFrom:     &now,
		DueTo:       &soon,
	})
	if err != nil {
		return res, fmt.Errorf("list tasks due soon: %w", err)
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		u, ok := j.recipient(ctx, t.AssigneeID, models.NotificationDeadlineSoon, &res)
		if !ok {
			continue
		}
		j.send(ctx, notify.Message{
			UserID:    t.AssigneeID,
			Type:      models.NotificationDeadlineSoon,
			Title:     "Deadline approaching",
			Message:   fmt.Sprintf("%q is due by %s.", t.Title, t.DueDate.In(u.Location()).Format(dueLayout)),
			ActionURL: "/tasks/" + t.ID,
		}, &res)
	}
	return res, nil
}

// RecalculateConfidence rescores every open task. A task that fails to
// load or save is logged and the batch moves on.
func (j *Jobs) RecalculateConfidence(ctx context.Context) (Result, error) {
	var res Result
	tasks, err := j.store.ListTasks(ctx, store.TaskFilter{ExcludeStatuses: []models.TaskStatus{models.StatusDone}})
	if err != nil {
		return res, fmt.Errorf("list open tasks: %w", err)
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		conf, err := j.scorer.CalculateTaskConfidence(ctx, t.ID)
		if err != nil {
			res.Failed++
			j.logger.Error("confidence failed", "task", t.ID, "err", err)
			continue
		}
		if err := j.store.UpdateTaskConfidence(ctx, t.ID, conf.Score); err != nil {
			res.Failed++
			j.logger.Error("persist confidence failed", "task", t.ID, "err", err)
			continue
		}
		res.Processed++
	}
	return res, nil
}

type overdueRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (j *Jobs) OverdueCheck(ctx context.Context) (Result, error) {
	var res Result
	now := j.now()
	tasks, err := j.store.ListTasks(ctx, store.TaskFilter{
		ExcludeStatuses: []models.TaskStatus{models.StatusDone},
		HasAssignee:     true,
		DueBefore:       &now,
	})
	if err != nil {
		return res, fmt.Errorf("list overdue tasks: %w", err)
	}

	ids, groups := countByAssignee(tasks)
	for _, userID := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, ok := j.recipient(ctx, userID, models.NotificationDeadlineSoon, &res); !ok {
			continue
		}
		refs := make([]overdueRef, 0, len(groups[userID]))
		for _, t := range groups[userID] {
			refs = append(refs, overdueRef{ID: t.ID, Title: t.Title})
		}
		j.send(ctx, notify.Message{
			UserID:    userID,
			Type:      models.NotificationDeadlineSoon,
			Title:     "Overdue Tasks Alert",
			Message:   fmt.Sprintf("You have %d overdue task(s) that need attention.", len(refs)),
			ActionURL: "/tasks?filter=overdue",
			Meta:      map[string]any{"overdueTasks": refs},
		}, &res)
	}
	j.logger.Info("overdue check", "overdue", len(tasks))
	return res, nil
}

func (j *Jobs) activeUsers(ctx context.Context, roles ...models.Role) ([]models.User, error) {
	users, err := j.store.ListUsers(ctx, store.UserFilter{ActiveOnly: true, Roles: roles})
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// RecommendationDigest notifies each user of their most pressing
// recommendation, if any is critical or high.
func (j *Jobs) RecommendationDigest(ctx context.Context) (Result, error) {
	var res Result
	users, err := j.activeUsers(ctx)
	if err != nil {
		return res, err
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !j.allowed(u, models.NotificationAIRecommendation) {
			res.Skipped++
			continue
		}
		recs, err := j.recs.UserRecommendations(ctx, u.ID)
		if err != nil {
			res.Failed++
			j.logger.Error("recommendations failed", "user", u.ID, "err", err)
			continue
		}

		var top *recommendations.Recommendation
		for i := range recs {
			if recs[i].Priority.IsUrgent() {
				top = &recs[i]
				break
			}
		}
		if top == nil {
			res.Skipped++
			continue
		}
		j.send(ctx, notify.Message{
			UserID:    u.ID,
			Type:      models.NotificationAIRecommendation,
			Title:     "AI Insight: " + top.Title,
			Message:   top.Message,
			ActionURL: "/dashboard/recommendations",
			Meta:      map[string]any{"totalRecommendations": len(recs)},
		}, &res)
	}
	return res, nil
}

// DailyBriefing is skipped entirely when the LLM is not configured.
func (j *Jobs) DailyBriefing(ctx context.Context) (Result, error) {
	var res Result
	if !j.aiReady() {
		j.logger.Info("llm unavailable, daily briefing skipped")
		return res, nil
	}
	users, err := j.activeUsers(ctx)
	if err != nil {
		return res, err
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !j.allowed(u, models.NotificationAIRecommendation) {
			res.Skipped++
			continue
		}

		actx, cancel := context.WithTimeout(ctx, j.aiTimeout)
		insights, err := j.enricher.GenerateDailyInsights(actx, u.ID)
		cancel()
		if err != nil {
			res.Skipped++
			j.logger.Warn("AI daily insights failed, continue", "user", u.ID, "err", err)
			continue
		}

		hasRisk := insights.RiskAlert != nil && *insights.RiskAlert != ""
		if !hasRisk && insights.TopPriority == "" {
			res.Skipped++
			continue
		}
		msg := insights.Summary
		if msg == "" {
			msg = insights.TopPriority
		}
		j.send(ctx, notify.Message{
			UserID:    u.ID,
			Type:      models.NotificationAIRecommendation,
			Title:     "Your Daily AI Briefing",
			Message:   msg,
			ActionURL: "/dashboard/ai-insights",
			Meta:      map[string]any{"source": "gemini", "insights": insights},
		}, &res)
	}
	return res, nil
}

// ManagerInsights prefers the LLM team summary and falls back to the
// rule-based insights when it is unavailable or fails.
func (j *Jobs) ManagerInsights(ctx context.Context) (Result, error) {
	var res Result
	managers, err := j.activeUsers(ctx, models.RoleManager, models.RoleAdmin)
	if err != nil {
		return res, err
	}

	for _, m := range managers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !j.allowed(m, models.NotificationAIRecommendation) {
			res.Skipped++
			continue
		}

		var (
			message  string
			insights any
		)
		if j.aiReady() {
			actx, cancel := context.WithTimeout(ctx, j.aiTimeout)
			summary, err := j.enricher.GenerateTeamSummary(actx, m.ID)
			cancel()
			if err != nil {
				j.logger.Warn("AI team summary failed, continue", "manager", m.ID, "err", err)
			} else {
				insights = summary
				message = summary.Summary
				if message == "" {
					message = fmt.Sprintf("Team health score: %d%%", summary.TeamHealthScore)
				}
			}
		}

		if insights == nil {
			rules, err := j.recs.TeamInsights(ctx, m.ID)
			if err != nil {
				res.Failed++
				j.logger.Error("team insights failed", "manager", m.ID, "err", err)
				continue
			}
			var critical []recommendations.Insight
			for _, in := range rules {
				if in.Priority.IsUrgent() {
					critical = append(critical, in)
				}
			}
			if len(critical) > 0 {
				message = fmt.Sprintf("%d issue(s) need attention. %s", len(critical), critical[0].Message)
				insights = map[string]any{"criticalInsights": critical}
			}
		}

		if message == "" {
			res.Skipped++
			continue
		}
		j.send(ctx, notify.Message{
			UserID:    m.ID,
			Type:      models.NotificationAIRecommendation,
			Title:     "Team Health Alert",
			Message:   message,
			ActionURL: "/dashboard/team-insights",
			Meta:      map[string]any{"insights": insights},
		}, &res)
	}
	return res, nil
}

func (j *Jobs) WeeklySummary(ctx context.Context) (Result, error) {
	var res Result
	projects, err := j.store.ListProjects(ctx, store.ProjectFilter{Status: models.ProjectActive})
	if err != nil {
		return res, fmt.Errorf("list active projects: %w", err)
	}

	for _, p := range projects {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if p.OwnerID == "" {
			res.Skipped++
			continue
		}
		health, err := j.scorer.ProjectHealthSummary(ctx, p.ID)
		if err != nil {
			res.Failed++
			j.logger.Error("project health failed", "project", p.ID, "err", err)
			continue
		}
		if health.TaskCount == 0 {
			res.Skipped++
			continue
		}
		if _, ok := j.recipient(ctx, p.OwnerID, models.NotificationGeneric, &res); !ok {
			continue
		}

		message := fmt.Sprintf("Health: %d%%. %d tasks, %d at risk.", health.OverallHealth, health.TaskCount, health.AtRiskTasks)
		var retro *ai.Retrospective
		if j.aiReady() {
			now := j.now()
			actx, cancel := context.WithTimeout(ctx, j.aiTimeout)
			retro, err = j.enricher.GenerateSprintRetrospective(actx, p.ID, now.Add(-retroWindow), now)
			cancel()
			if err != nil {
				retro = nil
				j.logger.Warn("AI retrospective failed, continue", "project", p.ID, "err", err)
			} else if retro.VelocitySummary != "" {
				message = retro.VelocitySummary
			}
		}

		j.send(ctx, notify.Message{
			UserID:    p.OwnerID,
			Type:      models.NotificationGeneric,
			Title:     "Weekly Summary: " + p.Name,
			Message:   message,
			ActionURL: "/projects/" + p.ID,
			Meta:      map[string]any{"health": health, "retrospective": retro},
		}, &res)
	}
	return res, nil
}
