package confidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

// Store is the slice of the document store the service reads from.
type Store interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	CountUpdates(ctx context.Context, f store.UpdateFilter) (int, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "confidence")
	return s
}

func (s *Service) Now() time.Time {
	return s.now()
}

// CalculateTaskConfidence loads the task's context and scores it. A missing
// task yields an error wrapping store.ErrNotFound.
func (s *Service) CalculateTaskConfidence(ctx context.Context, taskID string) (*Result, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	res, err := s.Score(ctx, *task)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Score computes confidence for an already loaded task, fetching only the
// dependency and activity context. The daily update path uses it to score
// the task it is about to persist.
func (s *Service) Score(ctx context.Context, task models.Task) (Result, error) {
	now := s.now()
	opts, err := s.options(ctx, task, now)
	if err != nil {
		return Result{}, err
	}
	return Score(task, opts, now), nil
}

func (s *Service) options(ctx context.Context, task models.Task, now time.Time) (Options, error) {
	var opts Options

	if len(task.Dependencies) > 0 {
		deps, err := s.store.ListTasks(ctx, store.TaskFilter{
			IDs:      task.Dependencies,
			Statuses: []models.TaskStatus{models.StatusDone},
		})
		if err != nil {
			return Options{}, fmt.Errorf("load dependencies of %s: %w", task.ID, err)
		}
		opts.CompletedDependencies = len(deps)
	}

	since := now.Add(-recentWindow)
	n, err := s.store.CountUpdates(ctx, store.UpdateFilter{
		TaskIDs: []string{task.ID},
		Since:   &since,
	})
	if err != nil {
		return Options{}, fmt.Errorf("count updates of %s: %w", task.ID, err)
	}
	opts.RecentUpdateCount = n

	return opts, nil
}

// CalculateBatchConfidence scores each id independently. Missing or failed
// tasks map to nil; failures other than not-found are joined into the
// returned error without stopping the batch.
func (s *Service) CalculateBatchConfidence(ctx context.Context, taskIDs []string) (map[string]*Result, error) {
	results := make(map[string]*Result, len(taskIDs))
	var errs []error

	for _, id := range taskIDs {
		res, err := s.CalculateTaskConfidence(ctx, id)
		if err != nil {
			results[id] = nil
			if !errors.Is(err, store.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		results[id] = res
	}

	return results, errors.Join(errs...)
}

type RiskBreakdown struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

func (b *RiskBreakdown) add(level RiskLevel) {
	switch level {
	case RiskCritical:
		b.Critical++
	case RiskHigh:
		b.High++
	case RiskMedium:
		b.Medium++
	default:
		b.Low++
	}
}

type HealthSummary struct {
	ProjectID     string        `json:"projectId"`
	OverallHealth int           `json:"overallHealth"`
	RiskLevel     RiskLevel     `json:"riskLevel"`
	TaskCount     int           `json:"taskCount"`
	RiskBreakdown RiskBreakdown `json:"riskBreakdown"`
	AtRiskTasks   int           `json:"atRiskTasks"`
}

// ProjectHealthSummary rolls up the confidence of the project's open tasks.
// Tasks whose score cannot be computed are left out of every aggregate.
func (s *Service) ProjectHealthSummary(ctx context.Context, projectID string) (*HealthSummary, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{
		ProjectIDs:      []string{projectID},
		ExcludeStatuses: []models.TaskStatus{models.StatusDone},
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks of project %s: %w", projectID, err)
	}

	summary := &HealthSummary{
		ProjectID:     projectID,
		OverallHealth: 100,
		RiskLevel:     RiskLow,
		TaskCount:     len(tasks),
	}
	if len(tasks) == 0 {
		return summary, nil
	}

	total, scored := 0, 0
	for _, t := range tasks {
		res, err := s.Score(ctx, t)
		if err != nil {
			s.logger.Warn("task confidence failed, excluded from health", "project", projectID, "task", t.ID, "err", err)
			continue
		}
		scored++
		total += res.Score
		summary.RiskBreakdown.add(res.RiskLevel)
		if res.Score < 60 {
			summary.AtRiskTasks++
		}
	}

	if scored > 0 {
		summary.OverallHealth = roundHalfUp(float64(total) / float64(scored))
	}
	summary.RiskLevel = overallRisk(summary.RiskBreakdown, len(tasks))

	return summary, nil
}

func overallRisk(b RiskBreakdown, taskCount int) RiskLevel {
	n := float64(taskCount)
	switch {
	case b.Critical > 0:
		return RiskCritical
	case float64(b.High) > n*0.3:
		return RiskHigh
	case float64(b.Medium) > n*0.5:
		return RiskMedium
	default:
		return RiskLow
	}
}
