package confidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
	"altivio-backend/internal/store/memory"
)

func newService(t *testing.T, st Store) *Service {
	t.Helper()
	return NewService(st, WithClock(func() time.Time { return now }))
}

func seedTask(t *testing.T, st *memory.Store, task models.Task) {
	t.Helper()
	require.NoError(t, st.SaveTask(context.Background(), &task))
}

func TestCalculateTaskConfidenceLoadsContext(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	seedTask(t, st, models.Task{ID: "dep-done", Status: models.StatusDone})
	seedTask(t, st, models.Task{ID: "dep-open", Status: models.StatusInProgress})
	seedTask(t, st, models.Task{
		ID:           "task",
		Status:       models.StatusInProgress,
		Dependencies: []string{"dep-done", "dep-open"},
	})

	for _, age := range []time.Duration{time.Hour, 2 * day, 6 * day, 8 * day} {
		require.NoError(t, st.CreateUpdate(ctx, &models.DailyUpdate{TaskID: "task", CreatedAt: now.Add(-age)}))
	}
	require.NoError(t, st.CreateUpdate(ctx, &models.DailyUpdate{TaskID: "dep-open", CreatedAt: now}))

	res, err := newService(t, st).CalculateTaskConfidence(ctx, "task")
	require.NoError(t, err)

	assert.Equal(t, 8, res.Factors.DependencyScore)
	assert.Equal(t, "1/2", res.Analysis.DependencyStatus)
	assert.Equal(t, 6, res.Factors.ActivityScore)
}

func TestCalculateTaskConfidenceNotFound(t *testing.T) {
	res, err := newService(t, memory.New()).CalculateTaskConfidence(context.Background(), "missing")

	assert.Nil(t, res)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

type failingStore struct {
	*memory.Store
	failID string
}

func (f failingStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if id == f.failID {
		return nil, errors.New("connection reset")
	}
	return f.Store.GetTask(ctx, id)
}

func TestCalculateBatchConfidenceIsolatesFailures(t *testing.T) {
	st := memory.New()
	seedTask(t, st, models.Task{ID: "a", Progress: 10})
	seedTask(t, st, models.Task{ID: "b", Progress: 90})

	svc := newService(t, failingStore{Store: st, failID: "b"})
	results, err := svc.CalculateBatchConfidence(context.Background(), []string{"a", "b", "missing"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, errors.Is(err, store.ErrNotFound))

	require.Len(t, results, 3)
	assert.NotNil(t, results["a"])
	assert.Nil(t, results["b"])
	assert.Nil(t, results["missing"])
}

func TestCalculateBatchConfidenceAllMissingIsNotAnError(t *testing.T) {
	results, err := newService(t, memory.New()).CalculateBatchConfidence(context.Background(), []string{"x", "y"})

	require.NoError(t, err)
	assert.Equal(t, map[string]*Result{"x": nil, "y": nil}, results)
}

func TestProjectHealthSummaryMixedRisk(t *testing.T) {
	st := memory.New()

	// 0 time + 10 progress + 25 blockers + 0 deps + 0 activity
	seedTask(t, st, models.Task{
		ID: "late", ProjectID: "p1", Status: models.StatusTodo, Progress: 40,
		DueDate: at(-day), Dependencies: []string{"elsewhere"},
	})
	// 25 + 0 + 25 + 15 + 0
	seedTask(t, st, models.Task{ID: "fresh", ProjectID: "p1", Status: models.StatusTodo})
	// 25 + 25 + 25 + 15 + 0
	seedTask(t, st, models.Task{ID: "almost", ProjectID: "p1", Status: models.StatusInProgress, Progress: 100})

	seedTask(t, st, models.Task{ID: "shipped", ProjectID: "p1", Status: models.StatusDone})
	seedTask(t, st, models.Task{ID: "other", ProjectID: "p2", Status: models.StatusBlocked})

	svc := newService(t, st)
	for id, want := range map[string]int{"late": 35, "fresh": 65, "almost": 90} {
		res, err := svc.CalculateTaskConfidence(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, want, res.Score, id)
	}

	summary, err := svc.ProjectHealthSummary(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, 63, summary.OverallHealth)
	assert.Equal(t, RiskCritical, summary.RiskLevel)
	assert.Equal(t, 3, summary.TaskCount)
	assert.Equal(t, RiskBreakdown{Critical: 1, Medium: 1, Low: 1}, summary.RiskBreakdown)
	assert.Equal(t, 1, summary.AtRiskTasks)
}

func TestProjectHealthSummaryEmptyProject(t *testing.T) {
	st := memory.New()
	seedTask(t, st, models.Task{ID: "shipped", ProjectID: "p1", Status: models.StatusDone})

	summary, err := newService(t, st).ProjectHealthSummary(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, 100, summary.OverallHealth)
	assert.Equal(t, RiskLow, summary.RiskLevel)
	assert.Equal(t, 0, summary.TaskCount)
	assert.Zero(t, summary.AtRiskTasks)
}

type flakyCountStore struct {
	*memory.Store
	failTask string
}

func (f flakyCountStore) CountUpdates(ctx context.Context, filter store.UpdateFilter) (int, error) {
	if len(filter.TaskIDs) == 1 && filter.TaskIDs[0] == f.failTask {
		return 0, errors.New("timeout")
	}
	return f.Store.CountUpdates(ctx, filter)
}

func TestProjectHealthSummaryExcludesUnscoredTasks(t *testing.T) {
	st := memory.New()
	seedTask(t, st, models.Task{ID: "ok", ProjectID: "p1", Status: models.StatusTodo})
	seedTask(t, st, models.Task{ID: "broken", ProjectID: "p1", Status: models.StatusTodo, DueDate: at(-day)})

	summary, err := newService(t, flakyCountStore{Store: st, failTask: "broken"}).ProjectHealthSummary(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TaskCount)
	assert.Equal(t, 65, summary.OverallHealth)
	assert.Equal(t, RiskBreakdown{Medium: 1}, summary.RiskBreakdown)
	assert.Zero(t, summary.AtRiskTasks)
	assert.Equal(t, RiskLow, summary.RiskLevel)
}

func TestOverallRiskThresholds(t *testing.T) {
	assert.Equal(t, RiskCritical, overallRisk(RiskBreakdown{Critical: 1, Low: 9}, 10))
	assert.Equal(t, RiskHigh, overallRisk(RiskBreakdown{High: 4, Low: 6}, 10))
	assert.Equal(t, RiskLow, overallRisk(RiskBreakdown{High: 3, Low: 7}, 10))
	assert.Equal(t, RiskMedium, overallRisk(RiskBreakdown{Medium: 6, Low: 4}, 10))
	assert.Equal(t, RiskLow, overallRisk(RiskBreakdown{Medium: 5, Low: 5}, 10))
}
