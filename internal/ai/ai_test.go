package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store/memory"
)

var now = time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func newTestService(t *testing.T, gen Generator) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	s := NewService(gen, st, nil)
	s.now = func() time.Time { return now }
	return s, st
}

func TestGeminiGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"ok\":true}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGemini("secret", "gemini-test", srv.URL+"/", time.Second)
	out, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, out)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "hello", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMIMEType)
}

func TestGeminiErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	_, err := NewGemini("k", "m", srv.URL, time.Second).Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESOURCE_EXHAUSTED")
}

func TestGeminiWithoutKey(t *testing.T) {
	_, err := NewGemini("", "m", "", time.Second).Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestServiceUnavailable(t *testing.T) {
	s, _ := newTestService(t, NewGemini("", "m", "", time.Second))
	assert.False(t, s.IsAvailable())

	_, err := s.GenerateDailyInsights(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.GenerateTeamSummary(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.GenerateSprintRetrospective(context.Background(), "p1", now, now)
	assert.ErrorIs(t, err, ErrUnavailable)

	var nilSvc *Service
	assert.False(t, nilSvc.IsAvailable())
}

func TestDailyInsightsNoTasks(t *testing.T) {
	gen := &fakeGenerator{}
	s, st := newTestService(t, gen)
	require.NoError(t, st.SaveUser(context.Background(), &models.User{ID: "u1", Name: "Ana", Role: models.RoleDev}))

	out, err := s.GenerateDailyInsights(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "No active tasks to analyze.", out.Summary)
	assert.Empty(t, gen.prompts)
}

func TestDailyInsightsDecodesFencedReply(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"summary\":\"Busy week\",\"topPriority\":\"Ship login\",\"riskAlert\":null,\"suggestions\":[\"a\"]}\n```"}
	s, st := newTestService(t, gen)
	ctx := context.Background()
	require.NoError(t, st.SaveUser(ctx, &models.User{ID: "u1", Name: "Ana", Role: models.RoleDev}))
	require.NoError(t, st.SaveTask(ctx, &models.Task{
		ID: "t1", Title: "Login page", AssigneeID: "u1", Status: models.StatusInProgress,
		Priority: models.PriorityHigh, Progress: 40, Blockers: []string{"API down"},
	}))
	require.NoError(t, st.SaveTask(ctx, &models.Task{ID: "t2", Title: "Finished", AssigneeID: "u1", Status: models.StatusDone}))

	out, err := s.GenerateDailyInsights(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Busy week", out.Summary)
	assert.Equal(t, "Ship login", out.TopPriority)
	assert.Nil(t, out.RiskAlert)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "ACTIVE TASKS (1):")
	assert.Contains(t, gen.prompts[0], `"Login page" [high/in_progress] Progress: 40%`)
	assert.Contains(t, gen.prompts[0], "Blockers: API down")
	assert.NotContains(t, gen.prompts[0], "Finished")
}

func TestDailyInsightsGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	s, st := newTestService(t, gen)
	ctx := context.Background()
	require.NoError(t, st.SaveUser(ctx, &models.User{ID: "u1", Name: "Ana"}))
	require.NoError(t, st.SaveTask(ctx, &models.Task{ID: "t1", AssigneeID: "u1", Status: models.StatusTodo}))

	_, err := s.GenerateDailyInsights(ctx, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTeamSummaryMemberStats(t *testing.T) {
	gen := &fakeGenerator{reply: `{"teamHealthScore":72,"summary":"Steady","topPerformers":["Ana"]}`}
	s, st := newTestService(t, gen)
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, &models.User{ID: "u1", Name: "Ana"}))
	require.NoError(t, st.SaveProject(ctx, &models.Project{ID: "p1", Name: "Apollo", OwnerID: "m1", Status: models.ProjectActive}))
	require.NoError(t, st.SaveProject(ctx, &models.Project{ID: "p2", Name: "Paused", OwnerID: "m1", Status: models.ProjectPaused}))

	past := now.Add(-24 * time.Hour)
	for _, task := range []models.Task{
		{ID: "a", ProjectID: "p1", AssigneeID: "u1", Status: models.StatusDone},
		{ID: "b", ProjectID: "p1", AssigneeID: "u1", Status: models.StatusBlocked, DueDate: &past},
		{ID: "c", ProjectID: "p1", AssigneeID: "u2", Status: models.StatusInProgress},
		{ID: "d", ProjectID: "p1", Status: models.StatusTodo},
		{ID: "e", ProjectID: "p2", AssigneeID: "u1", Status: models.StatusTodo},
	} {
		task := task
		require.NoError(t, st.SaveTask(ctx, &task))
	}

	out, err := s.GenerateTeamSummary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 72, out.TeamHealthScore)
	assert.Equal(t, []MemberStats{
		{UserID: "u1", Name: "Ana", Total: 2, Completed: 1, Blocked: 1, Overdue: 1},
		{UserID: "u2", Name: "Unknown", Total: 1},
	}, out.Members)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "PROJECTS: Apollo\n")
	assert.Contains(t, gen.prompts[0], "- Total Tasks: 4\n")
	assert.Contains(t, gen.prompts[0], "- Ana: 2 tasks (1 done, 1 blocked, 1 overdue)")
}

func TestSprintRetrospective(t *testing.T) {
	gen := &fakeGenerator{reply: `{"sprintScore":80,"velocitySummary":"Good pace","whatWentWell":["shipping"]}`}
	s, st := newTestService(t, gen)
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, &models.User{ID: "u1", Name: "Ana"}))
	require.NoError(t, st.SaveProject(ctx, &models.Project{ID: "p1", Name: "Apollo", OwnerID: "m1"}))
	require.NoError(t, st.SaveTask(ctx, &models.Task{ID: "t1", ProjectID: "p1", Title: "Auth", AssigneeID: "u1", Status: models.StatusDone}))
	require.NoError(t, st.SaveTask(ctx, &models.Task{ID: "t2", ProjectID: "p1", Status: models.StatusBlocked, Blockers: []string{"waiting on infra"}}))

	from, to := time.Now().Add(-time.Hour), time.Now().Add(time.Hour)
	out, err := s.GenerateSprintRetrospective(ctx, "p1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 80, out.SprintScore)
	assert.Equal(t, "Good pace", out.VelocitySummary)

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Contains(t, p, "PROJECT: Apollo")
	assert.Contains(t, p, "- Tasks Completed: 1")
	assert.Contains(t, p, "- Tasks Blocked: 1")
	assert.Contains(t, p, `- "Auth" by Ana`)
	assert.Contains(t, p, "waiting on infra")
}

func TestDecodeReply(t *testing.T) {
	var out DailyInsights
	assert.Error(t, decodeReply("no json here", &out))
	assert.Error(t, decodeReply("{not json}", &out))
	require.NoError(t, decodeReply("Sure! {\"summary\":\"s\"} hope this helps", &out))
	assert.Equal(t, "s", out.Summary)
}
