package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"altivio-backend/internal/auth"
	"altivio-backend/internal/confidence"
	"altivio-backend/internal/models"
	"altivio-backend/internal/notify"
	"altivio-backend/internal/recommendations"
	"altivio-backend/internal/store"
	"altivio-backend/internal/store/memory"
)

var (
	now    = time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	secret = []byte("test-secret")
)

type fixture struct {
	store  *memory.Store
	server *httptest.Server
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	clock := func() time.Time { return now }
	scorer := confidence.NewService(st, confidence.WithClock(clock))
	recs := recommendations.NewService(st, scorer, time.UTC, nil)
	h := NewHandler(st, scorer, recs, notify.NewNotifier(st, nil, nil), nil)
	h.now = clock

	r := chi.NewRouter()
	r.With(auth.New(secret).Handler).Route("/api/notifications", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fixture{store: st, server: srv}
}

func (f fixture) do(t *testing.T, method, path string, as auth.Identity, body string, out any) int {
	t.Helper()
	tok, err := auth.GenerateToken(secret, as, time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (f fixture) notification(t *testing.T, n models.Notification) {
	t.Helper()
	require.NoError(t, f.store.CreateNotification(context.Background(), &n))
}

var (
	dev     = auth.Identity{UserID: "u1", Role: models.RoleDev}
	manager = auth.Identity{UserID: "m1", Role: models.RoleManager}
)

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.notification(t, models.Notification{UserID: "u1", Title: fmt.Sprint(i), CreatedAt: now.Add(-time.Duration(i) * time.Minute)})
	}
	f.notification(t, models.Notification{UserID: "u2", Title: "other"})

	var out listResponse
	code := f.do(t, http.MethodGet, "/api/notifications?page=3&limit=10", dev, "", &out)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out.Notifications, 5)
	assert.Equal(t, pagination{Page: 3, Limit: 10, Total: 25, TotalPages: 3}, out.Pagination)
	assert.Equal(t, "20", out.Notifications[0].Title)

	code = f.do(t, http.MethodGet, "/api/notifications?limit=500&page=0", dev, "", &out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 50, out.Pagination.Limit)
	assert.Equal(t, 1, out.Pagination.Page)
	assert.Len(t, out.Notifications, 25)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationGeneric, Read: true})
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationGeneric})
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationEODReminder})

	var out listResponse
	f.do(t, http.MethodGet, "/api/notifications?read=false", dev, "", &out)
	assert.Equal(t, 2, out.Pagination.Total)

	f.do(t, http.MethodGet, "/api/notifications?type=generic&read=true", dev, "", &out)
	assert.Equal(t, 1, out.Pagination.Total)
}

func TestListSortByPriority(t *testing.T) {
	f := newFixture(t)
	f.notification(t, models.Notification{ID: "generic", UserID: "u1", Type: models.NotificationGeneric, CreatedAt: now.Add(-time.Minute)})
	f.notification(t, models.Notification{ID: "deadline", UserID: "u1", Type: models.NotificationDeadlineSoon, CreatedAt: now.Add(-48 * time.Hour)})
	f.notification(t, models.Notification{ID: "assigned", UserID: "u1", Type: models.NotificationTaskAssigned, CreatedAt: now.Add(-2 * time.Hour)})

	var out listResponse
	f.do(t, http.MethodGet, "/api/notifications?sort=priority", dev, "", &out)
	got := []string{}
	for _, n := range out.Notifications {
		got = append(got, n.ID)
	}
	// deadline 90+20-10=100, assigned 70+20+10=100, generic 30+20+15=65
	assert.Equal(t, []string{"assigned", "deadline", "generic"}, got)
}

func TestUnreadCount(t *testing.T) {
	f := newFixture(t)
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationGeneric})
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationGeneric})
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationDeadlineSoon})
	f.notification(t, models.Notification{UserID: "u1", Type: models.NotificationDeadlineSoon, Read: true})

	var out struct {
		Total  int            `json:"total"`
		ByType map[string]int `json:"byType"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/notifications/unread-count", dev, "", &out))
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, map[string]int{"generic": 2, "deadline_soon": 1}, out.ByType)
}

func TestTaskConfidence(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveTask(context.Background(), &models.Task{ID: "t1", Title: "Auth", Status: models.StatusInProgress, Progress: 50}))

	var out map[string]any
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/notifications/task-confidence/t1", dev, "", &out))
	assert.Equal(t, "t1", out["taskId"])
	assert.Equal(t, "Auth", out["title"])
	assert.Contains(t, out, "score")
	assert.Contains(t, out, "factors")
	assert.Contains(t, out, "riskLevel")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/notifications/task-confidence/missing", dev, "", nil))
}

func TestRecommendationsDigest(t *testing.T) {
	f := newFixture(t)
	past := now.Add(-24 * time.Hour)
	require.NoError(t, f.store.SaveTask(context.Background(), &models.Task{ID: "t1", AssigneeID: "u1", Status: models.StatusBlocked, DueDate: &past}))

	var out recommendations.Digest
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/notifications/recommendations", dev, "", &out))
	assert.Equal(t, 1, out.Summary.TotalTasks)
	assert.Equal(t, 1, out.Summary.BlockedTasks)
	assert.NotEmpty(t, out.OverallRecommendations)

	var empty recommendations.Digest
	f.do(t, http.MethodGet, "/api/notifications/recommendations", manager, "", &empty)
	assert.Equal(t, "No active tasks found", empty.Message)
}

func TestReadAndDelete(t *testing.T) {
	f := newFixture(t)
	f.notification(t, models.Notification{ID: "n1", UserID: "u1"})
	f.notification(t, models.Notification{ID: "n2", UserID: "u1"})
	f.notification(t, models.Notification{ID: "n3", UserID: "u1"})
	f.notification(t, models.Notification{ID: "theirs", UserID: "u2"})

	var doc models.Notification
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/notifications/n1/read", dev, "", &doc))
	assert.True(t, doc.Read)
	require.NotNil(t, doc.SeenAt)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/notifications/theirs/read", dev, "", nil))

	var cleared struct {
		DeletedCount int `json:"deletedCount"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/notifications/clear-read", dev, "", &cleared))
	assert.Equal(t, 1, cleared.DeletedCount)

	var all struct {
		ModifiedCount int `json:"modifiedCount"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/notifications/read-all", dev, "", &all))
	assert.Equal(t, 2, all.ModifiedCount)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/notifications/n2", dev, "", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/notifications/n2", dev, "", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/notifications/theirs", dev, "", nil))

	left, err := f.store.CountNotifications(context.Background(), store.NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	body := `{"userId":"u2","title":"Heads up","message":"Standup moved"}`
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/notifications", dev, body, nil))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/notifications", manager,
		`{"userId":"u2","title":"x","message":"y","type":"spam"}`, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/notifications", manager,
		`{"userId":"u2","message":"y"}`, nil))

	var doc models.Notification
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/notifications", manager, body, &doc))
	assert.Equal(t, "u2", doc.UserID)
	assert.Equal(t, models.NotificationGeneric, doc.Type)

	self := `{"userId":"u1","title":"Reminder","message":"Write tests","type":"eod_reminder"}`
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/notifications", dev, self, nil))
}

func TestRequiresToken(t *testing.T) {
	f := newFixture(t)
	res, err := http.Get(f.server.URL + "/api/notifications")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
