package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"altivio-backend/internal/db"
	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

func newSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Connect(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "altivio.db"))
	require.NoError(t, err)

	s := New(conn, SQLite)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestRebind(t *testing.T) {
	q := "SELECT * FROM tasks WHERE id = ? AND status IN (?,?)"
	assert.Equal(t, "SELECT * FROM tasks WHERE id = $1 AND status IN ($2,$3)", Postgres.rebind(q))
	assert.Equal(t, q, SQLite.rebind(q))
}

func TestStringListScan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want []string
	}{
		{"nil", nil, []string{}},
		{"postgres array", []byte(`{"vpn down",review}`), []string{"vpn down", "review"}},
		{"postgres empty", []byte(`{}`), []string{}},
		{"json", `["a","b"]`, []string{"a", "b"}},
		{"json empty", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l stringList
			require.NoError(t, l.Scan(tt.src))
			assert.Equal(t, tt.want, []string(l))
		})
	}
}

func TestTimestampScan(t *testing.T) {
	var ts timestamp
	require.NoError(t, ts.Scan(base.Format(sqliteTime)))
	assert.True(t, ts.Valid)
	assert.True(t, base.Equal(ts.Time))

	require.NoError(t, ts.Scan(base.In(time.FixedZone("x", 3600))))
	assert.Equal(t, time.UTC, ts.Time.Location())

	require.NoError(t, ts.Scan(nil))
	assert.Nil(t, ts.ptr())

	assert.Error(t, ts.Scan("yesterday"))
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	task := &models.Task{
		ProjectID:    "p1",
		Title:        "Wire payments",
		Priority:     models.PriorityHigh,
		Status:       models.StatusInProgress,
		AssigneeID:   "u1",
		StartDate:    ptr(base.Add(-48 * time.Hour)),
		DueDate:      ptr(base.Add(72 * time.Hour)),
		Progress:     40,
		Blockers:     []string{"vpn down"},
		Dependencies: []string{"t0"},
	}
	require.NoError(t, s.SaveTask(ctx, task))
	require.NotEmpty(t, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wire payments", got.Title)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, []string{"vpn down"}, got.Blockers)
	assert.Equal(t, []string{"t0"}, got.Dependencies)
	require.NotNil(t, got.DueDate)
	assert.True(t, task.DueDate.Equal(*got.DueDate))
	assert.True(t, task.StartDate.Equal(*got.StartDate))

	got.Progress = 60
	got.Blockers = nil
	require.NoError(t, s.SaveTask(ctx, got))

	again, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, again.Progress)
	assert.Empty(t, again.Blockers)
	assert.True(t, task.CreatedAt.Equal(again.CreatedAt))
}

func TestGetTaskNotFound(t *testing.T) {
	_, err := newSQLite(t).GetTask(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUpdateTaskConfidence(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	task := &models.Task{Title: "x", Status: models.StatusTodo}
	require.NoError(t, s.SaveTask(ctx, task))

	require.NoError(t, s.UpdateTaskConfidence(ctx, task.ID, 72))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 72, got.AIConfidence)

	assert.True(t, errors.Is(s.UpdateTaskConfidence(ctx, "missing", 10), store.ErrNotFound))
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	seed := []models.Task{
		{ID: "a", ProjectID: "p1", Status: models.StatusTodo, AssigneeID: "u1", DueDate: ptr(base.Add(2 * time.Hour)), CreatedAt: base.Add(-3 * time.Hour)},
		{ID: "b", ProjectID: "p1", Status: models.StatusDone, AssigneeID: "u1", DueDate: ptr(base.Add(-time.Hour)), CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "c", ProjectID: "p2", Status: models.StatusBlocked, DueDate: ptr(base.Add(-5 * time.Hour)), CreatedAt: base.Add(-time.Hour)},
		{ID: "d", ProjectID: "p2", Status: models.StatusInProgress, AssigneeID: "u2", CreatedAt: base},
	}
	for i := range seed {
		require.NoError(t, s.SaveTask(ctx, &seed[i]))
	}

	ids := func(f store.TaskFilter) []string {
		t.Helper()
		tasks, err := s.ListTasks(ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}

	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(store.TaskFilter{}))
	assert.Equal(t, []string{"b", "a"}, ids(store.TaskFilter{ProjectIDs: []string{"p1"}}))
	assert.Equal(t, []string{"d", "c", "a"}, ids(store.TaskFilter{ExcludeStatuses: []models.TaskStatus{models.StatusDone}}))
	assert.Equal(t, []string{"b"}, ids(store.TaskFilter{IDs: []string{"b", "c"}, Statuses: []models.TaskStatus{models.StatusDone}}))
	assert.Equal(t, []string{"b", "a"}, ids(store.TaskFilter{AssigneeID: "u1"}))
	assert.Equal(t, []string{"d", "b", "a"}, ids(store.TaskFilter{HasAssignee: true}))
	assert.Equal(t, []string{"c", "b"}, ids(store.TaskFilter{DueBefore: ptr(base)}))
	assert.Equal(t, []string{"b", "a"}, ids(store.TaskFilter{DueFrom: ptr(base.Add(-time.Hour)), DueTo: ptr(base.Add(2 * time.Hour))}))
}

func TestUpdatesCountAndList(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	p := 55
	for i, u := range []models.DailyUpdate{
		{TaskID: "t1", AuthorID: "u1", Note: "old", CreatedAt: base.Add(-8 * 24 * time.Hour)},
		{TaskID: "t1", AuthorID: "u1", Note: "recent", Progress: &p, Blockers: []string{"ci red"}, CreatedAt: base.Add(-time.Hour)},
		{TaskID: "t2", AuthorID: "u2", CreatedAt: base.Add(-2 * time.Hour)},
	} {
		require.NoError(t, s.CreateUpdate(ctx, &u), "update %d", i)
	}

	since := base.Add(-7 * 24 * time.Hour)
	n, err := s.CountUpdates(ctx, store.UpdateFilter{TaskIDs: []string{"t1"}, Since: &since})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListUpdates(ctx, store.UpdateFilter{AuthorID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "recent", list[0].Note)
	require.NotNil(t, list[0].Progress)
	assert.Equal(t, 55, *list[0].Progress)
	assert.Equal(t, []string{"ci red"}, list[0].Blockers)
	assert.Nil(t, list[1].Progress)
}

func TestUsersAndProjects(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	prefs := models.DefaultPreferences()
	prefs.EODReminder = false
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "m1", Name: "Mia", Role: models.RoleManager, IsActive: true, Timezone: "Europe/Berlin", Preferences: prefs}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Name: "Ana", Role: models.RoleDev, IsActive: false, Preferences: models.DefaultPreferences()}))

	m, err := s.GetUser(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.Preferences.EODReminder)
	assert.True(t, m.Preferences.Push)
	assert.Equal(t, "Europe/Berlin", m.Timezone)

	active, err := s.ListUsers(ctx, store.UserFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "m1", active[0].ID)

	managers, err := s.ListUsers(ctx, store.UserFilter{Roles: []models.Role{models.RoleManager, models.RoleAdmin}})
	require.NoError(t, err)
	assert.Len(t, managers, 1)

	require.NoError(t, s.SaveProject(ctx, &models.Project{ID: "p1", Name: "Checkout", OwnerID: "m1"}))
	require.NoError(t, s.SaveProject(ctx, &models.Project{ID: "p2", Name: "Search", OwnerID: "x", MemberIDs: []string{"u1", "m1"}}))
	require.NoError(t, s.SaveProject(ctx, &models.Project{ID: "p3", Name: "Legacy", OwnerID: "x", MemberIDs: []string{"u1"}, Status: models.ProjectPaused}))

	involved, err := s.ListProjects(ctx, store.ProjectFilter{InvolvesUser: "m1", Status: models.ProjectActive})
	require.NoError(t, err)
	require.Len(t, involved, 2)
	assert.Equal(t, "p1", involved[0].ID)
	assert.Equal(t, []string{"u1", "m1"}, involved[1].MemberIDs)

	forDev, err := s.ListProjects(ctx, store.ProjectFilter{InvolvesUser: "u1"})
	require.NoError(t, err)
	assert.Len(t, forDev, 2)

	_, err = s.GetProject(ctx, "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	for i, n := range []models.Notification{
		{UserID: "u1", Type: models.NotificationDeadlineSoon, Title: "a", Message: "a", Meta: map[string]any{"taskId": "t1"}, CreatedAt: base.Add(-3 * time.Minute)},
		{UserID: "u1", Type: models.NotificationDeadlineSoon, Title: "b", Message: "b", CreatedAt: base.Add(-2 * time.Minute)},
		{UserID: "u1", Type: models.NotificationGeneric, Title: "c", Message: "c", CreatedAt: base.Add(-time.Minute)},
		{UserID: "u2", Type: models.NotificationGeneric, Title: "d", Message: "d", CreatedAt: base},
	} {
		require.NoError(t, s.CreateNotification(ctx, &n), "notification %d", i)
	}

	page, err := s.ListNotifications(ctx, store.NotificationFilter{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Title)

	rest, err := s.ListNotifications(ctx, store.NotificationFilter{UserID: "u1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "t1", rest[0].Meta["taskId"])

	byType, err := s.CountUnreadByType(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[models.NotificationType]int{models.NotificationDeadlineSoon: 2, models.NotificationGeneric: 1}, byType)

	read, err := s.MarkNotificationRead(ctx, "u1", page[0].ID, base)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.SeenAt)

	_, err = s.MarkNotificationRead(ctx, "u2", page[1].ID, base)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	unread := false
	n, err := s.CountNotifications(ctx, store.NotificationFilter{UserID: "u1", Read: &unread})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	marked, err := s.MarkAllNotificationsRead(ctx, "u1", base)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	require.NoError(t, s.DeleteNotification(ctx, "u1", page[0].ID))
	assert.True(t, errors.Is(s.DeleteNotification(ctx, "u1", page[0].ID), store.ErrNotFound))

	deleted, err := s.DeleteReadNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	left, err := s.CountNotifications(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}
