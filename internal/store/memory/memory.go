// Package memory is an in-process Store used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	tasks         map[string]models.Task
	updates       []models.DailyUpdate
	users         map[string]models.User
	projects      map[string]models.Project
	notifications []models.Notification
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tasks:    make(map[string]models.Task),
		users:    make(map[string]models.User),
		projects: make(map[string]models.Project),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return cloneTask(t), nil
}

func (s *Store) ListTasks(_ context.Context, f store.TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Task{}
	for _, t := range s.tasks {
		if f.Match(t) {
			out = append(out, *cloneTask(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tasks[t.ID] = *cloneTask(*t)
	return nil
}

func (s *Store) UpdateTaskConfidence(_ context.Context, id string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	t.AIConfidence = score
	s.tasks[id] = t
	return nil
}

func (s *Store) CreateUpdate(_ context.Context, u *models.DailyUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	c := *u
	c.Blockers = slices.Clone(u.Blockers)
	s.updates = append(s.updates, c)
	return nil
}

func (s *Store) ListUpdates(_ context.Context, f store.UpdateFilter) ([]models.DailyUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.DailyUpdate{}
	for _, u := range s.updates {
		if f.Match(u) {
			c := u
			c.Blockers = slices.Clone(u.Blockers)
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CountUpdates(_ context.Context, f store.UpdateFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.updates {
		if f.Match(u) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context, f store.UserFilter) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.User{}
	for _, u := range s.users {
		if f.Match(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	p.MemberIDs = slices.Clone(p.MemberIDs)
	return &p, nil
}

func (s *Store) ListProjects(_ context.Context, f store.ProjectFilter) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Project{}
	for _, p := range s.projects {
		if f.Match(p) {
			p.MemberIDs = slices.Clone(p.MemberIDs)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	c := *p
	c.MemberIDs = slices.Clone(p.MemberIDs)
	s.projects[p.ID] = c
	return nil
}

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, f store.NotificationFilter) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Notification{}
	for _, n := range s.notifications {
		if f.Match(n) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []models.Notification{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountNotifications(_ context.Context, f store.NotificationFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, x := range s.notifications {
		if f.Match(x) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUnreadByType(_ context.Context, userID string) (map[models.NotificationType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[models.NotificationType]int{}
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			out[n.Type]++
		}
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string, at time.Time) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		n := &s.notifications[i]
		if n.ID != id || n.UserID != userID {
			continue
		}
		n.Read = true
		n.SeenAt = &at
		c := *n
		return &c, nil
	}
	return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.notifications {
		x := &s.notifications[i]
		if x.UserID == userID && !x.Read {
			x.Read = true
			x.SeenAt = &at
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteNotification(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications = slices.Delete(s.notifications, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
}

func (s *Store) DeleteReadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.notifications)
	s.notifications = slices.DeleteFunc(s.notifications, func(n models.Notification) bool {
		return n.UserID == userID && n.Read
	})
	return int64(before - len(s.notifications)), nil
}

func cloneTask(t models.Task) *models.Task {
	c := t
	c.Blockers = slices.Clone(t.Blockers)
	c.Dependencies = slices.Clone(t.Dependencies)
	if t.StartDate != nil {
		v := *t.StartDate
		c.StartDate = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	return &c
}
