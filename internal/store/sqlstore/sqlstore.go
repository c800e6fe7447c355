// Package sqlstore implements store.Store on Postgres (lib/pq) and SQLite
// (modernc.org/sqlite) with one set of queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
}

func (s *Store) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
}

func (s *Store) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...)
}

// where accumulates AND-ed conditions with ? placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) in(column string, values []string) {
	w.add(column+" IN ("+placeholders(len(values))+")", toArgs(values)...)
}

func (w *where) notIn(column string, values []string) {
	w.add(column+" NOT IN ("+placeholders(len(values))+")", toArgs(values)...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func statuses(v []models.TaskStatus) []string {
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = string(s)
	}
	return out
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}

// ---- tasks

const taskColumns = `id, project_id, title, description, priority, status, assignee_id, created_by,
	start_date, due_date, progress, blockers, ai_confidence, dependencies, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (models.Task, error) {
	var (
		t                 models.Task
		start, due        timestamp
		created, updated  timestamp
		blockers, depends stringList
	)
	err := r.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.AssigneeID, &t.CreatedBy,
		&start, &due, &t.Progress, &blockers, &t.AIConfidence, &depends, &created, &updated,
	)
	if err != nil {
		return models.Task{}, err
	}
	t.StartDate = start.ptr()
	t.DueDate = due.ptr()
	t.Blockers = blockers
	t.Dependencies = depends
	t.CreatedAt = created.Time
	t.UpdatedAt = updated.Time
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(s.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("task", id, err)
	}
	return &t, nil
}

func (s *Store) taskWhere(f store.TaskFilter) *where {
	w := &where{}
	if len(f.IDs) > 0 {
		w.in("id", f.IDs)
	}
	if len(f.ProjectIDs) > 0 {
		w.in("project_id", f.ProjectIDs)
	}
	if f.AssigneeID != "" {
		w.add("assignee_id = ?", f.AssigneeID)
	}
	if f.HasAssignee {
		w.add("assignee_id <> ''")
	}
	if len(f.Statuses) > 0 {
		w.in("status", statuses(f.Statuses))
	}
	if len(f.ExcludeStatuses) > 0 {
		w.notIn("status", statuses(f.ExcludeStatuses))
	}
	if f.DueFrom != nil {
		w.add("due_date >= ?", s.dialect.time(*f.DueFrom))
	}
	if f.DueTo != nil {
		w.add("due_date <= ?", s.dialect.time(*f.DueTo))
	}
	if f.DueBefore != nil {
		w.add("due_date < ?", s.dialect.time(*f.DueBefore))
	}
	return w
}

func (s *Store) ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error) {
	w := s.taskWhere(f)
	rows, err := s.query(ctx, `SELECT `+taskColumns+` FROM tasks`+w.String()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SaveTask(ctx context.Context, t *models.Task) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			project_id = excluded.project_id,
			title = excluded.title,
			description = excluded.description,
			priority = excluded.priority,
			status = excluded.status,
			assignee_id = excluded.assignee_id,
			start_date = excluded.start_date,
			due_date = excluded.due_date,
			progress = excluded.progress,
			blockers = excluded.blockers,
			ai_confidence = excluded.ai_confidence,
			dependencies = excluded.dependencies,
			updated_at = excluded.updated_at`,
		t.ID, t.ProjectID, t.Title, t.Description, string(t.Priority), string(t.Status), t.AssigneeID, t.CreatedBy,
		s.dialect.timePtr(t.StartDate), s.dialect.timePtr(t.DueDate), t.Progress, s.dialect.list(t.Blockers),
		t.AIConfidence, s.dialect.list(t.Dependencies), s.dialect.time(t.CreatedAt), s.dialect.time(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTaskConfidence writes only ai_confidence; concurrent writers race
// and the last write wins.
func (s *Store) UpdateTaskConfidence(ctx context.Context, id string, score int) error {
	res, err := s.exec(ctx, `UPDATE tasks SET ai_confidence = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("update confidence of %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ---- daily updates

func (s *Store) CreateUpdate(ctx context.Context, u *models.DailyUpdate) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	var progress any
	if u.Progress != nil {
		progress = *u.Progress
	}
	_, err := s.exec(ctx,
		`INSERT INTO daily_updates (id, task_id, author_id, note, progress, blockers, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TaskID, u.AuthorID, u.Note, progress, s.dialect.list(u.Blockers), s.dialect.time(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create update for %s: %w", u.TaskID, err)
	}
	return nil
}

func (s *Store) updateWhere(f store.UpdateFilter) *where {
	w := &where{}
	if len(f.TaskIDs) > 0 {
		w.in("task_id", f.TaskIDs)
	}
	if f.AuthorID != "" {
		w.add("author_id = ?", f.AuthorID)
	}
	if f.Since != nil {
		w.add("created_at >= ?", s.dialect.time(*f.Since))
	}
	if f.Until != nil {
		w.add("created_at <= ?", s.dialect.time(*f.Until))
	}
	return w
}

func (s *Store) ListUpdates(ctx context.Context, f store.UpdateFilter) ([]models.DailyUpdate, error) {
	w := s.updateWhere(f)
	rows, err := s.query(ctx,
		`SELECT id, task_id, author_id, note, progress, blockers, created_at FROM daily_updates`+w.String()+` ORDER BY created_at DESC, id`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	out := []models.DailyUpdate{}
	for rows.Next() {
		var (
			u        models.DailyUpdate
			progress sql.NullInt64
			blockers stringList
			created  timestamp
		)
		if err := rows.Scan(&u.ID, &u.TaskID, &u.AuthorID, &u.Note, &progress, &blockers, &created); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		if progress.Valid {
			p := int(progress.Int64)
			u.Progress = &p
		}
		if len(blockers) > 0 {
			u.Blockers = blockers
		}
		u.CreatedAt = created.Time
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountUpdates(ctx context.Context, f store.UpdateFilter) (int, error) {
	w := s.updateWhere(f)
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM daily_updates`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count updates: %w", err)
	}
	return n, nil
}

// ---- users

const userColumns = `id, name, email, role, is_active, timezone, preferences`

func scanUser(r rowScanner) (models.User, error) {
	u := models.User{Preferences: models.DefaultPreferences()}
	err := r.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsActive, &u.Timezone, jsonScanner{&u.Preferences})
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error) {
	w := &where{}
	if len(f.IDs) > 0 {
		w.in("id", f.IDs)
	}
	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, r := range f.Roles {
			roles[i] = string(r)
		}
		w.in("role", roles)
	}
	if f.ActiveOnly {
		w.add("is_active = ?", true)
	}

	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			is_active = excluded.is_active,
			timezone = excluded.timezone,
			preferences = excluded.preferences`,
		u.ID, u.Name, u.Email, string(u.Role), u.IsActive, u.Timezone, jsonValue{u.Preferences},
	)
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// ---- projects

const projectColumns = `id, name, project_key, description, owner_id, member_ids, status, created_at`

func scanProject(r rowScanner) (models.Project, error) {
	var (
		p       models.Project
		members stringList
		created timestamp
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Key, &p.Description, &p.OwnerID, &members, &p.Status, &created); err != nil {
		return models.Project{}, err
	}
	p.MemberIDs = members
	p.CreatedAt = created.Time
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("project", id, err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, f store.ProjectFilter) ([]models.Project, error) {
	w := &where{}
	if f.InvolvesUser != "" {
		w.add("(owner_id = ? OR "+s.dialect.containsMember()+")", f.InvolvesUser, f.InvolvesUser)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}

	rows, err := s.query(ctx, `SELECT `+projectColumns+` FROM projects`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SaveProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = models.ProjectActive
	}
	_, err := s.exec(ctx, `
		INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			project_key = excluded.project_key,
			description = excluded.description,
			owner_id = excluded.owner_id,
			member_ids = excluded.member_ids,
			status = excluded.status`,
		p.ID, p.Name, p.Key, p.Description, p.OwnerID, s.dialect.list(p.MemberIDs), string(p.Status), s.dialect.time(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}
