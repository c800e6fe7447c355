package sqlstore

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		role        TEXT NOT NULL DEFAULT 'dev',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		timezone    TEXT NOT NULL DEFAULT '',
		preferences JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		project_key TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		owner_id    TEXT NOT NULL,
		member_ids  TEXT[] NOT NULL DEFAULT '{}',
		status      TEXT NOT NULL DEFAULT 'active',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		priority      TEXT NOT NULL DEFAULT 'medium',
		status        TEXT NOT NULL DEFAULT 'todo',
		assignee_id   TEXT NOT NULL DEFAULT '',
		created_by    TEXT NOT NULL DEFAULT '',
		start_date    TIMESTAMPTZ,
		due_date      TIMESTAMPTZ,
		progress      INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		blockers      TEXT[] NOT NULL DEFAULT '{}',
		ai_confidence INTEGER NOT NULL DEFAULT 0,
		dependencies  TEXT[] NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_project_status_idx ON tasks (project_id, status)`,
	`CREATE INDEX IF NOT EXISTS tasks_assignee_idx ON tasks (assignee_id)`,
	`CREATE TABLE IF NOT EXISTS daily_updates (
		id         TEXT PRIMARY KEY,
		task_id    TEXT NOT NULL,
		author_id  TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		progress   INTEGER,
		blockers   TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS daily_updates_task_idx ON daily_updates (task_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS daily_updates_author_idx ON daily_updates (author_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		type       TEXT NOT NULL DEFAULT 'generic',
		title      TEXT NOT NULL,
		message    TEXT NOT NULL,
		action_url TEXT NOT NULL DEFAULT '',
		meta       JSONB,
		read       BOOLEAN NOT NULL DEFAULT FALSE,
		seen_at    TIMESTAMPTZ,
		priority   TEXT NOT NULL DEFAULT 'normal',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, read, created_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		role        TEXT NOT NULL DEFAULT 'dev',
		is_active   INTEGER NOT NULL DEFAULT 1,
		timezone    TEXT NOT NULL DEFAULT '',
		preferences TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		project_key TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		owner_id    TEXT NOT NULL,
		member_ids  TEXT NOT NULL DEFAULT '[]',
		status      TEXT NOT NULL DEFAULT 'active',
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		priority      TEXT NOT NULL DEFAULT 'medium',
		status        TEXT NOT NULL DEFAULT 'todo',
		assignee_id   TEXT NOT NULL DEFAULT '',
		created_by    TEXT NOT NULL DEFAULT '',
		start_date    TEXT,
		due_date      TEXT,
		progress      INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		blockers      TEXT NOT NULL DEFAULT '[]',
		ai_confidence INTEGER NOT NULL DEFAULT 0,
		dependencies  TEXT NOT NULL DEFAULT '[]',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_project_status_idx ON tasks (project_id, status)`,
	`CREATE INDEX IF NOT EXISTS tasks_assignee_idx ON tasks (assignee_id)`,
	`CREATE TABLE IF NOT EXISTS daily_updates (
		id         TEXT PRIMARY KEY,
		task_id    TEXT NOT NULL,
		author_id  TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		progress   INTEGER,
		blockers   TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS daily_updates_task_idx ON daily_updates (task_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS daily_updates_author_idx ON daily_updates (author_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		type       TEXT NOT NULL DEFAULT 'generic',
		title      TEXT NOT NULL,
		message    TEXT NOT NULL,
		action_url TEXT NOT NULL DEFAULT '',
		meta       TEXT,
		read       INTEGER NOT NULL DEFAULT 0,
		seen_at    TEXT,
		priority   TEXT NOT NULL DEFAULT 'normal',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, read, created_at)`,
}

// Migrate creates the tables and indexes when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == SQLite {
		schema = sqliteSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect, err)
		}
	}
	return nil
}
