package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

const notificationColumns = `id, user_id, type, title, message, action_url, meta, read, seen_at, priority, created_at`

func scanNotification(r rowScanner) (models.Notification, error) {
	var (
		n       models.Notification
		seen    timestamp
		created timestamp
	)
	err := r.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ActionURL, jsonScanner{&n.Meta}, &n.Read, &seen, &n.Priority, &created)
	if err != nil {
		return models.Notification{}, err
	}
	n.SeenAt = seen.ptr()
	n.CreatedAt = created.Time
	return n, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var meta any
	if len(n.Meta) > 0 {
		meta = jsonValue{n.Meta}
	}

	_, err := s.exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.ActionURL, meta, n.Read,
		s.dialect.timePtr(n.SeenAt), n.Priority, s.dialect.time(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create notification for %s: %w", n.UserID, err)
	}
	return nil
}

func notificationWhere(f store.NotificationFilter) *where {
	w := &where{}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Read != nil {
		w.add("read = ?", *f.Read)
	}
	return w
}

func (s *Store) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]models.Notification, error) {
	w := notificationWhere(f)
	q := `SELECT ` + notificationColumns + ` FROM notifications` + w.String() + ` ORDER BY created_at DESC, id`
	args := w.args
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, f store.NotificationFilter) (int, error) {
	w := notificationWhere(f)
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM notifications`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func (s *Store) CountUnreadByType(ctx context.Context, userID string) (map[models.NotificationType]int, error) {
	rows, err := s.query(ctx,
		`SELECT type, COUNT(*) FROM notifications WHERE user_id = ? AND read = ? GROUP BY type`, userID, false)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	defer rows.Close()

	out := map[models.NotificationType]int{}
	for rows.Next() {
		var (
			t models.NotificationType
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (*models.Notification, error) {
	res, err := s.exec(ctx,
		`UPDATE notifications SET read = ?, seen_at = ? WHERE id = ? AND user_id = ?`,
		true, s.dialect.time(at), id, userID)
	if err != nil {
		return nil, fmt.Errorf("mark %s read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}

	n, err := scanNotification(s.queryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("notification", id, err)
	}
	return &n, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE notifications SET read = ?, seen_at = ? WHERE user_id = ? AND read = ?`,
		true, s.dialect.time(at), userID, false)
	if err != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteReadNotifications(ctx context.Context, userID string) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM notifications WHERE user_id = ? AND read = ?`, userID, true)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications for %s: %w", userID, err)
	}
	return res.RowsAffected()
}
