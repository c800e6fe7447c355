package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"altivio-backend/internal/models"
)

const EventNotificationNew = "notification:new"

// Message is what callers hand to the notifier.
type Message struct {
	UserID    string
	Type      models.NotificationType
	Title     string
	Message   string
	ActionURL string
	Meta      map[string]any
	Priority  string
}

type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Emitter is satisfied by *Hub.
type Emitter interface {
	Emit(userID string, ev Event)
}

type Notifier struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time
}

func NewNotifier(st Store, emitter Emitter, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		store:   st,
		emitter: emitter,
		logger:  logger.With("component", "notifier"),
		now:     time.Now,
	}
}

type pushed struct {
	ID        string                  `json:"id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	ActionURL string                  `json:"actionUrl,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

// Notify persists the notification and pushes it to the user's live
// connections. Only persistence failures are reported.
func (n *Notifier) Notify(ctx context.Context, m Message) (*models.Notification, error) {
	if m.Type == "" {
		m.Type = models.NotificationGeneric
	}
	if m.Priority == "" {
		m.Priority = "normal"
	}

	doc := &models.Notification{
		UserID:    m.UserID,
		Type:      m.Type,
		Title:     m.Title,
		Message:   m.Message,
		ActionURL: m.ActionURL,
		Meta:      m.Meta,
		Priority:  m.Priority,
		CreatedAt: n.now().UTC(),
	}
	if err := n.store.CreateNotification(ctx, doc); err != nil {
		return nil, fmt.Errorf("store notification for %s: %w", m.UserID, err)
	}

	n.Push(doc)
	return doc, nil
}

// Push emits an already stored notification.
func (n *Notifier) Push(doc *models.Notification) {
	if n.emitter == nil {
		return
	}
	n.emitter.Emit(doc.UserID, Event{
		Event: EventNotificationNew,
		Data: pushed{
			ID:        doc.ID,
			Type:      doc.Type,
			Title:     doc.Title,
			Message:   doc.Message,
			ActionURL: doc.ActionURL,
			CreatedAt: doc.CreatedAt,
		},
	})
	n.logger.Debug("notification pushed", "user", doc.UserID, "type", doc.Type)
}
