// Package notifications serves the notification inbox, the recommendation
// digest and per-task confidence over HTTP.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"altivio-backend/internal/auth"
	"altivio-backend/internal/confidence"
	"altivio-backend/internal/httpx"
	"altivio-backend/internal/models"
	"altivio-backend/internal/notify"
	"altivio-backend/internal/recommendations"
	"altivio-backend/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

type Store interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	store.NotificationStore
}

type Scorer interface {
	CalculateTaskConfidence(ctx context.Context, taskID string) (*confidence.Result, error)
}

type Digester interface {
	Digest(ctx context.Context, userID string) (*recommendations.Digest, error)
}

type Notifier interface {
	Notify(ctx context.Context, m notify.Message) (*models.Notification, error)
}

type Handler struct {
	store    Store
	scorer   Scorer
	digests  Digester
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(st Store, scorer Scorer, digests Digester, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    st,
		scorer:   scorer,
		digests:  digests,
		notifier: notifier,
		logger:   logger.With("component", "notifications-http"),
		now:      time.Now,
	}
}

// Routes mounts under /api/notifications. The caller must already be
// authenticated.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/unread-count", h.UnreadCount)
	r.Get("/recommendations", h.Recommendations)
	r.Get("/task-confidence/{taskId}", h.TaskConfidence)
	r.Post("/read-all", h.MarkAllRead)
	r.Delete("/clear-read", h.ClearRead)
	r.Patch("/{id}/read", h.MarkRead)
	r.Delete("/{id}", h.Delete)
}

func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Pagination    pagination            `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	page = max(1, page)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(maxLimit, limit)

	f := store.NotificationFilter{UserID: id.UserID, Type: models.NotificationType(q.Get("type"))}
	switch q.Get("read") {
	case "true":
		f.Read = ptr(true)
	case "false":
		f.Read = ptr(false)
	}

	total, err := h.store.CountNotifications(r.Context(), f)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	f.Limit, f.Offset = limit, (page-1)*limit
	items, err := h.store.ListNotifications(r.Context(), f)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	if q.Get("sort") == "priority" {
		if err := h.sortByPriority(r.Context(), id.UserID, items); err != nil {
			httpx.Error(w, h.logger, err)
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, listResponse{
		Notifications: items,
		Pagination: pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

func (h *Handler) sortByPriority(ctx context.Context, userID string, items []models.Notification) error {
	now := h.now()
	overdue, err := h.store.ListTasks(ctx, store.TaskFilter{
		AssigneeID:      userID,
		ExcludeStatuses: []models.TaskStatus{models.StatusDone},
		DueBefore:       &now,
	})
	if err != nil {
		return fmt.Errorf("check overdue tasks: %w", err)
	}
	hasOverdue := len(overdue) > 0

	sort.SliceStable(items, func(i, j int) bool {
		return recommendations.NotificationScore(items[i], hasOverdue, now) >
			recommendations.NotificationScore(items[j], hasOverdue, now)
	})
	return nil
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	byType, err := h.store.CountUnreadByType(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	total := 0
	for _, n := range byType {
		total += n
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"total": total, "byType": byType})
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	d, err := h.digests.Digest(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

type taskConfidence struct {
	TaskID string            `json:"taskId"`
	Title  string            `json:"title"`
	Status models.TaskStatus `json:"status"`
	confidence.Result
}

func (h *Handler) TaskConfidence(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	taskID := chi.URLParam(r, "taskId")

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Message(w, http.StatusNotFound, "Task not found")
			return
		}
		httpx.Error(w, h.logger, err)
		return
	}
	res, err := h.scorer.CalculateTaskConfidence(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Message(w, http.StatusNotFound, "Task not found")
			return
		}
		httpx.Error(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, taskConfidence{
		TaskID: task.ID,
		Title:  task.Title,
		Status: task.Status,
		Result: *res,
	})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	doc, err := h.store.MarkNotificationRead(r.Context(), id.UserID, chi.URLParam(r, "id"), h.now().UTC())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkAllNotificationsRead(r.Context(), id.UserID, h.now().UTC())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "modifiedCount": n})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteNotification(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Notification deleted"})
}

func (h *Handler) ClearRead(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := h.store.DeleteReadNotifications(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "deletedCount": n})
}

type createRequest struct {
	UserID    string         `json:"userId" validate:"required"`
	Type      string         `json:"type" validate:"omitempty,oneof=task_assigned task_update eod_reminder deadline_soon generic ai_recommendation project_update blocker_alert"`
	Title     string         `json:"title" validate:"required"`
	Message   string         `json:"message" validate:"required"`
	ActionURL string         `json:"actionUrl"`
	Meta      map[string]any `json:"meta"`
}

// Create lets managers and admins notify anyone; devs may only notify
// themselves.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var body createRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if id.Role == models.RoleDev && body.UserID != id.UserID {
		httpx.Message(w, http.StatusForbidden, "Cannot create notifications for other users")
		return
	}

	doc, err := h.notifier.Notify(r.Context(), notify.Message{
		UserID:    body.UserID,
		Type:      models.NotificationType(body.Type),
		Title:     body.Title,
		Message:   body.Message,
		ActionURL: body.ActionURL,
		Meta:      body.Meta,
	})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, doc)
}

func ptr[T any](v T) *T { return &v }
