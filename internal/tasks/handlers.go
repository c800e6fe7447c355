// Package tasks serves task edits and daily updates, rescoring confidence
// synchronously on every write.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"altivio-backend/internal/auth"
	"altivio-backend/internal/confidence"
	"altivio-backend/internal/httpx"
	"altivio-backend/internal/models"
	"altivio-backend/internal/notify"
	"altivio-backend/internal/store"
)

type Store interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	SaveTask(ctx context.Context, t *models.Task) error
	CreateUpdate(ctx context.Context, u *models.DailyUpdate) error
	ListUpdates(ctx context.Context, f store.UpdateFilter) ([]models.DailyUpdate, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error)
}

// Scorer is satisfied by *confidence.Service.
type Scorer interface {
	Score(ctx context.Context, task models.Task) (confidence.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, m notify.Message) (*models.Notification, error)
}

type Handler struct {
	store    Store
	scorer   Scorer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(st Store, scorer Scorer, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    st,
		scorer:   scorer,
		notifier: notifier,
		logger:   logger.With("component", "tasks-http"),
		now:      time.Now,
	}
}

// TaskRoutes mounts under /api/tasks.
func (h *Handler) TaskRoutes(r chi.Router) {
	r.Get("/mine", h.Mine)
	r.Get("/{taskId}", h.Get)
	r.Patch("/{taskId}", h.Update)
}

// UpdateRoutes mounts under /api/daily-updates.
func (h *Handler) UpdateRoutes(r chi.Router) {
	r.Post("/", h.CreateUpdate)
	r.Get("/task/{taskId}", h.ListUpdates)
	r.Get("/task/{taskId}/journey", h.Journey)
}

func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}

// loadTask writes the 404 itself so handlers can simply return.
func (h *Handler) loadTask(w http.ResponseWriter, r *http.Request, id string) (*models.Task, bool) {
	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Message(w, http.StatusNotFound, "Task not found")
		} else {
			httpx.Error(w, h.logger, err)
		}
		return nil, false
	}
	return task, true
}

func canEdit(id auth.Identity, t *models.Task) bool {
	return id.Role != models.RoleDev || t.AssigneeID == id.UserID
}

// rescore recomputes confidence for t in place. A scoring failure keeps
// the previous cached score.
func (h *Handler) rescore(ctx context.Context, t *models.Task) *confidence.Result {
	res, err := h.scorer.Score(ctx, *t)
	if err != nil {
		h.logger.Warn("confidence rescore failed, keeping cached score", "task", t.ID, "err", err)
		return nil
	}
	t.AIConfidence = res.Score
	return &res
}

func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := h.store.ListTasks(r.Context(), store.TaskFilter{AssigneeID: id.UserID})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	task, ok := h.loadTask(w, r, chi.URLParam(r, "taskId"))
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

type updateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=2"`
	Description *string    `json:"description"`
	AssigneeID  *string    `json:"assigneeId"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status      *string    `json:"status" validate:"omitempty,oneof=todo in_progress blocked done"`
	StartDate   *time.Time `json:"startDate"`
	DueDate     *time.Time `json:"dueDate"`
	Progress    *int       `json:"progress" validate:"omitempty,min=0,max=100"`
	Blockers    []string   `json:"blockers"`
}

func (b updateTaskRequest) apply(t *models.Task) {
	if b.Title != nil {
		t.Title = *b.Title
	}
	if b.Description != nil {
		t.Description = *b.Description
	}
	if b.AssigneeID != nil {
		t.AssigneeID = *b.AssigneeID
	}
	if b.Priority != nil {
		t.Priority = models.TaskPriority(*b.Priority)
	}
	if b.Status != nil {
		t.Status = models.TaskStatus(*b.Status)
	}
	if b.StartDate != nil {
		t.StartDate = b.StartDate
	}
	if b.DueDate != nil {
		t.DueDate = b.DueDate
	}
	if b.Progress != nil {
		t.Progress = *b.Progress
	}
	if b.Blockers != nil {
		t.Blockers = b.Blockers
	}
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var body updateTaskRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	task, ok := h.loadTask(w, r, chi.URLParam(r, "taskId"))
	if !ok {
		return
	}
	if !canEdit(id, task) {
		httpx.Message(w, http.StatusForbidden, "Cannot edit someone else's task")
		return
	}

	body.apply(task)
	h.rescore(r.Context(), task)
	if err := h.store.SaveTask(r.Context(), task); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}
