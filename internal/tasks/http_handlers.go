package tasks

import (
	"fmt"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"altivio-backend/internal/confidence"
	"altivio-backend/internal/httpx"
	"altivio-backend/internal/models"
	"altivio-backend/internal/notify"
	"altivio-backend/internal/store"
)

type createUpdateRequest struct {
	Task     string   `json:"task" validate:"required"`
	Note     string   `json:"note"`
	Progress *int     `json:"progress" validate:"omitempty,min=0,max=100"`
	Blockers []string `json:"blockers"`
}

type createUpdateResponse struct {
	Update *models.DailyUpdate `json:"update"`
	Task   *models.Task        `json:"task"`
}

// CreateUpdate records a daily update, copies its progress and blockers onto
// the task, rescores the task and tells the project owner.
func (h *Handler) CreateUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var body createUpdateRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	task, ok := h.loadTask(w, r, body.Task)
	if !ok {
		return
	}
	if !canEdit(id, task) {
		httpx.Message(w, http.StatusForbidden, "Cannot update someone else's task")
		return
	}

	update := &models.DailyUpdate{
		TaskID:    task.ID,
		AuthorID:  id.UserID,
		Note:      body.Note,
		Progress:  body.Progress,
		Blockers:  body.Blockers,
		CreatedAt: h.now().UTC(),
	}
	if err := h.store.CreateUpdate(r.Context(), update); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	if body.Progress != nil {
		task.Progress = *body.Progress
	}
	if len(body.Blockers) > 0 {
		task.Blockers = body.Blockers
	}
	h.rescore(r.Context(), task)
	if err := h.store.SaveTask(r.Context(), task); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	h.notifyOwner(r, task, id.UserID)
	httpx.WriteJSON(w, http.StatusCreated, createUpdateResponse{Update: update, Task: task})
}

func (h *Handler) notifyOwner(r *http.Request, task *models.Task, authorID string) {
	if task.ProjectID == "" || h.notifier == nil {
		return
	}
	ctx := r.Context()
	project, err := h.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		h.logger.Warn("load project for update notice failed", "task", task.ID, "err", err)
		return
	}
	if project.OwnerID == "" || project.OwnerID == authorID {
		return
	}

	name := "A team member"
	if u, err := h.store.GetUser(ctx, authorID); err == nil && u.Name != "" {
		name = u.Name
	}
	_, err = h.notifier.Notify(ctx, notify.Message{
		UserID:    project.OwnerID,
		Type:      models.NotificationTaskUpdate,
		Title:     "Task Update Received",
		Message:   fmt.Sprintf("%s submitted an update on %q - Progress: %d%%", name, task.Title, task.Progress),
		ActionURL: "/tasks/" + task.ID,
		Meta:      map[string]any{"taskId": task.ID, "progress": task.Progress},
	})
	if err != nil {
		h.logger.Warn("update notice failed", "task", task.ID, "owner", project.OwnerID, "err", err)
	}
}

func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	updates, err := h.store.ListUpdates(r.Context(), store.UpdateFilter{TaskIDs: []string{chi.URLParam(r, "taskId")}})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updates)
}

type timelineEntry struct {
	Date          time.Time `json:"date"`
	Author        string    `json:"author"`
	Note          string    `json:"note,omitempty"`
	Progress      *int      `json:"progress"`
	Blockers      []string  `json:"blockers"`
	ProgressDelta int       `json:"progressDelta"`
}

type journeySummary struct {
	TotalUpdates    int      `json:"totalUpdates"`
	DaysActive      int      `json:"daysActive"`
	CurrentProgress int      `json:"currentProgress"`
	Velocity        float64  `json:"velocity"`
	AllBlockers     []string `json:"allBlockers"`
}

type journeyResponse struct {
	Task    *models.Task `json:"task"`
	Journey struct {
		Timeline []timelineEntry `json:"timeline"`
		Summary  journeySummary  `json:"summary"`
	} `json:"journey"`
	AIAnalysis *confidence.Result `json:"aiAnalysis"`
}

// Journey replays a task's updates oldest first with progress deltas and
// an average velocity.
func (h *Handler) Journey(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	task, ok := h.loadTask(w, r, chi.URLParam(r, "taskId"))
	if !ok {
		return
	}

	updates, err := h.store.ListUpdates(r.Context(), store.UpdateFilter{TaskIDs: []string{task.ID}})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	slices.Reverse(updates)

	names, err := h.authorNames(r, updates)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}

	var out journeyResponse
	out.Task = task
	out.Journey.Timeline = buildTimeline(updates, names)
	out.Journey.Summary = summarize(*task, updates, h.now())
	out.AIAnalysis = h.rescore(r.Context(), task)
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) authorNames(r *http.Request, updates []models.DailyUpdate) (map[string]string, error) {
	var ids []string
	for _, u := range updates {
		if !slices.Contains(ids, u.AuthorID) {
			ids = append(ids, u.AuthorID)
		}
	}
	names := map[string]string{}
	if len(ids) == 0 {
		return names, nil
	}
	users, err := h.store.ListUsers(r.Context(), store.UserFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("load update authors: %w", err)
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func buildTimeline(updates []models.DailyUpdate, names map[string]string) []timelineEntry {
	out := make([]timelineEntry, 0, len(updates))
	for i, u := range updates {
		author := names[u.AuthorID]
		if author == "" {
			author = "Unknown"
		}
		e := timelineEntry{
			Date:     u.CreatedAt,
			Author:   author,
			Note:     u.Note,
			Progress: u.Progress,
			Blockers: u.Blockers,
		}
		if e.Blockers == nil {
			e.Blockers = []string{}
		}
		if i > 0 && updates[i-1].Progress != nil && u.Progress != nil {
			e.ProgressDelta = *u.Progress - *updates[i-1].Progress
		}
		out = append(out, e)
	}
	return out
}

// summarize expects updates oldest first.
func summarize(task models.Task, updates []models.DailyUpdate, now time.Time) journeySummary {
	s := journeySummary{
		TotalUpdates:    len(updates),
		CurrentProgress: task.Progress,
		AllBlockers:     []string{},
	}
	if len(updates) > 0 {
		s.DaysActive = int(math.Ceil(now.Sub(updates[0].CreatedAt).Hours() / 24))
	}

	var withProgress []models.DailyUpdate
	for _, u := range updates {
		if u.Progress != nil {
			withProgress = append(withProgress, u)
		}
		for _, b := range u.Blockers {
			if !slices.Contains(s.AllBlockers, b) {
				s.AllBlockers = append(s.AllBlockers, b)
			}
		}
	}
	if n := len(withProgress); n > 1 {
		v := float64(task.Progress-*withProgress[0].Progress) / float64(n)
		s.Velocity = math.Round(v*10) / 10
	}
	return s
}
