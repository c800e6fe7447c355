// Package insights serves project health and team insights for managers.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"altivio-backend/internal/ai"
	"altivio-backend/internal/auth"
	"altivio-backend/internal/confidence"
	"altivio-backend/internal/httpx"
	"altivio-backend/internal/models"
	"altivio-backend/internal/recommendations"
	"altivio-backend/internal/store"
)

type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
}

type HealthScorer interface {
	ProjectHealthSummary(ctx context.Context, projectID string) (*confidence.HealthSummary, error)
}

type TeamAnalyzer interface {
	TeamInsights(ctx context.Context, managerID string) ([]recommendations.Insight, error)
}

// Summarizer is satisfied by *ai.Service.
type Summarizer interface {
	IsAvailable() bool
	GenerateTeamSummary(ctx context.Context, managerID string) (*ai.TeamSummary, error)
}

type Handler struct {
	projects  ProjectStore
	health    HealthScorer
	team      TeamAnalyzer
	llm       Summarizer
	aiTimeout time.Duration
	logger    *slog.Logger
}

func NewHandler(projects ProjectStore, health HealthScorer, team TeamAnalyzer, llm Summarizer, aiTimeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if aiTimeout <= 0 {
		aiTimeout = 20 * time.Second
	}
	return &Handler{
		projects:  projects,
		health:    health,
		team:      team,
		llm:       llm,
		aiTimeout: aiTimeout,
		logger:    logger.With("component", "insights-http"),
	}
}

// Routes mounts under /api behind the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/projects/{projectId}/health", h.ProjectHealth)
	r.With(auth.RequireManager).Get("/insights/team", h.Team)
}

func (h *Handler) ProjectHealth(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	if _, err := h.projects.GetProject(r.Context(), projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Message(w, http.StatusNotFound, "Project not found")
			return
		}
		httpx.Error(w, h.logger, err)
		return
	}

	summary, err := h.health.ProjectHealthSummary(r.Context(), projectID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// teamView has the same shape whichever source produced it.
type teamView struct {
	Summary  string                    `json:"summary"`
	Insights []recommendations.Insight `json:"insights"`
}

// Team must sit behind auth.RequireManager.
func (h *Handler) Team(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if view, ok := h.fromLLM(r.Context(), id.UserID); ok {
		httpx.WriteJSON(w, http.StatusOK, view)
		return
	}

	rules, err := h.team.TeamInsights(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, teamView{Summary: rulesSummary(rules), Insights: rules})
}

func (h *Handler) fromLLM(ctx context.Context, managerID string) (teamView, bool) {
	if h.llm == nil || !h.llm.IsAvailable() {
		return teamView{}, false
	}
	actx, cancel := context.WithTimeout(ctx, h.aiTimeout)
	defer cancel()

	ts, err := h.llm.GenerateTeamSummary(actx, managerID)
	if err != nil {
		h.logger.Warn("AI team summary failed, continue", "manager", managerID, "err", err)
		return teamView{}, false
	}
	return summaryView(ts), true
}

func summaryView(ts *ai.TeamSummary) teamView {
	view := teamView{Summary: ts.Summary, Insights: []recommendations.Insight{}}
	if view.Summary == "" {
		view.Summary = fmt.Sprintf("Team health score: %d%%", ts.TeamHealthScore)
	}
	add := func(kind, title string, p confidence.Priority, items []string) {
		for i, msg := range items {
			view.Insights = append(view.Insights, recommendations.Insight{
				ID:       fmt.Sprintf("%s-%d", kind, i+1),
				Type:     kind,
				Priority: p,
				Title:    title,
				Message:  msg,
			})
		}
	}
	add("risk_area", "Risk Area", confidence.PriorityHigh, ts.RiskAreas)
	add("needs_attention", "Needs Attention", confidence.PriorityMedium, ts.NeedsAttention)
	add("action_item", "Action Item", confidence.PriorityMedium, ts.ActionItems)
	add("highlight", "Highlight", confidence.PriorityLow, ts.PositiveHighlights)
	return view
}

func rulesSummary(rules []recommendations.Insight) string {
	if len(rules) == 0 {
		return "No issues need attention right now."
	}
	return fmt.Sprintf("%d issue(s) need attention. %s", len(rules), rules[0].Message)
}
