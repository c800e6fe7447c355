package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"altivio-backend/internal/models"
	"altivio-backend/internal/store"
)

// Store is what the enrichment prompts read from.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error)
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]models.Project, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error)
	ListUpdates(ctx context.Context, f store.UpdateFilter) ([]models.DailyUpdate, error)
}

type DailyInsights struct {
	Summary          string   `json:"summary"`
	TopPriority      string   `json:"topPriority,omitempty"`
	RiskAlert        *string  `json:"riskAlert"`
	Suggestions      []string `json:"suggestions"`
	MotivationalNote string   `json:"motivationalNote,omitempty"`
}

type TeamSummary struct {
	TeamHealthScore    int      `json:"teamHealthScore"`
	Summary            string   `json:"summary"`
	TopPerformers      []string `json:"topPerformers"`
	NeedsAttention     []string `json:"needsAttention"`
	ActionItems        []string `json:"actionItems"`
	RiskAreas          []string `json:"riskAreas"`
	PositiveHighlights []string `json:"positiveHighlights"`

	Members []MemberStats `json:"memberStats"`
}

type MemberStats struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Blocked   int    `json:"blocked"`
	Overdue   int    `json:"overdue"`
}

type Retrospective struct {
	SprintScore                  int      `json:"sprintScore"`
	VelocitySummary              string   `json:"velocitySummary"`
	WhatWentWell                 []string `json:"whatWentWell"`
	WhatCouldImprove             []string `json:"whatCouldImprove"`
	BlockerPatterns              string   `json:"blockerPatterns"`
	RecommendationsForNextSprint []string `json:"recommendationsForNextSprint"`
	TeamMorale                   string   `json:"teamMorale"`
	KeyLearnings                 []string `json:"keyLearnings"`
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Service builds prompts from store data and decodes the model's JSON
// replies. A nil generator disables it.
type Service struct {
	gen    Generator
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(gen Generator, st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if c, ok := gen.(*GeminiClient); ok && (c == nil || c.APIKey == "") {
		gen = nil
	}
	return &Service{
		gen:    gen,
		store:  st,
		logger: logger.With("component", "ai"),
		now:    time.Now,
	}
}

func (s *Service) IsAvailable() bool {
	return s != nil && s.gen != nil
}

// GenerateDailyInsights returns a canned summary without calling the model
// when the user has no open tasks.
func (s *Service) GenerateDailyInsights(ctx context.Context, userID string) (*DailyInsights, error) {
	if !s.IsAvailable() {
		return nil, ErrUnavailable
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{
		AssigneeID:      userID,
		ExcludeStatuses: []models.TaskStatus{models.StatusDone},
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", userID, err)
	}
	if len(tasks) == 0 {
		return &DailyInsights{Summary: "No active tasks to analyze.", Suggestions: []string{}}, nil
	}

	since := s.now().Add(-7 * 24 * time.Hour)
	updates, err := s.store.ListUpdates(ctx, store.UpdateFilter{AuthorID: userID, Since: &since})
	if err != nil {
		return nil, fmt.Errorf("list updates for %s: %w", userID, err)
	}

	var out DailyInsights
	if err := s.ask(ctx, BuildDailyInsightsPrompt(*user, tasks, updates), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTeamSummary covers every active project the manager owns or
// belongs to.
func (s *Service) GenerateTeamSummary(ctx context.Context, managerID string) (*TeamSummary, error) {
	if !s.IsAvailable() {
		return nil, ErrUnavailable
	}

	projects, err := s.store.ListProjects(ctx, store.ProjectFilter{
		InvolvesUser: managerID,
		Status:       models.ProjectActive,
	})
	if err != nil {
		return nil, fmt.Errorf("list projects for %s: %w", managerID, err)
	}

	var tasks []models.Task
	if len(projects) > 0 {
		ids := make([]string, 0, len(projects))
		for _, p := range projects {
			ids = append(ids, p.ID)
		}
		tasks, err = s.store.ListTasks(ctx, store.TaskFilter{ProjectIDs: ids})
		if err != nil {
			return nil, fmt.Errorf("list team tasks: %w", err)
		}
	}

	members, err := s.memberStats(ctx, tasks)
	if err != nil {
		return nil, err
	}

	var out TeamSummary
	if err := s.ask(ctx, BuildTeamSummaryPrompt(projects, members, tasks), &out); err != nil {
		return nil, err
	}
	out.Members = members
	return &out, nil
}

func (s *Service) memberStats(ctx context.Context, tasks []models.Task) ([]MemberStats, error) {
	now := s.now()
	byID := map[string]*MemberStats{}
	var ids []string
	for _, t := range tasks {
		if t.AssigneeID == "" {
			continue
		}
		m, ok := byID[t.AssigneeID]
		if !ok {
			m = &MemberStats{UserID: t.AssigneeID}
			byID[t.AssigneeID] = m
			ids = append(ids, t.AssigneeID)
		}
		m.Total++
		switch t.Status {
		case models.StatusDone:
			m.Completed++
		case models.StatusBlocked:
			m.Blocked++
		}
		if t.IsOverdue(now) {
			m.Overdue++
		}
	}
	if len(ids) == 0 {
		return []MemberStats{}, nil
	}

	users, err := s.store.ListUsers(ctx, store.UserFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	for _, u := range users {
		if m, ok := byID[u.ID]; ok {
			m.Name = u.Name
		}
	}

	sort.Strings(ids)
	out := make([]MemberStats, 0, len(ids))
	for _, id := range ids {
		m := byID[id]
		if m.Name == "" {
			m.Name = "Unknown"
		}
		out = append(out, *m)
	}
	return out, nil
}

// GenerateSprintRetrospective looks at the project's tasks last touched
// within [from, to].
func (s *Service) GenerateSprintRetrospective(ctx context.Context, projectID string, from, to time.Time) (*Retrospective, error) {
	if !s.IsAvailable() {
		return nil, ErrUnavailable
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}

	all, err := s.store.ListTasks(ctx, store.TaskFilter{ProjectIDs: []string{projectID}})
	if err != nil {
		return nil, fmt.Errorf("list tasks for project %s: %w", projectID, err)
	}
	var (
		tasks       []models.Task
		taskIDs     []string
		assigneeIDs []string
	)
	for _, t := range all {
		if t.UpdatedAt.Before(from) || t.UpdatedAt.After(to) {
			continue
		}
		tasks = append(tasks, t)
		taskIDs = append(taskIDs, t.ID)
		if t.AssigneeID != "" {
			assigneeIDs = append(assigneeIDs, t.AssigneeID)
		}
	}

	updateCount := 0
	if len(taskIDs) > 0 {
		updates, err := s.store.ListUpdates(ctx, store.UpdateFilter{TaskIDs: taskIDs, Since: &from, Until: &to})
		if err != nil {
			return nil, fmt.Errorf("list sprint updates: %w", err)
		}
		updateCount = len(updates)
	}

	names := map[string]string{}
	if len(assigneeIDs) > 0 {
		users, err := s.store.ListUsers(ctx, store.UserFilter{IDs: assigneeIDs})
		if err != nil {
			return nil, fmt.Errorf("list assignees: %w", err)
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}

	var out Retrospective
	prompt := BuildRetrospectivePrompt(*project, from, to, tasks, updateCount, names)
	if err := s.ask(ctx, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ask(ctx context.Context, prompt string, dst any) error {
	reply, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("generate: %w", err)
	}
	return decodeReply(reply, dst)
}

// decodeReply unmarshals the outermost {...} in reply, ignoring any prose
// or code fences around it.
func decodeReply(reply string, dst any) error {
	raw := jsonObject.FindString(reply)
	if raw == "" {
		return fmt.Errorf("model reply has no JSON object")
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}
