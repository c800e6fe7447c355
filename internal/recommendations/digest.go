package recommendations

import (
	"context"
	"fmt"
	"math"

	"altivio-backend/internal/confidence"
	"altivio-backend/internal/models"
)

const maxTaskRecommendations = 10

type TaskRecommendation struct {
	confidence.Recommendation
	TaskID    string `json:"taskId"`
	TaskTitle string `json:"taskTitle"`
}

type TaskAnalysis struct {
	TaskID     string               `json:"taskId"`
	Title      string               `json:"title"`
	Confidence int                  `json:"confidence"`
	RiskLevel  confidence.RiskLevel `json:"riskLevel"`
	Analysis   confidence.Analysis  `json:"analysis"`
}

type OverallRecommendation struct {
	Priority confidence.Priority `json:"priority"`
	Type     string              `json:"type"`
	Message  string              `json:"message"`
}

type DigestSummary struct {
	TotalTasks    int `json:"totalTasks"`
	AtRiskTasks   int `json:"atRiskTasks"`
	AvgConfidence int `json:"avgConfidence"`
	BlockedTasks  int `json:"blockedTasks"`
}

// Digest is the payload behind the user's recommendations view.
type Digest struct {
	Recommendations        []TaskRecommendation    `json:"recommendations"`
	OverallRecommendations []OverallRecommendation `json:"overallRecommendations"`
	UserRecommendations    []Recommendation        `json:"userRecommendations"`
	TaskAnalysis           []TaskAnalysis          `json:"taskAnalysis"`
	Summary                DigestSummary           `json:"summary"`
	Message                string                  `json:"message,omitempty"`
}

// Digest scores each of the user's open tasks and merges their task-level
// recommendations with the user-level feed.
func (s *Service) Digest(ctx context.Context, userID string) (*Digest, error) {
	tasks, err := s.activeTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &Digest{
		Recommendations:        []TaskRecommendation{},
		OverallRecommendations: []OverallRecommendation{},
		UserRecommendations:    []Recommendation{},
		TaskAnalysis:           []TaskAnalysis{},
	}
	if len(tasks) == 0 {
		d.Message = "No active tasks found"
		return d, nil
	}

	total := 0
	for _, t := range tasks {
		res, err := s.scorer.Score(ctx, t)
		if err != nil {
			s.logger.Warn("confidence failed, task left out of digest", "user", userID, "task", t.ID, "err", err)
			continue
		}
		total += res.Score
		if res.Score < 60 {
			d.Summary.AtRiskTasks++
		}
		d.TaskAnalysis = append(d.TaskAnalysis, TaskAnalysis{
			TaskID:     t.ID,
			Title:      t.Title,
			Confidence: res.Score,
			RiskLevel:  res.RiskLevel,
			Analysis:   res.Analysis,
		})
		for _, r := range res.Recommendations {
			d.Recommendations = append(d.Recommendations, TaskRecommendation{Recommendation: r, TaskID: t.ID, TaskTitle: t.Title})
		}
	}

	confidence.SortByPriority(d.Recommendations, func(r TaskRecommendation) confidence.Priority { return r.Priority })
	if len(d.Recommendations) > maxTaskRecommendations {
		d.Recommendations = d.Recommendations[:maxTaskRecommendations]
	}

	d.Summary.TotalTasks = len(tasks)
	if n := len(d.TaskAnalysis); n > 0 {
		d.Summary.AvgConfidence = int(math.Floor(float64(total)/float64(n) + 0.5))
	}

	blocked, urgent := 0, 0
	for _, t := range tasks {
		if t.Status == models.StatusBlocked {
			blocked++
		}
		if t.Priority == models.PriorityUrgent {
			urgent++
		}
	}
	d.Summary.BlockedTasks = blocked

	if float64(d.Summary.AtRiskTasks) > float64(len(tasks))*0.5 {
		d.OverallRecommendations = append(d.OverallRecommendations, OverallRecommendation{
			Priority: confidence.PriorityCritical,
			Type:     "workload",
			Message:  fmt.Sprintf("%d of %d tasks are at risk. Consider discussing workload with your manager.", d.Summary.AtRiskTasks, len(tasks)),
		})
	}
	if blocked > 0 {
		d.OverallRecommendations = append(d.OverallRecommendations, OverallRecommendation{
			Priority: confidence.PriorityHigh,
			Type:     "blockers",
			Message:  fmt.Sprintf("You have %d blocked task(s). Prioritize resolving blockers.", blocked),
		})
	}
	if urgent > 0 {
		d.OverallRecommendations = append(d.OverallRecommendations, OverallRecommendation{
			Priority: confidence.PriorityHigh,
			Type:     "priority",
			Message:  fmt.Sprintf("%d urgent task(s) require immediate attention.", urgent),
		})
	}

	user, err := s.UserRecommendations(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.UserRecommendations = user

	return d, nil
}
