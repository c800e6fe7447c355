// Package confidence scores how likely a task is to finish on time and
// derives task-level recommendations and project health rollups.
package confidence

import (
	"fmt"
	"math"
	"time"

	"altivio-backend/internal/models"
)

// Factor caps. The factors sum to the final score.
const (
	MaxTimeScore       = 25
	MaxProgressScore   = 25
	MaxBlockerScore    = 25
	MaxDependencyScore = 15
	MaxActivityScore   = 10

	blockerPenalty    = 8
	defaultRunwayDays = 14
	recentWindow      = 7 * 24 * time.Hour
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskFromScore buckets a score: <40 critical, <60 high, <80 medium, else low.
func RiskFromScore(score int) RiskLevel {
	switch {
	case score < 40:
		return RiskCritical
	case score < 60:
		return RiskHigh
	case score < 80:
		return RiskMedium
	default:
		return RiskLow
	}
}

type Factors struct {
	TimeScore       int `json:"timeScore"`
	ProgressScore   int `json:"progressScore"`
	BlockerScore    int `json:"blockerScore"`
	DependencyScore int `json:"dependencyScore"`
	ActivityScore   int `json:"activityScore"`
}

func (f Factors) Sum() int {
	return f.TimeScore + f.ProgressScore + f.BlockerScore + f.DependencyScore + f.ActivityScore
}

type Analysis struct {
	DaysRemaining    float64 `json:"daysRemaining"`
	ExpectedProgress int     `json:"expectedProgress"`
	ActualProgress   int     `json:"actualProgress"`
	ProgressDelta    int     `json:"progressDelta"`
	BlockerCount     int     `json:"blockerCount"`
	DependencyStatus string  `json:"dependencyStatus"`
}

// Options carries the context the scorer cannot read off the task itself.
// The zero value means no completed dependencies and no recent updates.
type Options struct {
	CompletedDependencies int
	RecentUpdateCount     int
}

type Result struct {
	Score           int              `json:"score"`
	RiskLevel       RiskLevel        `json:"riskLevel"`
	Factors         Factors          `json:"factors"`
	Recommendations []Recommendation `json:"recommendations"`
	Analysis        Analysis         `json:"analysis"`
}

// Score computes the confidence result for task as of now. It has no side
// effects and is defined for every task shape, including ones without dates.
func Score(task models.Task, opts Options, now time.Time) Result {
	daysLeft := float64(defaultRunwayDays)
	if task.DueDate != nil {
		daysLeft = math.Max(0, days(task.DueDate.Sub(now)))
	}

	totalDuration := float64(defaultRunwayDays)
	if task.DueDate != nil && task.StartDate != nil {
		totalDuration = days(task.DueDate.Sub(*task.StartDate))
	}

	elapsed := 0.0
	if task.StartDate != nil {
		elapsed = math.Max(0, days(now.Sub(*task.StartDate)))
	}

	expected := 0.0
	if totalDuration > 0 {
		expected = math.Min(100, elapsed/totalDuration*100)
	}

	actual := task.Progress
	delta := float64(actual) - expected

	totalDeps := len(task.Dependencies)
	blockerCount := len(task.Blockers)

	factors := Factors{
		TimeScore:       timeScore(daysLeft, actual, task.Status),
		ProgressScore:   roundHalfUp(float64(actual) / 100 * MaxProgressScore),
		BlockerScore:    max(0, MaxBlockerScore-blockerCount*blockerPenalty),
		DependencyScore: MaxDependencyScore,
		ActivityScore:   min(MaxActivityScore, opts.RecentUpdateCount*2),
	}
	if totalDeps > 0 {
		factors.DependencyScore = roundHalfUp(float64(opts.CompletedDependencies) / float64(totalDeps) * MaxDependencyScore)
	}

	score := min(100, max(0, factors.Sum()))

	depStatus := "none"
	if totalDeps > 0 {
		depStatus = fmt.Sprintf("%d/%d", opts.CompletedDependencies, totalDeps)
	}

	return Result{
		Score:           score,
		RiskLevel:       RiskFromScore(score),
		Factors:         factors,
		Recommendations: Recommend(task, factors, daysLeft, delta),
		Analysis: Analysis{
			DaysRemaining:    float64(roundHalfUp(daysLeft*10)) / 10,
			ExpectedProgress: roundHalfUp(expected),
			ActualProgress:   actual,
			ProgressDelta:    roundHalfUp(delta),
			BlockerCount:     blockerCount,
			DependencyStatus: depStatus,
		},
	}
}

func timeScore(daysLeft float64, progress int, status models.TaskStatus) int {
	switch {
	case daysLeft <= 0:
		if status == models.StatusDone {
			return MaxTimeScore
		}
		return 0
	case daysLeft <= 1:
		if progress >= 90 {
			return 20
		}
		return 5
	case daysLeft <= 3:
		if progress >= 70 {
			return 22
		}
		return 10
	case daysLeft > 7:
		return MaxTimeScore
	default:
		// whole days of runway between 3 and 7
		return min(MaxTimeScore, 15+int(math.Floor(daysLeft)))
	}
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

// roundHalfUp rounds .5 towards positive infinity, so 12.5 becomes 13 and
// -20.5 becomes -20.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
