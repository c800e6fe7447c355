package ai

import (
	"fmt"
	"strings"
	"time"

	"altivio-backend/internal/models"
)

const dateLayout = "2006-01-02"

// BuildDailyInsightsPrompt describes one user's open workload and the
// last week of their updates.
func BuildDailyInsightsPrompt(user models.User, tasks []models.Task, updates []models.DailyUpdate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "USER: %s (%s)\n\n", user.Name, user.Role)

	fmt.Fprintf(&b, "ACTIVE TASKS (%d):\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %q [%s/%s] Progress: %d%%", t.Title, t.Priority, t.Status, t.Progress)
		if t.DueDate != nil {
			b.WriteString(" Due: ")
			b.WriteString(t.DueDate.Format(dateLayout))
		}
		if len(t.Blockers) > 0 {
			b.WriteString(" Blockers: ")
			b.WriteString(strings.Join(t.Blockers, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nRECENT UPDATES (last 7 days): %d updates\n", len(updates))
	for i, u := range updates {
		if i == 5 {
			break
		}
		note := u.Note
		if note == "" {
			note = "No note"
		}
		b.WriteString("- ")
		b.WriteString(note)
		if u.Progress != nil {
			fmt.Fprintf(&b, " (Progress: %d%%)", *u.Progress)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Provide a JSON response with:
{
  "summary": "Brief 1-2 sentence overview of their current situation",
  "topPriority": "What they should focus on RIGHT NOW",
  "riskAlert": "Any immediate risks or concerns (or null if none)",
  "suggestions": ["suggestion 1", "suggestion 2", "suggestion 3"],
  "motivationalNote": "Brief encouraging message based on their progress"
}
`)
	return b.String()
}

// BuildTeamSummaryPrompt summarises per-member counts across a manager's
// projects.
func BuildTeamSummaryPrompt(projects []models.Project, members []MemberStats, tasks []models.Task) string {
	var b strings.Builder

	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	b.WriteString("PROJECTS: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\nTEAM PERFORMANCE:\n")

	for _, m := range members {
		fmt.Fprintf(&b, "- %s: %d tasks (%d done, %d blocked, %d overdue)\n",
			m.Name, m.Total, m.Completed, m.Blocked, m.Overdue)
	}

	counts := map[models.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	b.WriteString("\nOVERALL:\n")
	fmt.Fprintf(&b, "- Total Tasks: %d\n", len(tasks))
	fmt.Fprintf(&b, "- Completed: %d\n", counts[models.StatusDone])
	fmt.Fprintf(&b, "- In Progress: %d\n", counts[models.StatusInProgress])
	fmt.Fprintf(&b, "- Blocked: %d\n", counts[models.StatusBlocked])

	b.WriteString(`
Provide a JSON response:
{
  "teamHealthScore": 0-100,
  "summary": "2-3 sentence overview",
  "topPerformers": ["name1", "name2"],
  "needsAttention": ["name1 - reason", "name2 - reason"],
  "actionItems": ["specific action 1", "specific action 2", "specific action 3"],
  "riskAreas": ["risk 1", "risk 2"],
  "positiveHighlights": ["highlight 1", "highlight 2"]
}
`)
	return b.String()
}

// BuildRetrospectivePrompt covers tasks touched in [from, to].
func BuildRetrospectivePrompt(
	project models.Project,
	from, to time.Time,
	tasks []models.Task,
	updateCount int,
	assignees map[string]string,
) string {
	var (
		b         strings.Builder
		completed []models.Task
		blockers  []string
		active    int
		blocked   int
	)
	for _, t := range tasks {
		switch t.Status {
		case models.StatusDone:
			completed = append(completed, t)
		case models.StatusInProgress:
			active++
		case models.StatusBlocked:
			blocked++
		}
		blockers = append(blockers, t.Blockers...)
	}

	fmt.Fprintf(&b, "PROJECT: %s\n", project.Name)
	fmt.Fprintf(&b, "SPRINT PERIOD: %s - %s\n\n", from.Format(dateLayout), to.Format(dateLayout))

	b.WriteString("METRICS:\n")
	fmt.Fprintf(&b, "- Tasks Completed: %d\n", len(completed))
	fmt.Fprintf(&b, "- Tasks Still In Progress: %d\n", active)
	fmt.Fprintf(&b, "- Tasks Blocked: %d\n", blocked)
	fmt.Fprintf(&b, "- Total Daily Updates: %d\n", updateCount)

	b.WriteString("\nCOMPLETED TASKS:\n")
	if len(completed) == 0 {
		b.WriteString("None\n")
	}
	for _, t := range completed {
		name := assignees[t.AssigneeID]
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(&b, "- %q by %s\n", t.Title, name)
	}

	b.WriteString("\nBLOCKERS ENCOUNTERED:\n")
	if len(blockers) == 0 {
		b.WriteString("None reported\n")
	} else {
		b.WriteString(strings.Join(blockers, "\n"))
		b.WriteString("\n")
	}

	b.WriteString(`
Provide a JSON retrospective:
{
  "sprintScore": 0-100,
  "velocitySummary": "Assessment of team velocity",
  "whatWentWell": ["item1", "item2", "item3"],
  "whatCouldImprove": ["item1", "item2", "item3"],
  "blockerPatterns": "Analysis of common blockers",
  "recommendationsForNextSprint": ["rec1", "rec2", "rec3"],
  "teamMorale": "Assessment based on update frequency and blockers",
  "keyLearnings": ["learning1", "learning2"]
}
`)
	return b.String()
}
