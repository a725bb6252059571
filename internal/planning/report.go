package planning

import (
	"fmt"
	"strings"
)

// Visualization renders the planning hierarchy as Markdown.
func (m *Manager) Visualization() string {
	var b strings.Builder
	b.WriteString("# Strategic Planning Hierarchy\n\n")

	for _, o := range m.plan.Objectives {
		fmt.Fprintf(&b, "## Objective: %s (%d%%)\n", o.Title, o.Progress)
		fmt.Fprintf(&b, "   %s\n\n", o.Description)
		for _, ms := range m.plan.MilestonesFor(o.ID) {
			fmt.Fprintf(&b, "### Milestone: %s (%d%%, %s)\n", ms.Title, ms.Progress, ms.Status)
			fmt.Fprintf(&b, "    Target: %s\n", ms.TargetDate.Format("2006-01-02"))
			fmt.Fprintf(&b, "    %s\n\n", ms.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ProgressReport renders an overall progress summary as Markdown.
func (m *Manager) ProgressReport() string {
	var b strings.Builder
	b.WriteString("# Strategic Planning Progress Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", m.now().Format("2006-01-02 15:04:05"))

	b.WriteString("## Overall Progress\n\n")
	totalObjectives := len(m.plan.Objectives)
	completedObjectives := 0
	for _, o := range m.plan.Objectives {
		if o.Progress >= 100 {
			completedObjectives++
		}
	}
	totalMilestones := len(m.plan.Milestones)
	achieved := 0
	for _, ms := range m.plan.Milestones {
		if ms.Status == MilestoneAchieved {
			achieved++
		}
	}

	fmt.Fprintf(&b, "- Objectives: %d/%d completed (%d%%)\n",
		completedObjectives, totalObjectives, percent(completedObjectives, totalObjectives))
	fmt.Fprintf(&b, "- Milestones: %d/%d achieved (%d%%)\n\n",
		achieved, totalMilestones, percent(achieved, totalMilestones))

	b.WriteString("## Objective Status\n\n")
	for _, o := range m.plan.Objectives {
		fmt.Fprintf(&b, "### %s (%d%%)\n\n", o.Title, o.Progress)
		for _, ms := range m.plan.MilestonesFor(o.ID) {
			fmt.Fprintf(&b, "- %s: %s (%d%%)\n", ms.Title, ms.Status, ms.Progress)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return n * 100 / total
}
