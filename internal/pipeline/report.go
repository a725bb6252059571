package pipeline

import (
	"fmt"
	"strings"
)

// Report renders the result as Markdown: a per-stage table, the structured
// error list, and the raw stage outputs.
func (r *Result) Report() string {
	var b strings.Builder

	b.WriteString("# Test Pipeline Report\n\n")
	fmt.Fprintf(&b, "Branch: `%s`\n\n", r.Branch)
	if r.Success {
		b.WriteString("Overall: **PASSED**\n\n")
	} else {
		b.WriteString("Overall: **FAILED**\n\n")
	}

	b.WriteString("| Stage | Result | Duration | Tests |\n")
	b.WriteString("|-------|--------|----------|-------|\n")
	for _, s := range r.Stages {
		status := "pass"
		if !s.Success {
			status = "FAIL"
		}
		tests := "-"
		if s.Metrics != nil && s.Metrics.TestsRun > 0 {
			tests = fmt.Sprintf("%d/%d passed", s.Metrics.TestsPassed, s.Metrics.TestsRun)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", s.Stage, status, s.Duration.Round(1e6), tests)
	}
	b.WriteString("\n")

	hasErrors := false
	for _, s := range r.Stages {
		for _, e := range s.Errors {
			if !hasErrors {
				b.WriteString("## Errors\n\n")
				hasErrors = true
			}
			if e.File != "" {
				fmt.Fprintf(&b, "- `%s:%d`: %s\n", e.File, e.Line, e.Message)
			} else {
				fmt.Fprintf(&b, "- %s\n", e.Message)
			}
		}
	}
	if hasErrors {
		b.WriteString("\n")
	}

	b.WriteString("## Stage Output\n\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "### %s\n\n", s.Stage)
		out := strings.TrimSpace(s.Output)
		if out == "" {
			out = "(no output)"
		}
		fmt.Fprintf(&b, "```\n%s\n```\n\n", out)
	}

	return b.String()
}
