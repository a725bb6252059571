// Package constitution evaluates proposed actions against a lexicographic
// constraint hierarchy. Higher-priority violations reject regardless of
// anything scored lower:
//
//	P1 Corrigibility  - the system can always be stopped and corrected
//	P2 Safety         - don't break things
//	P3 LowImpact      - minimal changes, preserve optionality
//	P4 EudaimonicTask - genuine value, not slop
package constitution

import (
	"fmt"
	"strings"
)

// Priority is a constraint level; lower numeric values dominate.
type Priority int

const (
	Corrigibility  Priority = 1
	Safety         Priority = 2
	LowImpact      Priority = 3
	EudaimonicTask Priority = 4
)

func (p Priority) String() string {
	switch p {
	case Corrigibility:
		return "corrigibility"
	case Safety:
		return "safety"
	case LowImpact:
		return "low_impact"
	case EudaimonicTask:
		return "eudaimonic_task"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Violation describes one failed constraint.
type Violation struct {
	Priority    Priority `json:"priority"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Severity    float64  `json:"severity"` // 0.0 none .. 1.0 complete
}

// ProposedAction is the unit the constitution judges.
type ProposedAction struct {
	Description           string   `json:"description"`
	FilesToModify         []string `json:"files_to_modify"`
	FilesToCreate         []string `json:"files_to_create"`
	FilesToDelete         []string `json:"files_to_delete"`
	EstimatedLinesChanged int      `json:"estimated_lines_changed"`
}

// Constitution holds the configured constraint parameters.
type Constitution struct {
	protectedPaths    []string
	dangerPatterns    []string
	maxFilesPerChange int
	maxLinesPerChange int
	maxDeletions      int
}

// New returns a constitution with the default constraints.
func New() *Constitution {
	return &Constitution{
		protectedPaths: []string{
			// The constitution itself stays out of reach.
			"internal/constitution/",
			".git/",
			"go.sum",
		},
		dangerPatterns: []string{
			"rm -rf",
			"sudo",
			"chmod 777",
			"DROP TABLE",
			"DELETE FROM",
			"fmt.Sprintf(query,", // query built from interpolation
		},
		maxFilesPerChange: 10,
		maxLinesPerChange: 500,
		maxDeletions:      5,
	}
}

// WithProtectedPaths replaces the protected path list.
func (c *Constitution) WithProtectedPaths(paths ...string) *Constitution {
	c.protectedPaths = paths
	return c
}

// Validate returns nil when the action passes, or the highest-priority
// violation found. P1 is checked first, then P2, P3, P4, so the returned
// violation always has the minimum numeric priority among those triggered.
func (c *Constitution) Validate(action ProposedAction) *Violation {
	if v := c.checkCorrigibility(action); v != nil {
		return v
	}
	if v := c.checkSafety(action); v != nil {
		return v
	}
	if v := c.checkLowImpact(action); v != nil {
		return v
	}
	return c.checkEudaimonic(action)
}

// Score returns 1.0 for a clean action, otherwise 1.0 - severity of the
// highest-priority violation.
func (c *Constitution) Score(action ProposedAction) float64 {
	if v := c.Validate(action); v != nil {
		return 1.0 - v.Severity
	}
	return 1.0
}

var disablePatterns = []string{
	"disable logging", "disable_logging",
	"skip audit", "skip_audit",
	"bypass check", "bypass_check",
}

func (c *Constitution) checkCorrigibility(action ProposedAction) *Violation {
	touched := make([]string, 0, len(action.FilesToModify)+len(action.FilesToDelete))
	touched = append(touched, action.FilesToModify...)
	touched = append(touched, action.FilesToDelete...)
	for _, path := range touched {
		for _, protected := range c.protectedPaths {
			if strings.Contains(path, protected) {
				return &Violation{
					Priority:    Corrigibility,
					Name:        "protected_path",
					Description: fmt.Sprintf("cannot modify protected path %q", path),
					Severity:    1.0,
				}
			}
		}
	}

	desc := strings.ToLower(action.Description)
	for _, pattern := range disablePatterns {
		if strings.Contains(desc, pattern) {
			return &Violation{
				Priority:    Corrigibility,
				Name:        "disable_monitoring",
				Description: fmt.Sprintf("action appears to disable monitoring or logging: %q", pattern),
				Severity:    1.0,
			}
		}
	}
	return nil
}

func (c *Constitution) checkSafety(action ProposedAction) *Violation {
	for _, pattern := range c.dangerPatterns {
		if strings.Contains(action.Description, pattern) {
			return &Violation{
				Priority:    Safety,
				Name:        "danger_pattern",
				Description: fmt.Sprintf("action contains dangerous pattern %q", pattern),
				Severity:    1.0,
			}
		}
	}

	if len(action.FilesToDelete) > c.maxDeletions {
		return &Violation{
			Priority:    Safety,
			Name:        "mass_deletion",
			Description: fmt.Sprintf("action deletes %d files, exceeding the safe limit of %d", len(action.FilesToDelete), c.maxDeletions),
			Severity:    0.8,
		}
	}
	return nil
}

func (c *Constitution) checkLowImpact(action ProposedAction) *Violation {
	totalFiles := len(action.FilesToModify) + len(action.FilesToCreate) + len(action.FilesToDelete)
	if totalFiles > c.maxFilesPerChange {
		return &Violation{
			Priority:    LowImpact,
			Name:        "too_many_files",
			Description: fmt.Sprintf("action touches %d files, exceeding the limit of %d", totalFiles, c.maxFilesPerChange),
			Severity:    0.6,
		}
	}
	if action.EstimatedLinesChanged > c.maxLinesPerChange {
		return &Violation{
			Priority:    LowImpact,
			Name:        "too_many_lines",
			Description: fmt.Sprintf("action changes %d lines, exceeding the limit of %d", action.EstimatedLinesChanged, c.maxLinesPerChange),
			Severity:    0.5,
		}
	}
	return nil
}

var trivialClaims = []string{"add comment", "fix typo", "rename variable", "format code"}

func (c *Constitution) checkEudaimonic(action ProposedAction) *Violation {
	if strings.TrimSpace(action.Description) == "" {
		return &Violation{
			Priority:    EudaimonicTask,
			Name:        "empty_description",
			Description: "action has no description; value cannot be verified",
			Severity:    1.0,
		}
	}

	desc := strings.ToLower(action.Description)
	for _, claim := range trivialClaims {
		if strings.Contains(desc, claim) && action.EstimatedLinesChanged > 50 {
			return &Violation{
				Priority:    EudaimonicTask,
				Name:        "trivial_large_change",
				Description: fmt.Sprintf("action claims %q but changes %d lines", claim, action.EstimatedLinesChanged),
				Severity:    0.7,
			}
		}
	}
	return nil
}
