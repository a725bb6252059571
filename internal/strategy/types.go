// Package strategy hosts the registry of strategies that turn goals into
// executable plans, and the built-in code-improvement strategy.
package strategy

import (
	"context"
	"fmt"
	"time"

	"codesmith/internal/goals"
)

// ActionType classifies what a plan step does.
type ActionType string

const (
	ActionCodeImprovement ActionType = "code_improvement"
	ActionAPICall         ActionType = "api_call"
	ActionWebResearch     ActionType = "web_research"
	ActionSystemCommand   ActionType = "system_command"
	ActionDataAnalysis    ActionType = "data_analysis"
)

// ActionStep is one concrete step in a plan.
type ActionStep struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	ActionType  ActionType `json:"action_type"`

	// Dependencies are step IDs that must complete first; the graph must be
	// a DAG and steps execute in a topological order.
	Dependencies []string `json:"dependencies,omitempty"`

	Parameters      map[string]string `json:"parameters,omitempty"`
	ExpectedOutcome string            `json:"expected_outcome,omitempty"`

	// RequiresConfirmation gates the step behind the approval flag.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`

	// Permission is the scope the step would exercise; always recorded,
	// enforcement is the policy's business.
	Permission *ActionPermission `json:"permission,omitempty"`
}

// Plan is a full sequence of steps for one goal.
type Plan struct {
	ID                 string             `json:"id"`
	GoalID             string             `json:"goal_id"`
	Steps              []ActionStep       `json:"steps"`
	SuccessProbability float64            `json:"success_probability"`
	ResourceEstimate   map[string]float64 `json:"resource_estimate,omitempty"`
	StrategyName       string             `json:"strategy_name"`
}

// EntityID implements store.Entity so plans can be archived.
func (p Plan) EntityID() string { return p.ID }

// ExecutionResult is the outcome of running a plan or single step.
type ExecutionResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Outputs map[string]string  `json:"outputs,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Log     []string           `json:"log,omitempty"`
}

// PermissionScope describes what an action touches.
type PermissionScope struct {
	// Exactly one of the following is set.
	LocalPath   string   `json:"local_path,omitempty"`
	Network     []string `json:"network,omitempty"`
	APIEndpoint string   `json:"api_endpoint,omitempty"`
	Commands    []string `json:"commands,omitempty"`
}

func (s PermissionScope) String() string {
	switch {
	case s.LocalPath != "":
		return fmt.Sprintf("filesystem(%s)", s.LocalPath)
	case len(s.Network) > 0:
		return fmt.Sprintf("network(%v)", s.Network)
	case s.APIEndpoint != "":
		return fmt.Sprintf("api(%s)", s.APIEndpoint)
	case len(s.Commands) > 0:
		return fmt.Sprintf("commands(%v)", s.Commands)
	}
	return "none"
}

// ActionPermission is a scope plus its audit requirements.
type ActionPermission struct {
	Scope                PermissionScope `json:"scope"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	AuditLevel           string          `json:"audit_level,omitempty"`
	Expiry               *time.Time      `json:"expiry,omitempty"`
}

// Strategy plans and executes one kind of improvement work.
type Strategy interface {
	Name() string
	ActionTypes() []ActionType

	// EvaluateApplicability scores how well this strategy fits the goal,
	// 0.0 (not applicable) to 1.0 (perfect match).
	EvaluateApplicability(ctx context.Context, goal goals.Goal) (float64, error)

	CreatePlan(ctx context.Context, goal goals.Goal) (*Plan, error)

	// Execute runs the whole plan, or a single step when stepID is non-empty.
	Execute(ctx context.Context, plan *Plan, stepID string) (*ExecutionResult, error)

	// RequiredPermissions lists every scope the strategy may exercise.
	RequiredPermissions() []ActionPermission
}
