package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codesmith/internal/gitws"
	"codesmith/internal/goals"
	"codesmith/internal/llm"
	"codesmith/internal/logging"
	"codesmith/internal/pipeline"

	"github.com/google/uuid"
)

// Step IDs of the four-step code improvement plan.
const (
	stepGenerate = "generate"
	stepApply    = "apply"
	stepTest     = "test"
	stepMerge    = "merge"
)

// codeWorkspace is what the strategy needs from the git layer: the abstract
// operations plus direct file writes into the working tree.
type codeWorkspace interface {
	gitws.Workspace
	WriteFile(path, content string) error
}

// CodeImprovement generates a change with an LM, applies it on an isolated
// branch, tests it, and merges it when approved.
type CodeImprovement struct {
	generator    llm.Provider
	workspace    codeWorkspace
	runner       *pipeline.Runner
	branchPrefix string

	// lookupGoal resolves a plan's goal ID back to the goal.
	lookupGoal func(id string) (goals.Goal, bool)

	// autoApprove stands in for the coarse human approval flag on the
	// merge step.
	autoApprove bool
}

// NewCodeImprovement wires the built-in strategy.
func NewCodeImprovement(generator llm.Provider, workspace codeWorkspace, runner *pipeline.Runner, branchPrefix string, lookupGoal func(id string) (goals.Goal, bool), autoApprove bool) *CodeImprovement {
	if branchPrefix == "" {
		branchPrefix = "improvement"
	}
	return &CodeImprovement{
		generator:    generator,
		workspace:    workspace,
		runner:       runner,
		branchPrefix: branchPrefix,
		lookupGoal:   lookupGoal,
		autoApprove:  autoApprove,
	}
}

func (s *CodeImprovement) Name() string { return "code_improvement" }

func (s *CodeImprovement) ActionTypes() []ActionType {
	return []ActionType{ActionCodeImprovement}
}

// EvaluateApplicability scores goals that carry file hints highest; goals
// with affected areas still qualify, everything else scores low.
func (s *CodeImprovement) EvaluateApplicability(ctx context.Context, goal goals.Goal) (float64, error) {
	switch {
	case len(goal.FileHints()) > 0:
		return 1.0, nil
	case len(goal.AffectedAreas) > 0:
		return 0.8, nil
	case goal.Description != "":
		return 0.3, nil
	}
	return 0, nil
}

// branchFor names the isolated branch for a goal.
func (s *CodeImprovement) branchFor(goal goals.Goal) string {
	return fmt.Sprintf("%s/%s/%s", s.branchPrefix, goal.Category, goal.ID)
}

// CreatePlan produces the four-step plan.
func (s *CodeImprovement) CreatePlan(ctx context.Context, goal goals.Goal) (*Plan, error) {
	branch := s.branchFor(goal)

	steps := []ActionStep{
		{
			ID:              stepGenerate,
			Description:     "Generate code improvement",
			ActionType:      ActionCodeImprovement,
			ExpectedOutcome: "LM response containing the improved code",
			Parameters:      map[string]string{"goal_id": goal.ID},
			Permission: &ActionPermission{
				Scope: PermissionScope{Network: []string{"llm-provider"}},
			},
		},
		{
			ID:              stepApply,
			Description:     fmt.Sprintf("Apply code changes to branch %s", branch),
			ActionType:      ActionCodeImprovement,
			Dependencies:    []string{stepGenerate},
			ExpectedOutcome: "Changes committed on the isolated branch",
			Parameters:      map[string]string{"branch": branch},
			Permission: &ActionPermission{
				Scope: PermissionScope{LocalPath: "workspace"},
			},
		},
		{
			ID:              stepTest,
			Description:     "Test code changes",
			ActionType:      ActionCodeImprovement,
			Dependencies:    []string{stepApply},
			ExpectedOutcome: "All pipeline stages pass",
			Permission: &ActionPermission{
				Scope: PermissionScope{Commands: []string{"go", "gofmt"}},
			},
		},
		{
			ID:                   stepMerge,
			Description:          "Merge branch into main if tests pass",
			ActionType:           ActionCodeImprovement,
			Dependencies:         []string{stepTest},
			ExpectedOutcome:      "Change merged into the main branch",
			RequiresConfirmation: true,
			Permission: &ActionPermission{
				Scope:                PermissionScope{Commands: []string{"git"}},
				RequiresConfirmation: true,
			},
		},
	}

	return &Plan{
		ID:                 uuid.NewString(),
		GoalID:             goal.ID,
		Steps:              steps,
		SuccessProbability: 0.6,
		ResourceEstimate:   map[string]float64{"llm_calls": 1, "test_runs": 1},
		StrategyName:       s.Name(),
	}, nil
}

func (s *CodeImprovement) RequiredPermissions() []ActionPermission {
	return []ActionPermission{
		{Scope: PermissionScope{Network: []string{"llm-provider"}}},
		{Scope: PermissionScope{LocalPath: "workspace"}},
		{Scope: PermissionScope{Commands: []string{"git", "go", "gofmt"}}, RequiresConfirmation: true},
	}
}

// executionState threads intermediate artifacts between steps.
type executionState struct {
	goal       goals.Goal
	response   string
	branch     string
	testsPass  bool
	testReport string
}

// Execute runs the plan in dependency order, or a single step when stepID
// is given. A failed step marks its successors unreachable.
func (s *CodeImprovement) Execute(ctx context.Context, plan *Plan, stepID string) (*ExecutionResult, error) {
	result := &ExecutionResult{
		Success: true,
		Outputs: map[string]string{},
		Metrics: map[string]float64{},
	}

	goal, ok := s.lookupGoal(plan.GoalID)
	if !ok {
		return nil, fmt.Errorf("goal %s not found for plan %s", plan.GoalID, plan.ID)
	}
	state := &executionState{goal: goal}

	order, err := topoSort(plan.Steps)
	if err != nil {
		return nil, err
	}

	if stepID != "" {
		step := findStep(plan, stepID)
		if step == nil {
			return nil, fmt.Errorf("step %s not found in plan %s", stepID, plan.ID)
		}
		if err := s.runStep(ctx, plan, *step, state, result); err != nil {
			result.Success = false
			result.Message = err.Error()
		}
		return result, nil
	}

	failed := make(map[string]bool)
	for _, step := range order {
		unreachable := false
		for _, dep := range step.Dependencies {
			if failed[dep] {
				unreachable = true
				break
			}
		}
		if unreachable {
			failed[step.ID] = true
			result.Log = append(result.Log, fmt.Sprintf("step %s unreachable: dependency failed", step.ID))
			result.Success = false
			continue
		}

		if err := s.runStep(ctx, plan, step, state, result); err != nil {
			failed[step.ID] = true
			result.Success = false
			result.Message = err.Error()
			result.Log = append(result.Log, fmt.Sprintf("step %s failed: %v", step.ID, err))
			continue
		}
		result.Log = append(result.Log, fmt.Sprintf("step %s completed", step.ID))
	}

	if result.Success {
		result.Message = fmt.Sprintf("plan %s completed", plan.ID)
	}
	result.Outputs["branch"] = state.branch
	if state.testReport != "" {
		result.Outputs["test_report"] = state.testReport
	}
	return result, nil
}

func (s *CodeImprovement) runStep(ctx context.Context, plan *Plan, step ActionStep, state *executionState, result *ExecutionResult) error {
	logging.Strategy("executing step %s: %s", step.ID, step.Description)

	switch step.ID {
	case stepGenerate:
		return s.generate(ctx, plan, state)
	case stepApply:
		return s.apply(ctx, plan, step, state)
	case stepTest:
		return s.test(ctx, state, result)
	case stepMerge:
		return s.merge(ctx, step, state)
	default:
		return fmt.Errorf("unknown step %s", step.ID)
	}
}

// generate asks the LM for the improvement, retrying once on transient
// provider errors.
func (s *CodeImprovement) generate(ctx context.Context, plan *Plan, state *executionState) error {
	prompt := s.buildPrompt(ctx, state.goal)
	req := llm.GenerateRequest{
		System:   "You are an expert Go engineer improving a codebase. Answer with complete files in fenced code blocks labelled ```go:path/to/file.go.",
		Messages: []llm.Message{llm.Text(llm.RoleUser, prompt)},
	}

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		var perr *llm.ProviderError
		if errors.As(err, &perr) && perr.Retryable() {
			logging.Strategy("transient provider error, retrying once: %v", err)
			resp, err = s.generator.Generate(ctx, req)
		}
	}
	if err != nil {
		return fmt.Errorf("code generation failed: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return fmt.Errorf("code generation returned empty response")
	}
	state.response = resp.Text
	return nil
}

// buildPrompt assembles the goal description with hinted file contents.
func (s *CodeImprovement) buildPrompt(ctx context.Context, goal goals.Goal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n%s\n", goal.Title, goal.Description)
	if len(goal.SuccessMetrics) > 0 {
		b.WriteString("\nSuccess metrics:\n")
		for _, m := range goal.SuccessMetrics {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	hints := goal.FileHints()
	if len(hints) == 0 {
		hints = goal.AffectedAreas
	}
	for _, path := range hints {
		content, err := s.workspace.ReadFile(ctx, path)
		if err != nil {
			logging.StrategyDebug("hint %s unreadable: %v", path, err)
			continue
		}
		fmt.Fprintf(&b, "\nCurrent content of %s:\n```go:%s\n%s\n```\n", path, path, content)
	}
	return b.String()
}

// apply parses the response into file changes and commits them on the
// isolated branch.
func (s *CodeImprovement) apply(ctx context.Context, plan *Plan, step ActionStep, state *executionState) error {
	branch := step.Parameters["branch"]
	state.branch = branch

	defaultPath := ""
	if hints := state.goal.FileHints(); len(hints) > 0 {
		defaultPath = hints[0]
	} else if len(state.goal.AffectedAreas) > 0 {
		defaultPath = state.goal.AffectedAreas[0]
	}

	changes := ParseFileChanges(state.response, defaultPath)
	if len(changes) == 0 {
		return fmt.Errorf("no file changes found in LM response")
	}

	exists, err := s.workspace.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if exists {
		if err := s.workspace.CheckoutBranch(ctx, branch); err != nil {
			return err
		}
	} else {
		if err := s.workspace.CreateBranch(ctx, branch); err != nil {
			return err
		}
	}

	paths := make([]string, 0, len(changes))
	for _, change := range changes {
		if err := s.workspace.WriteFile(change.Path, change.Content); err != nil {
			return err
		}
		paths = append(paths, change.Path)
	}
	if err := s.workspace.Add(ctx, paths...); err != nil {
		return err
	}

	msg := fmt.Sprintf("%s\n\nGoal: %s", state.goal.Title, state.goal.ID)
	if _, err := s.workspace.Commit(ctx, msg); err != nil {
		return err
	}
	logging.Strategy("applied %d file(s) on %s", len(changes), branch)
	return nil
}

// test runs the pipeline against the branch.
func (s *CodeImprovement) test(ctx context.Context, state *executionState, result *ExecutionResult) error {
	res, err := s.runner.Run(ctx, state.branch)
	if err != nil {
		return fmt.Errorf("test pipeline error: %w", err)
	}
	state.testsPass = res.Success
	state.testReport = res.Output
	for _, sr := range res.Stages {
		if sr.Metrics != nil {
			result.Metrics["tests_run"] += float64(sr.Metrics.TestsRun)
			result.Metrics["tests_passed"] += float64(sr.Metrics.TestsPassed)
			result.Metrics["tests_failed"] += float64(sr.Metrics.TestsFailed)
		}
	}
	if !res.Success {
		return fmt.Errorf("test pipeline failed on %s", state.branch)
	}
	return nil
}

// merge folds the branch into main, honouring the confirmation flag.
func (s *CodeImprovement) merge(ctx context.Context, step ActionStep, state *executionState) error {
	if step.RequiresConfirmation && !s.autoApprove {
		return fmt.Errorf("merge requires confirmation and auto-approve is off")
	}
	if !state.testsPass {
		return fmt.Errorf("refusing to merge %s: tests did not pass", state.branch)
	}

	main, err := s.workspace.MainBranch(ctx)
	if err != nil {
		return err
	}
	if err := s.workspace.CheckoutBranch(ctx, main); err != nil {
		return err
	}
	if err := s.workspace.MergeBranch(ctx, state.branch); err != nil {
		return err
	}
	logging.Strategy("merged %s into %s", state.branch, main)
	return nil
}

// findStep locates a step by ID.
func findStep(plan *Plan, id string) *ActionStep {
	for i := range plan.Steps {
		if plan.Steps[i].ID == id {
			return &plan.Steps[i]
		}
	}
	return nil
}

// topoSort orders steps so dependencies come first, rejecting cycles.
// Siblings keep their declaration order.
func topoSort(steps []ActionStep) ([]ActionStep, error) {
	byID := make(map[string]ActionStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	var out []ActionStep

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("step dependency cycle involving %s", id)
		}
		state[id] = visiting
		step, ok := byID[id]
		if !ok {
			return fmt.Errorf("unknown step dependency %s", id)
		}
		for _, dep := range step.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		out = append(out, step)
		return nil
	}

	for _, s := range steps {
		if err := visit(s.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
