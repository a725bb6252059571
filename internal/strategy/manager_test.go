package strategy

import (
	"context"
	"fmt"
	"testing"

	"codesmith/internal/goals"
)

// stubStrategy scores a fixed value and counts evaluations.
type stubStrategy struct {
	name  string
	score float64
	evals int
}

func (s *stubStrategy) Name() string               { return s.name }
func (s *stubStrategy) ActionTypes() []ActionType  { return []ActionType{ActionDataAnalysis} }
func (s *stubStrategy) RequiredPermissions() []ActionPermission {
	return []ActionPermission{{Scope: PermissionScope{LocalPath: "workspace"}}}
}

func (s *stubStrategy) EvaluateApplicability(ctx context.Context, goal goals.Goal) (float64, error) {
	s.evals++
	return s.score, nil
}

func (s *stubStrategy) CreatePlan(ctx context.Context, goal goals.Goal) (*Plan, error) {
	return &Plan{ID: "p-" + s.name, GoalID: goal.ID, StrategyName: s.name}, nil
}

func (s *stubStrategy) Execute(ctx context.Context, plan *Plan, stepID string) (*ExecutionResult, error) {
	return &ExecutionResult{Success: true, Message: "done"}, nil
}

type stubAuth struct{ user string }

func (a stubAuth) CurrentUser() string { return a.user }

func TestSelectHighestScorer(t *testing.T) {
	m := NewManager(PermissivePolicy{}, nil)
	low := &stubStrategy{name: "low", score: 0.2}
	high := &stubStrategy{name: "high", score: 0.9}
	m.Register(low)
	m.Register(high)

	s, err := m.Select(context.Background(), goals.New("g", "g", "d", goals.General))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.Name() != "high" {
		t.Errorf("selected %s, want high", s.Name())
	}
}

func TestSelectRejectsAllZero(t *testing.T) {
	m := NewManager(PermissivePolicy{}, nil)
	m.Register(&stubStrategy{name: "zero", score: 0})
	if _, err := m.Select(context.Background(), goals.New("g", "g", "d", goals.General)); err == nil {
		t.Error("expected rejection when no positive score")
	}
}

func TestApplicabilityCache(t *testing.T) {
	m := NewManager(PermissivePolicy{}, nil)
	s := &stubStrategy{name: "s", score: 0.5}
	m.Register(s)

	g := goals.New("g1", "g", "d", goals.General)
	m.Select(context.Background(), g)
	m.Select(context.Background(), g)
	if s.evals != 1 {
		t.Errorf("applicability evaluated %d times, want 1 (cached)", s.evals)
	}

	// A different goal misses the cache.
	m.Select(context.Background(), goals.New("g2", "g", "d", goals.General))
	if s.evals != 2 {
		t.Errorf("evals = %d, want 2", s.evals)
	}
}

func TestPermissivePolicyGrantsWithoutUser(t *testing.T) {
	m := NewManager(PermissivePolicy{}, nil)
	s := &stubStrategy{name: "s", score: 1}
	m.Register(s)
	if err := m.CheckPermissions(s); err != nil {
		t.Errorf("permissive policy should grant: %v", err)
	}
}

func TestStrictPolicyDeniesWithoutUser(t *testing.T) {
	m := NewManager(StrictPolicy{}, stubAuth{})
	s := &stubStrategy{name: "s", score: 1}
	m.Register(s)
	if err := m.CheckPermissions(s); err == nil {
		t.Error("strict policy should deny without a user")
	}

	granted := NewManager(StrictPolicy{}, stubAuth{user: "creator"})
	granted.Register(s)
	if err := granted.CheckPermissions(s); err != nil {
		t.Errorf("strict policy should grant with a user: %v", err)
	}
}

func TestTopoSortOrdersDependencies(t *testing.T) {
	steps := []ActionStep{
		{ID: "d", Dependencies: []string{"c"}},
		{ID: "c", Dependencies: []string{"a", "b"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "a"},
	}
	order, err := topoSort(steps)
	if err != nil {
		t.Fatalf("topoSort: %v", err)
	}
	pos := map[string]int{}
	for i, s := range order {
		pos[s.ID] = i
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if pos[dep] > pos[s.ID] {
				t.Errorf("dependency %s of %s sorted after it", dep, s.ID)
			}
		}
	}
}

func TestTopoSortRejectsCycle(t *testing.T) {
	steps := []ActionStep{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	if _, err := topoSort(steps); err == nil {
		t.Error("expected cycle rejection")
	}
}

func TestTopoSortRejectsUnknownDependency(t *testing.T) {
	if _, err := topoSort([]ActionStep{{ID: "a", Dependencies: []string{"ghost"}}}); err == nil {
		t.Error("expected unknown dependency rejection")
	}
}

func TestActionTypesUnion(t *testing.T) {
	m := NewManager(PermissivePolicy{}, nil)
	m.Register(&stubStrategy{name: "a", score: 1})
	m.Register(&stubStrategy{name: "b", score: 1})
	types := m.ActionTypes()
	if len(types) != 1 || types[0] != ActionDataAnalysis {
		t.Errorf("ActionTypes = %v", types)
	}
	if got := fmt.Sprint(m.Strategies()); got != "[a b]" {
		t.Errorf("Strategies = %s", got)
	}
}
