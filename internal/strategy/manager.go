package strategy

import (
	"context"
	"fmt"
	"sync"

	"codesmith/internal/goals"
	"codesmith/internal/logging"
)

// Manager selects among registered strategies and checks permissions before
// execution.
type Manager struct {
	mu         sync.RWMutex
	strategies []Strategy
	policy     PermissionPolicy
	auth       AuthState

	// scoreCache memoizes applicability per (goal, strategy).
	scoreCache map[string]float64
}

// NewManager creates a manager with the given permission policy.
func NewManager(policy PermissionPolicy, auth AuthState) *Manager {
	if policy == nil {
		policy = PermissivePolicy{}
	}
	return &Manager{
		policy:     policy,
		auth:       auth,
		scoreCache: make(map[string]float64),
	}
}

// Register adds a strategy. Registration order is kept: when two strategies
// score equally in Select, the earlier registration wins.
func (m *Manager) Register(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies = append(m.strategies, s)
	logging.Strategy("registered strategy %s", s.Name())
}

// Strategies lists registered strategy names.
func (m *Manager) Strategies() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.strategies))
	for _, s := range m.strategies {
		names = append(names, s.Name())
	}
	return names
}

// ActionTypes returns the union of registered action types.
func (m *Manager) ActionTypes() []ActionType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[ActionType]bool)
	var out []ActionType
	for _, s := range m.strategies {
		for _, at := range s.ActionTypes() {
			if !seen[at] {
				seen[at] = true
				out = append(out, at)
			}
		}
	}
	return out
}

// Select evaluates every strategy against the goal and returns the highest
// positive scorer. Scores are cached per (goal, strategy).
func (m *Manager) Select(ctx context.Context, goal goals.Goal) (Strategy, error) {
	m.mu.RLock()
	candidates := append([]Strategy(nil), m.strategies...)
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no strategies registered")
	}

	var best Strategy
	bestScore := 0.0
	for _, s := range candidates {
		score, err := m.applicability(ctx, s, goal)
		if err != nil {
			logging.StrategyError("strategy %s failed to evaluate goal %s: %v", s.Name(), goal.ID, err)
			continue
		}
		logging.StrategyDebug("strategy %s scored %.2f for goal %s", s.Name(), score, goal.ID)
		if score > bestScore {
			bestScore = score
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no strategy applicable to goal %s", goal.ID)
	}
	logging.Strategy("selected strategy %s for goal %s (score %.2f)", best.Name(), goal.ID, bestScore)
	return best, nil
}

func (m *Manager) applicability(ctx context.Context, s Strategy, goal goals.Goal) (float64, error) {
	key := goal.ID + "\x00" + s.Name()

	m.mu.RLock()
	if score, ok := m.scoreCache[key]; ok {
		m.mu.RUnlock()
		return score, nil
	}
	m.mu.RUnlock()

	score, err := s.EvaluateApplicability(ctx, goal)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.scoreCache[key] = score
	m.mu.Unlock()
	return score, nil
}

// CheckPermissions applies the policy to every scope the strategy requires.
func (m *Manager) CheckPermissions(s Strategy) error {
	for _, perm := range s.RequiredPermissions() {
		if err := m.policy.Allow(perm, m.auth); err != nil {
			return err
		}
	}
	return nil
}

// CreateAndExecute is the common path: select, plan, check permissions, run.
func (m *Manager) CreateAndExecute(ctx context.Context, goal goals.Goal) (*ExecutionResult, error) {
	s, err := m.Select(ctx, goal)
	if err != nil {
		return nil, err
	}
	if err := m.CheckPermissions(s); err != nil {
		return nil, err
	}
	plan, err := s.CreatePlan(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("strategy %s failed to plan goal %s: %w", s.Name(), goal.ID, err)
	}
	return s.Execute(ctx, plan, "")
}
