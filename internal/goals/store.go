package goals

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"codesmith/internal/logging"
)

func nowUTC() time.Time { return time.Now().UTC() }

// GoalStore owns the goal set. All mutations go through it so the status
// rules hold everywhere.
type GoalStore struct {
	mu    sync.RWMutex
	goals map[string]*Goal
	order []string // insertion order, the selection tie-breaker
}

// NewStore creates an empty store.
func NewStore() *GoalStore {
	return &GoalStore{goals: make(map[string]*Goal)}
}

// Add inserts a goal; duplicate IDs are rejected.
func (s *GoalStore) Add(g Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.goals[g.ID]; exists {
		return fmt.Errorf("goal %s already exists", g.ID)
	}
	if g.Status == "" {
		g.Status = NotStarted
	}
	copied := g
	s.goals[g.ID] = &copied
	s.order = append(s.order, g.ID)
	logging.Goals("added goal %s (%s, %s)", g.ID, g.Category, g.Priority)
	return nil
}

// Get returns a copy of the goal.
func (s *GoalStore) Get(id string) (Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return Goal{}, false
	}
	return *g, true
}

// Remove deletes a goal.
func (s *GoalStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return false
	}
	delete(s.goals, id)
	for i, gid := range s.order {
		if gid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns every goal in insertion order.
func (s *GoalStore) All() []Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Goal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.goals[id])
	}
	return out
}

// Replace swaps the whole goal set, preserving the given order. Used when
// loading persisted goals at startup.
func (s *GoalStore) Replace(goalList []Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = make(map[string]*Goal, len(goalList))
	s.order = s.order[:0]
	for _, g := range goalList {
		copied := g
		s.goals[g.ID] = &copied
		s.order = append(s.order, g.ID)
	}
}

// ByStatus filters goals by status, in insertion order.
func (s *GoalStore) ByStatus(status Status) []Goal {
	return s.filter(func(g *Goal) bool { return g.Status == status })
}

// ByCategory filters goals by category.
func (s *GoalStore) ByCategory(category Category) []Goal {
	return s.filter(func(g *Goal) bool { return g.Category == category })
}

// ByPriority filters goals by priority.
func (s *GoalStore) ByPriority(priority Priority) []Goal {
	return s.filter(func(g *Goal) bool { return g.Priority == priority })
}

// ByAffectedArea filters goals touching the given path.
func (s *GoalStore) ByAffectedArea(area string) []Goal {
	return s.filter(func(g *Goal) bool {
		for _, a := range g.AffectedAreas {
			if a == area {
				return true
			}
		}
		return false
	})
}

func (s *GoalStore) filter(keep func(*Goal) bool) []Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Goal
	for _, id := range s.order {
		if g := s.goals[id]; keep(g) {
			out = append(out, *g)
		}
	}
	return out
}

// UpdateStatus applies a status transition, enforcing the machine.
func (s *GoalStore) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	if !validTransition(g.Status, status) {
		return &InvalidTransitionError{Goal: id, From: g.Status, To: status}
	}
	g.Status = status
	g.UpdatedAt = nowUTC()
	logging.Goals("goal %s -> %s", id, status)
	return nil
}

// UpdatePriority changes a goal's priority.
func (s *GoalStore) UpdatePriority(id string, priority Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	g.Priority = priority
	g.UpdatedAt = nowUTC()
	return nil
}

// SetEthics records the ethical assessment on a goal.
func (s *GoalStore) SetEthics(id string, assessment EthicalAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	g.Ethics = &assessment
	g.UpdatedAt = nowUTC()
	return nil
}

// AddDependency records that id depends on dependsOn.
func (s *GoalStore) AddDependency(id, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	for _, d := range g.Dependencies {
		if d == dependsOn {
			return nil
		}
	}
	g.Dependencies = append(g.Dependencies, dependsOn)
	g.UpdatedAt = nowUTC()
	return nil
}

// RemoveDependency drops a dependency edge.
func (s *GoalStore) RemoveDependency(id, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	for i, d := range g.Dependencies {
		if d == dependsOn {
			g.Dependencies = append(g.Dependencies[:i], g.Dependencies[i+1:]...)
			g.UpdatedAt = nowUTC()
			return nil
		}
	}
	return nil
}

// NextGoal returns the NotStarted goal with the highest priority whose
// dependencies are all satisfied, ties broken by insertion order. A
// dependency on an unknown goal counts as unsatisfied.
func (s *GoalStore) NextGoal() (Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Goal
	for _, id := range s.order {
		g := s.goals[id]
		if g.Status != NotStarted {
			continue
		}
		if !s.dependenciesSatisfied(g) {
			continue
		}
		if best == nil || g.Priority > best.Priority {
			best = g
		}
	}
	if best == nil {
		return Goal{}, false
	}
	return *best, true
}

// dependenciesSatisfied checks every dependency is Completed. Caller holds
// at least a read lock.
func (s *GoalStore) dependenciesSatisfied(g *Goal) bool {
	for _, dep := range g.Dependencies {
		d, ok := s.goals[dep]
		if !ok || d.Status != Completed {
			return false
		}
	}
	return true
}

// InferDependencies adds edges between goals sharing affected areas: a goal
// created later depends on the earlier goal touching the same path.
func (s *GoalStore) InferDependencies() {
	s.mu.Lock()
	defer s.mu.Unlock()

	byArea := make(map[string][]string) // area -> goal IDs in insertion order
	for _, id := range s.order {
		for _, area := range s.goals[id].AffectedAreas {
			byArea[area] = append(byArea[area], id)
		}
	}

	areas := make([]string, 0, len(byArea))
	for a := range byArea {
		areas = append(areas, a)
	}
	sort.Strings(areas)

	for _, area := range areas {
		ids := byArea[area]
		for i := 1; i < len(ids); i++ {
			later := s.goals[ids[i]]
			earlier := ids[i-1]
			if later.ID == earlier {
				continue
			}
			exists := false
			for _, d := range later.Dependencies {
				if d == earlier {
					exists = true
					break
				}
			}
			if !exists && !later.Status.terminal() {
				later.Dependencies = append(later.Dependencies, earlier)
				logging.GoalsDebug("inferred dependency %s -> %s via %s", later.ID, earlier, area)
			}
		}
	}
}
