package planning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codesmith/internal/goals"
	"codesmith/internal/logging"
)

const (
	// planningInterval is how often a cycle comes due.
	planningInterval = 7 * 24 * time.Hour

	// milestonesPerObjective synthesized when an objective has none.
	milestonesPerObjective = 3

	// goalsPerMilestone generated for each active milestone.
	goalsPerMilestone = 2
)

// Manager owns the strategic plan and drives planning cycles against the
// goal store.
type Manager struct {
	plan     StrategicPlan
	goals    *goals.GoalStore
	planPath string

	// now is injectable so cycles are reproducible in tests.
	now func() time.Time
}

// NewManager creates a manager persisting the plan snapshot at planPath.
func NewManager(goalStore *goals.GoalStore, planPath string) *Manager {
	return &Manager{
		goals:    goalStore,
		planPath: planPath,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Plan returns a copy of the current plan.
func (m *Manager) Plan() StrategicPlan {
	p := m.plan
	p.Objectives = append([]Objective(nil), m.plan.Objectives...)
	p.Milestones = append([]Milestone(nil), m.plan.Milestones...)
	return p
}

// AddObjective appends an objective to the plan.
func (m *Manager) AddObjective(o Objective) {
	m.plan.Objectives = append(m.plan.Objectives, o)
}

// AddMilestone appends a milestone, validating its parent.
func (m *Manager) AddMilestone(ms Milestone) error {
	for _, o := range m.plan.Objectives {
		if o.ID == ms.ObjectiveID {
			m.plan.Milestones = append(m.plan.Milestones, ms)
			return nil
		}
	}
	return fmt.Errorf("milestone %s references unknown objective %s", ms.ID, ms.ObjectiveID)
}

// Load reads the plan snapshot from disk. A missing file leaves the plan
// empty.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read plan: %w", err)
	}
	var plan StrategicPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	m.plan = plan
	logging.Planning("loaded plan: %d objectives, %d milestones", len(plan.Objectives), len(plan.Milestones))
	return nil
}

// Save writes the plan snapshot atomically.
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.planPath), 0755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}
	data, err := json.MarshalIndent(m.plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	tmp := m.planPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	if err := os.Rename(tmp, m.planPath); err != nil {
		return fmt.Errorf("failed to rename plan into place: %w", err)
	}
	return nil
}

// CycleDue reports whether a planning cycle should run: never run, or more
// than a week ago.
func (m *Manager) CycleDue() bool {
	if m.plan.LastPlanningCycle == nil {
		return true
	}
	return m.now().Sub(*m.plan.LastPlanningCycle) > planningInterval
}

// RunPlanningCycle executes one full review-and-expand pass.
func (m *Manager) RunPlanningCycle() error {
	logging.Planning("starting planning cycle")
	now := m.now()

	// 1. Review progress on existing milestones, handle past-due ones.
	m.reviewProgress(now)

	// 2. Synthesize milestones for objectives that have none.
	for _, o := range m.plan.Objectives {
		if len(m.plan.MilestonesFor(o.ID)) == 0 {
			for _, ms := range m.synthesizeMilestones(o, now) {
				m.plan.Milestones = append(m.plan.Milestones, ms)
			}
			logging.Planning("generated milestones for objective %s", o.ID)
		}
	}

	// 3. Generate tactical goals from active milestones.
	newGoals := m.generateTacticalGoals(now)

	// 4. Add to the goal store, skipping ID collisions.
	existing := make(map[string]bool)
	for _, g := range m.goals.All() {
		existing[g.ID] = true
	}
	for _, g := range newGoals {
		if existing[g.ID] {
			continue
		}
		if err := m.goals.Add(g); err != nil {
			logging.PlanningWarn("could not add goal %s: %v", g.ID, err)
			continue
		}
		logging.Planning("added tactical goal %s", g.ID)
	}

	// 5. Stamp and persist.
	m.plan.LastPlanningCycle = &now
	if err := m.Save(); err != nil {
		return err
	}
	logging.Planning("completed planning cycle")
	return nil
}

// reviewProgress refreshes milestone progress from goal completion and
// applies the past-due policy: nearly-done milestones get 30 more days,
// barely-started ones are abandoned, the rest get 60 days.
func (m *Manager) reviewProgress(now time.Time) {
	allGoals := m.goals.All()

	for i := range m.plan.Milestones {
		ms := &m.plan.Milestones[i]

		var related []goals.Goal
		for _, g := range allGoals {
			if len(g.ID) >= len(ms.ID) && g.ID[:len(ms.ID)] == ms.ID {
				related = append(related, g)
			}
		}
		ms.UpdateProgress(related, now)

		if ms.Status.closed() {
			continue
		}
		if ms.TargetDate.Before(now) {
			switch {
			case ms.Progress >= 80:
				ms.TargetDate = now.Add(30 * 24 * time.Hour)
				logging.Planning("extended milestone %s (nearly complete)", ms.ID)
			case ms.Progress < 20:
				ms.Status = MilestoneAbandoned
				logging.Planning("abandoned past-due milestone %s", ms.ID)
			default:
				ms.TargetDate = now.Add(60 * 24 * time.Hour)
				logging.Planning("rescheduled milestone %s", ms.ID)
			}
		}
	}

	m.plan.updateObjectiveProgress()
}

// synthesizeMilestones spaces a fixed number of milestones evenly across the
// objective's timeframe, chaining each to the previous and inheriting the
// key results as criteria.
func (m *Manager) synthesizeMilestones(o Objective, now time.Time) []Milestone {
	out := make([]Milestone, 0, milestonesPerObjective)
	for i := 1; i <= milestonesPerObjective; i++ {
		fraction := float64(i) / float64(milestonesPerObjective)
		monthsOffset := int(float64(o.Timeframe) * fraction)
		target := now.Add(time.Duration(monthsOffset) * 30 * 24 * time.Hour)

		var criteria []string
		for _, kr := range o.KeyResults {
			criteria = append(criteria, "Progress toward: "+kr)
		}

		ms := Milestone{
			ID:              fmt.Sprintf("%s-m%d", o.ID, i),
			Title:           fmt.Sprintf("Milestone %d for %s", i, o.Title),
			Description:     fmt.Sprintf("Achieve %d%% of the objective: %s", int(fraction*100), o.Description),
			ObjectiveID:     o.ID,
			TargetDate:      target,
			Status:          MilestonePlanned,
			SuccessCriteria: criteria,
			UpdatedAt:       now,
		}
		if i > 1 {
			ms.Dependencies = []string{fmt.Sprintf("%s-m%d", o.ID, i-1)}
		}
		out = append(out, ms)
	}
	return out
}

// generateTacticalGoals creates goals for every active milestone, then
// prioritizes them and establishes dependencies mirroring the milestone
// graph.
func (m *Manager) generateTacticalGoals(now time.Time) []goals.Goal {
	var out []goals.Goal
	for _, ms := range m.plan.ActiveMilestones() {
		for i := 1; i <= goalsPerMilestone; i++ {
			g := goals.New(
				fmt.Sprintf("%s-g%d", ms.ID, i),
				fmt.Sprintf("Goal %d for %s", i, ms.Title),
				fmt.Sprintf("Implement functionality to support: %s", ms.Description),
				categoryFor(ms),
			)
			metrics := make([]string, 0, len(ms.SuccessCriteria))
			for _, sc := range ms.SuccessCriteria {
				metrics = append(metrics, "Contribute to: "+sc)
			}
			g.SuccessMetrics = metrics
			g.CreatedAt = now
			g.UpdatedAt = now
			out = append(out, g)
		}
	}

	m.prioritizeTacticalGoals(out)
	m.establishGoalDependencies(out)
	return out
}

// categoryFor picks a goal category from milestone wording.
func categoryFor(ms Milestone) goals.Category {
	title := ms.Title + " " + ms.Description
	switch {
	case containsFold(title, "performance"):
		return goals.Performance
	case containsFold(title, "security"):
		return goals.Security
	case containsFold(title, "testing"), containsFold(title, "test"):
		return goals.TestCoverage
	default:
		return goals.General
	}
}

// prioritizeTacticalGoals sorts goals so that dependency milestones come
// first, then by target date, and assigns priority by quartile position.
func (m *Manager) prioritizeTacticalGoals(list []goals.Goal) {
	type info struct {
		milestoneID string
		target      time.Time
		deps        []string
		hasTarget   bool
	}
	infos := make([]info, len(list))
	for i, g := range list {
		msID := milestoneIDOf(g.ID)
		infos[i] = info{milestoneID: msID}
		for _, ms := range m.plan.Milestones {
			if ms.ID == msID {
				infos[i].target = ms.TargetDate
				infos[i].hasTarget = true
				infos[i].deps = ms.Dependencies
				break
			}
		}
	}

	indices := make([]int, len(list))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(x, y int) bool {
		a, b := infos[indices[x]], infos[indices[y]]
		// A goal whose milestone is depended upon sorts first.
		for _, d := range b.deps {
			if d == a.milestoneID {
				return true
			}
		}
		for _, d := range a.deps {
			if d == b.milestoneID {
				return false
			}
		}
		if a.hasTarget && b.hasTarget {
			return a.target.Before(b.target)
		}
		return list[indices[x]].Priority > list[indices[y]].Priority
	})

	n := len(list)
	for pos, idx := range indices {
		switch {
		case pos < n/4:
			list[idx].Priority = goals.Critical
		case pos < n/2:
			list[idx].Priority = goals.High
		case pos < n*3/4:
			list[idx].Priority = goals.Medium
		default:
			list[idx].Priority = goals.Low
		}
	}
}

// establishGoalDependencies mirrors milestone dependencies onto the goals
// they generated.
func (m *Manager) establishGoalDependencies(list []goals.Goal) {
	deps := make(map[string][]string, len(m.plan.Milestones))
	for _, ms := range m.plan.Milestones {
		deps[ms.ID] = ms.Dependencies
	}

	for i := range list {
		list[i].Dependencies = nil
		msID := milestoneIDOf(list[i].ID)
		for _, depMilestone := range deps[msID] {
			for j := range list {
				if i == j {
					continue
				}
				if milestoneIDOf(list[j].ID) == depMilestone {
					list[i].Dependencies = append(list[i].Dependencies, list[j].ID)
				}
			}
		}
	}
}

// milestoneIDOf strips the trailing -gN goal suffix.
func milestoneIDOf(goalID string) string {
	for i := len(goalID) - 1; i > 0; i-- {
		if goalID[i] == '-' {
			return goalID[:i]
		}
	}
	return goalID
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
