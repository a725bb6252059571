// Package agent hosts the orchestrator: it owns the goal store, planning
// manager, strategy manager, constitution, resource monitor, and git
// workspace, and drives the main improvement loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"codesmith/internal/config"
	"codesmith/internal/constitution"
	"codesmith/internal/gitws"
	"codesmith/internal/goals"
	"codesmith/internal/llm"
	"codesmith/internal/llm/llmlog"
	"codesmith/internal/logging"
	"codesmith/internal/monitor"
	"codesmith/internal/pipeline"
	"codesmith/internal/planning"
	"codesmith/internal/store"
	"codesmith/internal/strategy"
	"codesmith/internal/swarm"
	"codesmith/internal/tools"

	"go.uber.org/zap"
)

// Agent is the orchestrator. It owns every subsystem and hands
// mutex-guarded handles down; no subsystem owns the agent back.
type Agent struct {
	cfg *config.Config
	log *zap.SugaredLogger

	goalStore  *goals.GoalStore
	planning   *planning.Manager
	strategies *strategy.Manager
	ethics     *constitution.Constitution
	monitor    *monitor.Monitor
	git        *gitws.CLIWorkspace
	auth       *AuthManager
	contextSrc *ContextBuilder
	swarm      *swarm.Coordinator
	llmLog     *llmlog.Logger

	goalsFile *store.FileStore[goals.Goal]
	goalsDB   *store.SQLiteStore[goals.Goal]
	db        *store.DB

	// Audit archives; plans and proposals are ephemeral to one iteration
	// but kept here for inspection.
	planArchive     *store.FileStore[strategy.Plan]
	proposalArchive *store.FileStore[swarm.Proposal]

	// sleep is swapped in tests to avoid real back-off waits.
	sleep func(time.Duration)
}

// New builds and initializes the agent: working directory, git repository
// (seeded with a README when empty), persisted goals, default goals, and the
// built-in strategies.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	a := &Agent{
		cfg:       cfg,
		log:       log,
		goalStore: goals.NewStore(),
		ethics:    constitution.New(),
		auth:      NewAuthManager(),
		sleep:     time.Sleep,
	}

	if err := os.MkdirAll(cfg.Agent.WorkingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	var err error
	a.monitor, err = monitor.New(cfg.Agent.WorkingDir)
	if err != nil {
		return nil, err
	}

	a.llmLog, err = llmlog.New(llmlog.Options{
		Enabled:            cfg.Logging.Enabled,
		Dir:                cfg.Logging.LLMLogDir,
		FilesToKeep:        cfg.Logging.LLMLogsToKeep,
		IncludeFullPrompts: cfg.Logging.IncludeFullPrompts,
		ConsoleLogging:     cfg.Logging.ConsoleLogging,
	})
	if err != nil {
		return nil, err
	}

	if err := a.initGit(); err != nil {
		return nil, err
	}
	if err := a.initPersistence(); err != nil {
		return nil, err
	}
	if err := a.loadGoals(); err != nil {
		return nil, err
	}
	if len(a.goalStore.All()) == 0 {
		a.seedDefaultGoals()
	}

	a.planning = planning.NewManager(a.goalStore, cfg.DataPath("strategic_plan.json"))
	if err := a.planning.Load(); err != nil {
		log.Warnw("could not load strategic plan", "error", err)
	}

	a.contextSrc = NewContextBuilder(cfg.Agent.WorkingDir)
	a.initStrategies()
	a.initSwarm()

	logging.Boot("agent initialized: workdir=%s goals=%d", cfg.Agent.WorkingDir, len(a.goalStore.All()))
	return a, nil
}

// Close releases held resources.
func (a *Agent) Close() {
	if a.contextSrc != nil {
		a.contextSrc.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.llmLog.Close()
	a.monitor.Stop()
}

// Auth exposes the authentication manager.
func (a *Agent) Auth() *AuthManager { return a.auth }

// Goals exposes the goal store.
func (a *Agent) Goals() *goals.GoalStore { return a.goalStore }

// Planning exposes the planning manager.
func (a *Agent) Planning() *planning.Manager { return a.planning }

func (a *Agent) initGit() error {
	ctx := context.Background()
	a.git = gitws.NewCLIWorkspace(a.cfg.Agent.WorkingDir, a.cfg.Git.AuthorName, a.cfg.Git.AuthorEmail)
	if err := a.git.Init(ctx); err != nil {
		return err
	}

	// Seed an initial commit when the repository has no HEAD yet.
	if _, err := a.git.CurrentBranch(ctx); err != nil {
		if werr := a.git.WriteFile("README.md", "# workspace\n\nManaged by codesmith.\n"); werr != nil {
			return werr
		}
		if err := a.git.Add(ctx, "README.md"); err != nil {
			return err
		}
		if _, err := a.git.Commit(ctx, "initial commit"); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) initPersistence() error {
	var err error
	a.goalsFile, err = store.NewFileStore[goals.Goal](a.cfg.Agent.DataDir, "goals")
	if err != nil {
		return err
	}

	a.planArchive, err = store.NewFileStore[strategy.Plan](a.cfg.Agent.DataDir, "plans")
	if err != nil {
		return err
	}
	a.proposalArchive, err = store.NewFileStore[swarm.Proposal](a.cfg.Agent.DataDir, "proposals")
	if err != nil {
		return err
	}

	if a.cfg.Database.Path != "" {
		a.db, err = store.OpenDB(a.cfg.Database.Path)
		if err != nil {
			return err
		}
		a.goalsDB, err = store.NewSQLiteStore[goals.Goal](a.db, "goals")
		if err != nil {
			return err
		}
	}
	return nil
}

// loadGoals prefers the database and falls back to the file store.
func (a *Agent) loadGoals() error {
	if a.goalsDB != nil {
		records, err := a.goalsDB.GetAll()
		if err == nil && len(records) > 0 {
			a.goalStore.Replace(entities(records))
			logging.Boot("loaded %d goals from database", len(records))
			return nil
		}
		if err != nil {
			a.log.Warnw("database goal load failed, falling back to files", "error", err)
		}
	}

	records, err := a.goalsFile.GetAll()
	if err != nil {
		return err
	}
	if len(records) > 0 {
		a.goalStore.Replace(entities(records))
		logging.Boot("loaded %d goals from file persistence", len(records))
	}
	return nil
}

func entities(records []store.Record[goals.Goal]) []goals.Goal {
	out := make([]goals.Goal, 0, len(records))
	for _, r := range records {
		out = append(out, r.Entity)
	}
	return out
}

// seedDefaultGoals installs a starting goal set when nothing is persisted.
func (a *Agent) seedDefaultGoals() {
	defaults := []goals.Goal{
		goals.New("seed-error-handling", "Harden error handling",
			"Audit error paths for swallowed failures and add wrapping with context", goals.ErrorHandling),
		goals.New("seed-test-coverage", "Raise test coverage",
			"Identify under-tested packages and add unit tests for their core paths", goals.TestCoverage),
	}
	for _, g := range defaults {
		if err := a.goalStore.Add(g); err != nil {
			a.log.Warnw("could not seed goal", "goal", g.ID, "error", err)
		}
	}
	logging.Boot("seeded %d default goals", len(defaults))
}

func (a *Agent) initStrategies() {
	var policy strategy.PermissionPolicy = strategy.PermissivePolicy{}
	if a.cfg.Agent.StrictPermissions {
		policy = strategy.StrictPolicy{}
	}
	a.strategies = strategy.NewManager(policy, a.auth)

	generator := a.codeGenerator()
	runner := pipeline.NewRunner(a.cfg.Agent.WorkingDir)
	lookup := func(id string) (goals.Goal, bool) { return a.goalStore.Get(id) }

	a.strategies.Register(strategy.NewCodeImprovement(
		generator, a.git, runner, a.cfg.Git.BranchPrefix, lookup, true))
}

// codeGenerator resolves the code-generation role to a provider, degrading
// to the mock when configuration is incomplete.
func (a *Agent) codeGenerator() llm.Provider {
	mc, ok := a.cfg.RoleModel("code_generation")
	if !ok {
		a.log.Warn("no code_generation model configured, using mock")
		return llm.NewMockProvider()
	}
	p, err := llm.New(mc, a.llmLog)
	if err != nil {
		a.log.Warnw("could not build code generator, using mock", "error", err)
		return llm.NewMockProvider()
	}
	return p
}

func (a *Agent) initSwarm() {
	runner := pipeline.NewRunner(a.cfg.Agent.WorkingDir)
	registry := tools.Builtin(a.cfg.Agent.WorkingDir)
	a.swarm = swarm.NewCoordinator(a.cfg, a.ethics, a.git, runner, registry, nil)
}

// limits builds the monitor limits from config.
func (a *Agent) limits() monitor.Limits {
	return monitor.Limits{
		MaxMemoryMB:   a.cfg.Agent.MaxMemoryMB,
		MaxCPUPercent: a.cfg.Agent.MaxCPUPercent,
		MaxDiskMB:     a.cfg.Agent.MaxDiskMB,
	}
}

// ImprovementLoop is the main loop: gate on resources, pick the next goal,
// process it, persist. It returns when no eligible goal remains or the
// context is cancelled.
func (a *Agent) ImprovementLoop(ctx context.Context) error {
	backoff := a.cfg.Agent.ResourceBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		within, err := a.monitor.WithinLimits(a.limits())
		if err != nil {
			a.log.Warnw("resource sampling failed", "error", err)
		} else if !within {
			a.log.Infow("resource limits exceeded, backing off", "backoff", backoff)
			a.sleep(backoff)
			continue
		}

		if a.planning.CycleDue() {
			if err := a.planning.RunPlanningCycle(); err != nil {
				a.log.Warnw("planning cycle failed", "error", err)
			}
		}

		goal, ok := a.goalStore.NextGoal()
		if !ok {
			a.log.Info("no eligible goals remain, stopping loop")
			return nil
		}

		a.Process(ctx, goal)
		a.persistGoals(ctx)
	}
}

// Process runs one goal through ethics, strategy selection, and execution.
func (a *Agent) Process(ctx context.Context, goal goals.Goal) {
	a.log.Infow("processing goal", "goal", goal.ID, "title", goal.Title)
	logging.Agent("processing goal %s", goal.ID)

	if err := a.goalStore.UpdateStatus(goal.ID, goals.InProgress); err != nil {
		a.log.Warnw("could not mark goal in progress", "goal", goal.ID, "error", err)
		return
	}

	// Ethical gate before any plan is made.
	assessment := a.assessEthics(goal)
	a.goalStore.SetEthics(goal.ID, assessment)
	if !assessment.Approved {
		a.log.Warnw("goal failed ethical assessment", "goal", goal.ID, "reason", assessment.Reason)
		a.goalStore.UpdateStatus(goal.ID, goals.Failed)
		return
	}

	result, err := a.runGoal(ctx, goal)
	switch {
	case err != nil:
		a.log.Warnw("goal execution errored", "goal", goal.ID, "error", err)
		a.goalStore.UpdateStatus(goal.ID, goals.Failed)
	case result.Success:
		a.log.Infow("goal completed", "goal", goal.ID)
		a.goalStore.UpdateStatus(goal.ID, goals.Completed)
	default:
		a.log.Warnw("goal failed", "goal", goal.ID, "message", result.Message)
		a.goalStore.UpdateStatus(goal.ID, goals.Failed)
	}
}

// runGoal selects a strategy, archives the plan for audit, and executes it.
func (a *Agent) runGoal(ctx context.Context, goal goals.Goal) (*strategy.ExecutionResult, error) {
	s, err := a.strategies.Select(ctx, goal)
	if err != nil {
		return nil, err
	}
	if err := a.strategies.CheckPermissions(s); err != nil {
		return nil, err
	}
	plan, err := s.CreatePlan(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("strategy %s failed to plan goal %s: %w", s.Name(), goal.ID, err)
	}
	if _, err := a.planArchive.Insert(*plan); err != nil {
		a.log.Warnw("could not archive plan", "plan", plan.ID, "error", err)
	}
	return s.Execute(ctx, plan, "")
}

// assessEthics runs the constitution over the goal's description and
// affected areas.
func (a *Agent) assessEthics(goal goals.Goal) goals.EthicalAssessment {
	action := constitution.ProposedAction{
		Description:           goal.Description,
		FilesToModify:         goal.AffectedAreas,
		EstimatedLinesChanged: 0,
	}
	now := time.Now().UTC()
	if v := a.ethics.Validate(action); v != nil {
		return goals.EthicalAssessment{
			Approved:  false,
			Reason:    fmt.Sprintf("[%s] %s", v.Priority, v.Description),
			Timestamp: now,
		}
	}
	return goals.EthicalAssessment{Approved: true, Timestamp: now}
}

// persistGoals writes the goal set to both stores. Each store operation is
// wrapped in a coarse wall-clock timeout: infrastructure failures are logged
// and skipped, never retried here.
func (a *Agent) persistGoals(ctx context.Context) {
	timeout := a.cfg.Agent.DatabaseTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	all := a.goalStore.All()
	persist := func(name string, s store.Store[goals.Goal]) {
		done := make(chan error, 1)
		go func() { done <- upsertAll(s, all) }()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warnw("goal persistence failed", "store", name, "error", err)
			}
		case <-time.After(timeout):
			a.log.Warnw("goal persistence timed out, skipping", "store", name, "timeout", timeout)
		case <-ctx.Done():
		}
	}

	persist("file", a.goalsFile)
	if a.goalsDB != nil {
		persist("database", a.goalsDB)
	}
}

// upsertAll inserts or updates every goal.
func upsertAll(s store.Store[goals.Goal], all []goals.Goal) error {
	for _, g := range all {
		_, err := s.Insert(g)
		if err == nil {
			continue
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			if _, err := s.Update(g, nil); err != nil {
				return err
			}
			continue
		}
		return err
	}
	return nil
}

// RunSwarm delegates to the swarm coordinator for up to maxCycles cycles.
func (a *Agent) RunSwarm(ctx context.Context, maxCycles int) ([]*swarm.CycleResult, error) {
	within, err := a.monitor.WithinLimits(a.limits())
	if err == nil && !within {
		return nil, fmt.Errorf("resource limits exceeded, refusing to start swarm")
	}
	results, err := a.swarm.Run(ctx, a.contextSrc.Build(), maxCycles)
	for _, r := range results {
		if r.Proposal == nil {
			continue
		}
		if _, aerr := a.proposalArchive.Insert(*r.Proposal); aerr != nil {
			a.log.Warnw("could not archive proposal", "proposal", r.Proposal.ID, "error", aerr)
		}
	}
	return results, err
}

// Info summarizes the agent state for the CLI.
func (a *Agent) Info() string {
	usage, err := a.monitor.Sample()
	mem := "unknown"
	if err == nil {
		mem = fmt.Sprintf("%.1f MB (peak %.1f)", usage.MemoryMB, usage.PeakMemoryMB)
	}
	all := a.goalStore.All()
	counts := map[goals.Status]int{}
	for _, g := range all {
		counts[g.Status]++
	}
	return fmt.Sprintf(
		"codesmith %s\nworkspace: %s\nmemory: %s\ngoals: %d total, %d not started, %d in progress, %d completed, %d failed",
		a.cfg.Version, a.cfg.Agent.WorkingDir, mem,
		len(all), counts[goals.NotStarted], counts[goals.InProgress], counts[goals.Completed], counts[goals.Failed])
}
