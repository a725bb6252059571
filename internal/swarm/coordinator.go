package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"codesmith/internal/config"
	"codesmith/internal/constitution"
	"codesmith/internal/gitws"
	"codesmith/internal/llm"
	"codesmith/internal/logging"
	"codesmith/internal/pipeline"
	"codesmith/internal/tools"

	"golang.org/x/sync/errgroup"
)

// maxTDDTurns bounds the tool-call conversation during execution.
const maxTDDTurns = 8

// modelCallTimeout is the deadline around each individual model call. A
// deadline firing aborts that call only, never the fan-out.
const modelCallTimeout = 3 * time.Minute

// ProviderFactory resolves a configured model name to a provider.
type ProviderFactory func(name string) (llm.Provider, error)

// Coordinator drives the config-driven swarm cycle. Each phase has one
// prompt run against multiple models; the config decides everything.
type Coordinator struct {
	cfg          *config.Config
	constitution *constitution.Constitution
	telos        constitution.Telos
	workspace    gitws.Workspace
	runner       *pipeline.Runner
	registry     *tools.Registry
	providers    ProviderFactory
	threshold    float64
}

// NewCoordinator wires the swarm against a workspace and pipeline. The
// provider factory may be nil, in which case providers are built from the
// config.
func NewCoordinator(cfg *config.Config, c *constitution.Constitution, workspace gitws.Workspace, runner *pipeline.Runner, registry *tools.Registry, providers ProviderFactory) *Coordinator {
	coord := &Coordinator{
		cfg:          cfg,
		constitution: c,
		telos:        constitution.DefaultTelos(),
		workspace:    workspace,
		runner:       runner,
		registry:     registry,
		providers:    providers,
		threshold:    DefaultApprovalThreshold,
	}
	if coord.providers == nil {
		coord.providers = func(name string) (llm.Provider, error) {
			mc, ok := cfg.GetModel(name)
			if !ok {
				return nil, fmt.Errorf("model %q not found in config", name)
			}
			return llm.New(mc, nil)
		}
	}
	return coord
}

// WithThreshold overrides the approval threshold.
func (c *Coordinator) WithThreshold(t float64) *Coordinator {
	c.threshold = t
	return c
}

// RunCycle executes one research -> deliberation -> execution pass.
func (c *Coordinator) RunCycle(ctx context.Context, codebaseContext string) (*CycleResult, error) {
	logging.Swarm("starting swarm cycle")
	logging.Swarm("telos: %s", c.telos.Purpose)

	proposals := c.researchPhase(ctx, codebaseContext)
	if len(proposals) == 0 {
		logging.SwarmWarn("no proposals generated")
		return &CycleResult{Kind: CycleNoImprovements}, nil
	}
	logging.Swarm("received %d proposals", len(proposals))

	winner, reasons := c.deliberationPhase(ctx, proposals)
	if winner == nil {
		return &CycleResult{
			Kind:             CycleNoConsensus,
			ProposalCount:    len(proposals),
			RejectionReasons: reasons,
		}, nil
	}
	logging.Swarm("proposal %q approved with score %.2f", winner.Proposal.Title, winner.GeometricMean)

	applied, testsPassed, err := c.executionPhase(ctx, winner.Proposal)
	if err != nil {
		logging.SwarmError("execution failed: %v", err)
		return &CycleResult{
			Kind:     CycleExecutionFailed,
			Proposal: &winner.Proposal,
			Error:    err.Error(),
		}, nil
	}

	return &CycleResult{
		Kind:           CycleSuccess,
		Proposal:       &winner.Proposal,
		ChangesApplied: applied,
		TestsPassed:    testsPassed,
	}, nil
}

// Run loops cycles until one does not succeed or maxCycles is reached.
// maxCycles <= 0 means unbounded.
func (c *Coordinator) Run(ctx context.Context, codebaseContext string, maxCycles int) ([]*CycleResult, error) {
	var results []*CycleResult
	for cycle := 0; maxCycles <= 0 || cycle < maxCycles; cycle++ {
		logging.Swarm("=== swarm cycle %d ===", cycle+1)
		result, err := c.RunCycle(ctx, codebaseContext)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if result.Kind != CycleSuccess {
			logging.Swarm("stopping swarm loop")
			break
		}
	}
	return results, nil
}

// researchPhase fans the research prompt out to every configured model in
// parallel. Individual model failures are warnings, never fatal. Proposals
// violating the constitution are dropped immediately.
func (c *Coordinator) researchPhase(ctx context.Context, codebaseContext string) []Proposal {
	phase := c.cfg.Phases.Research
	logging.Swarm("research phase: %d models, %d tools allowed", len(phase.Models), len(phase.Tools))

	prompt := strings.ReplaceAll(phase.Prompt, "{{context}}", codebaseContext)
	system := c.telos.Preamble()

	var mu sync.Mutex
	var proposals []Proposal

	g, gctx := errgroup.WithContext(ctx)
	for _, modelName := range phase.Models {
		modelName := modelName
		g.Go(func() error {
			p, err := c.runResearchOnModel(gctx, modelName, system, prompt)
			if err != nil {
				logging.SwarmWarn("model %s produced no proposal: %v", modelName, err)
				return nil // recover individual failures as warnings
			}
			mu.Lock()
			proposals = append(proposals, p)
			mu.Unlock()
			logging.Swarm("model %s proposed %q", modelName, p.Title)
			return nil
		})
	}
	g.Wait()

	// Merge order is stable regardless of completion order.
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })
	return proposals
}

func (c *Coordinator) runResearchOnModel(ctx context.Context, modelName, system, prompt string) (Proposal, error) {
	provider, err := c.providers(modelName)
	if err != nil {
		return Proposal{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	req := llm.GenerateRequest{
		System:         system,
		Messages:       []llm.Message{llm.Text(llm.RoleUser, prompt)},
		ResponseFormat: "json_object",
	}
	if specs := c.phaseTools(c.cfg.Phases.Research); len(specs) > 0 {
		req.Tools = specs
		req.ToolChoice = llm.ToolChoiceAuto
	}

	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return Proposal{}, err
	}

	proposal, err := parseProposal(modelName, resp.Text)
	if err != nil {
		return Proposal{}, err
	}

	// Constitutional gate before the proposal enters deliberation.
	if v := c.constitution.Validate(proposal.ProposedAction()); v != nil {
		return Proposal{}, fmt.Errorf("proposal violates constitution [%s]: %s", v.Priority, v.Description)
	}
	return proposal, nil
}

// phaseTools renders the phase's allow-listed tools as provider specs.
func (c *Coordinator) phaseTools(phase config.PhaseConfig) []llm.ToolSpec {
	if c.registry == nil || len(phase.Tools) == 0 {
		return nil
	}
	filtered := c.registry.Filter(phase.Tools)
	specs := filtered.Specs()
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSpec{Name: s.Name, Description: s.Description, JSONSchema: s.Schema})
	}
	return out
}

// deliberationPhase scores every proposal with every deliberation model and
// returns the best approved consensus, or nil with the rejection reasons.
func (c *Coordinator) deliberationPhase(ctx context.Context, proposals []Proposal) (*Consensus, []string) {
	phase := c.cfg.Phases.Deliberation
	logging.Swarm("deliberation phase: %d proposals, %d models each", len(proposals), len(phase.Models))

	var all []Consensus
	var reasons []string

	for _, proposal := range proposals {
		scores := c.scoreProposal(ctx, proposal)
		if len(scores) == 0 {
			reasons = append(reasons, fmt.Sprintf("%s: no scores returned", proposal.Title))
			continue
		}

		consensus := Deliberate(proposal, scores, c.threshold)
		switch {
		case len(consensus.VetoedBy) > 0:
			logging.Swarm("proposal %q vetoed by %s", proposal.Title, strings.Join(consensus.VetoedBy, ", "))
			reasons = append(reasons, fmt.Sprintf("%s: vetoed by %s", proposal.Title, strings.Join(consensus.VetoedBy, ", ")))
		case !consensus.Approved:
			logging.Swarm("proposal %q below threshold: %.2f", proposal.Title, consensus.GeometricMean)
			reasons = append(reasons, fmt.Sprintf("%s: score %.2f below threshold %.2f", proposal.Title, consensus.GeometricMean, c.threshold))
		}
		all = append(all, consensus)
	}

	best, ok := Best(all)
	if !ok {
		return nil, reasons
	}
	return &best, nil
}

// scoreProposal fans one proposal out to every deliberation model.
func (c *Coordinator) scoreProposal(ctx context.Context, proposal Proposal) []ModelScore {
	phase := c.cfg.Phases.Deliberation

	proposalJSON, err := json.MarshalIndent(proposal, "", "  ")
	if err != nil {
		logging.SwarmError("could not serialize proposal %s: %v", proposal.ID, err)
		return nil
	}
	prompt := strings.ReplaceAll(phase.Prompt, "{{proposal}}", string(proposalJSON))

	var mu sync.Mutex
	var scores []ModelScore

	g, gctx := errgroup.WithContext(ctx)
	for _, modelName := range phase.Models {
		modelName := modelName
		g.Go(func() error {
			score, err := c.runDeliberationOnModel(gctx, modelName, prompt)
			if err != nil {
				logging.SwarmWarn("model %s failed to score: %v", modelName, err)
				return nil
			}
			mu.Lock()
			scores = append(scores, ModelScore{Model: modelName, Score: score})
			mu.Unlock()
			logging.Swarm("model %s scored %.2f", modelName, score)
			return nil
		})
	}
	g.Wait()

	sort.Slice(scores, func(i, j int) bool { return scores[i].Model < scores[j].Model })
	return scores
}

func (c *Coordinator) runDeliberationOnModel(ctx context.Context, modelName, prompt string) (float64, error) {
	provider, err := c.providers(modelName)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()
	resp, err := provider.Generate(ctx, llm.GenerateRequest{
		Messages:       []llm.Message{llm.Text(llm.RoleUser, prompt)},
		ResponseFormat: "json_object",
	})
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(tools.StripFence(resp.Text)), &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse score: %w", err)
	}
	return parsed.Score, nil
}

// executionPhase runs the TDD models on an isolated branch, then the test
// pipeline, merging into main only when tests pass. Returns
// (changesApplied, testsPassed).
func (c *Coordinator) executionPhase(ctx context.Context, proposal Proposal) (bool, bool, error) {
	// Re-validate right before anything touches the tree.
	if v := c.constitution.Validate(proposal.ProposedAction()); v != nil {
		return false, false, fmt.Errorf("constitutional violation [%s]: %s", v.Priority, v.Description)
	}

	branch := "swarm/" + proposal.ID
	exists, err := c.workspace.BranchExists(ctx, branch)
	if err != nil {
		return false, false, err
	}
	if exists {
		if err := c.workspace.CheckoutBranch(ctx, branch); err != nil {
			return false, false, err
		}
	} else if err := c.workspace.CreateBranch(ctx, branch); err != nil {
		return false, false, err
	}

	applied := c.tddLoop(ctx, proposal)
	if applied {
		if err := c.workspace.Add(ctx, "."); err != nil {
			return applied, false, err
		}
		if _, err := c.workspace.Commit(ctx, fmt.Sprintf("%s\n\nProposal: %s", proposal.Title, proposal.ID)); err != nil {
			return applied, false, err
		}
	}

	result, err := c.runner.Run(ctx, branch)
	if err != nil {
		return applied, false, fmt.Errorf("test pipeline error: %w", err)
	}
	logging.Swarm("execution tests on %s: success=%v", branch, result.Success)

	if applied && result.Success {
		main, err := c.workspace.MainBranch(ctx)
		if err != nil {
			return applied, result.Success, err
		}
		if err := c.workspace.CheckoutBranch(ctx, main); err != nil {
			return applied, result.Success, err
		}
		if err := c.workspace.MergeBranch(ctx, branch); err != nil {
			return applied, result.Success, err
		}
		logging.Swarm("merged %s into %s", branch, main)
	}
	return applied, result.Success, nil
}

// tddLoop drives the TDD models through a bounded tool-call conversation.
// Returns whether any mutating tool ran successfully.
func (c *Coordinator) tddLoop(ctx context.Context, proposal Proposal) bool {
	phase := c.cfg.Phases.TDD
	registry := c.registry.Filter(phase.Tools)

	proposalJSON, _ := json.MarshalIndent(proposal, "", "  ")
	prompt := strings.ReplaceAll(phase.Prompt, "{{proposal}}", string(proposalJSON))

	applied := false
	for _, modelName := range phase.Models {
		provider, err := c.providers(modelName)
		if err != nil {
			logging.SwarmWarn("tdd model %s unavailable: %v", modelName, err)
			continue
		}
		if c.runTDDConversation(ctx, provider, registry, prompt) {
			applied = true
		}
	}
	return applied
}

var mutatingTools = map[string]bool{"write": true, "edit": true, "bash": true}

func (c *Coordinator) runTDDConversation(ctx context.Context, provider llm.Provider, registry *tools.Registry, prompt string) bool {
	specs := make([]llm.ToolSpec, 0)
	for _, s := range registry.Specs() {
		specs = append(specs, llm.ToolSpec{Name: s.Name, Description: s.Description, JSONSchema: s.Schema})
	}

	messages := []llm.Message{llm.Text(llm.RoleUser, prompt)}
	applied := false

	for turn := 0; turn < maxTDDTurns; turn++ {
		resp, err := provider.Generate(ctx, llm.GenerateRequest{
			System:     "You implement code changes through the provided tools. Reply DONE when finished.",
			Messages:   messages,
			Tools:      specs,
			ToolChoice: llm.ToolChoiceAuto,
		})
		if err != nil {
			logging.SwarmWarn("tdd turn %d failed: %v", turn, err)
			return applied
		}

		calls := resp.ToolCalls
		if len(calls) == 0 {
			// Fall back to the loose envelope buried in free text.
			for _, loose := range tools.ParseLooseCalls(resp.Text) {
				calls = append(calls, llm.ToolCall{Name: loose.Tool, Arguments: loose.Args})
			}
		}
		if len(calls) == 0 {
			// No tools requested; the model is done (or has nothing to do).
			return applied
		}

		messages = append(messages, llm.Message{
			Role:    llm.RoleAssistant,
			Content: []llm.ContentPart{{Text: resp.Text}},
		})
		for _, call := range calls {
			output, err := registry.Execute(ctx, call.Name, call.Arguments)
			if err != nil {
				output = "error: " + err.Error()
			} else if mutatingTools[call.Name] {
				applied = true
			}
			toolMsg := llm.Message{
				Role:       llm.RoleTool,
				Content:    []llm.ContentPart{{Text: output}},
				ToolCallID: call.ID,
			}
			messages = append(messages, toolMsg)
		}

		if strings.Contains(resp.Text, "DONE") {
			return applied
		}
	}
	return applied
}
