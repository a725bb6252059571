package swarm

// CycleKind tags the outcome of one swarm cycle.
type CycleKind string

const (
	// CycleSuccess means an improvement was executed.
	CycleSuccess CycleKind = "success"

	// CycleNoConsensus means proposals existed but none was approved.
	CycleNoConsensus CycleKind = "no_consensus"

	// CycleExecutionFailed means the winning proposal failed during
	// execution.
	CycleExecutionFailed CycleKind = "execution_failed"

	// CycleNoImprovements means research produced nothing usable.
	CycleNoImprovements CycleKind = "no_improvements"
)

// CycleResult is the outcome of one full research/deliberation/execution
// pass.
type CycleResult struct {
	Kind CycleKind

	// Success fields.
	Proposal       *Proposal
	ChangesApplied bool
	TestsPassed    bool

	// NoConsensus fields.
	ProposalCount    int
	RejectionReasons []string

	// ExecutionFailed fields.
	Error string
}
