package swarm

import (
	"math"
	"testing"
)

func TestGeometricMeanEqualScores(t *testing.T) {
	if got := GeometricMean([]float64{0.8, 0.8}); math.Abs(got-0.8) > 0.001 {
		t.Errorf("GeometricMean = %f, want 0.8", got)
	}
}

// S2: [0.9, 0.1] averages to sqrt(0.09) = 0.3, below the 0.5 threshold.
func TestGeometricMeanPenalizesLowScore(t *testing.T) {
	got := GeometricMean([]float64{0.9, 0.1})
	if math.Abs(got-0.3) > 0.001 {
		t.Errorf("GeometricMean = %f, want ~0.3", got)
	}
	c := Deliberate(Proposal{ID: "p"}, []ModelScore{{"a", 0.9}, {"b", 0.1}}, DefaultApprovalThreshold)
	if c.Approved {
		t.Error("score 0.3 must not clear a 0.5 threshold")
	}
}

func TestGeometricMeanClampsNearZero(t *testing.T) {
	got := GeometricMean([]float64{0.0001, 1.0})
	want := math.Sqrt(0.001) // clamped low end
	if math.Abs(got-want) > 0.001 {
		t.Errorf("GeometricMean = %f, want %f", got, want)
	}
}

func TestGeometricMeanEmpty(t *testing.T) {
	if GeometricMean(nil) != 0 {
		t.Error("empty scores should give 0")
	}
}

// Invariant 5: one exact 0.0 rejects regardless of every other score.
func TestVetoKillsProposal(t *testing.T) {
	scores := []ModelScore{{"a", 1.0}, {"b", 1.0}, {"c", 0.0}, {"d", 1.0}}
	c := Deliberate(Proposal{ID: "p"}, scores, 0.01)
	if c.Approved {
		t.Error("vetoed proposal approved")
	}
	if len(c.VetoedBy) != 1 || c.VetoedBy[0] != "c" {
		t.Errorf("VetoedBy = %v", c.VetoedBy)
	}
}

func TestNearZeroIsNotAVeto(t *testing.T) {
	c := Deliberate(Proposal{ID: "p"}, []ModelScore{{"a", 0.001}, {"b", 0.9}}, 0.0001)
	if len(c.VetoedBy) != 0 {
		t.Errorf("0.001 is not a veto: %v", c.VetoedBy)
	}
}

func TestBestPicksHighestScore(t *testing.T) {
	all := []Consensus{
		{Proposal: Proposal{ID: "a"}, GeometricMean: 0.6, Approved: true},
		{Proposal: Proposal{ID: "b"}, GeometricMean: 0.9, Approved: true},
		{Proposal: Proposal{ID: "c"}, GeometricMean: 0.95, Approved: false},
	}
	best, ok := Best(all)
	if !ok || best.Proposal.ID != "b" {
		t.Errorf("Best = %+v, %v", best.Proposal.ID, ok)
	}
}

func TestBestTieBreaksLexicographically(t *testing.T) {
	all := []Consensus{
		{Proposal: Proposal{ID: "zebra"}, GeometricMean: 0.8, Approved: true},
		{Proposal: Proposal{ID: "alpha"}, GeometricMean: 0.8, Approved: true},
	}
	best, ok := Best(all)
	if !ok || best.Proposal.ID != "alpha" {
		t.Errorf("tie should break to the smaller ID, got %s", best.Proposal.ID)
	}
}

func TestBestNoneApproved(t *testing.T) {
	if _, ok := Best([]Consensus{{Proposal: Proposal{ID: "a"}}}); ok {
		t.Error("expected no best")
	}
}

func TestParseProposal(t *testing.T) {
	response := "```json\n" + `{
		"title": "Cache provider responses",
		"description": "Add an LRU cache in front of providers",
		"rationale": "Cuts repeat latency",
		"files_to_modify": ["internal/llm/client.go"],
		"estimated_lines_changed": 80,
		"expected_benefits": ["lower latency"],
		"potential_risks": ["staleness"]
	}` + "\n```"

	p, err := parseProposal("claude", response)
	if err != nil {
		t.Fatalf("parseProposal: %v", err)
	}
	if p.Title != "Cache provider responses" || p.AgentID != "model-claude" {
		t.Errorf("proposal = %+v", p)
	}
	if len(p.FilesToModify) != 1 || p.EstimatedLinesChanged != 80 {
		t.Errorf("fields not mapped: %+v", p)
	}
	if p.ID == "" {
		t.Error("proposal ID empty")
	}
}

func TestParseProposalRejectsGarbage(t *testing.T) {
	if _, err := parseProposal("m", "this is not json"); err == nil {
		t.Error("expected parse failure")
	}
}
