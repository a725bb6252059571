package swarm

import "math"

// DefaultApprovalThreshold is the minimum geometric mean for approval.
const DefaultApprovalThreshold = 0.5

// ModelScore is one deliberation vote.
type ModelScore struct {
	Model string
	Score float64
}

// GeometricMean computes exp(sum(ln(s))/n) with scores clamped to
// [0.001, 1.0] so a near-zero vote cannot collapse into a singularity.
// An empty slice scores 0.
func GeometricMean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	logSum := 0.0
	for _, s := range scores {
		logSum += math.Log(clamp(s, 0.001, 1.0))
	}
	return math.Exp(logSum / float64(len(scores)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Vetoes returns the models that voted exactly 0.0. One veto rejects the
// proposal regardless of every other score.
func Vetoes(scores []ModelScore) []string {
	var out []string
	for _, s := range scores {
		if s.Score == 0.0 {
			out = append(out, s.Model)
		}
	}
	return out
}

// Consensus is the deliberation outcome for one proposal.
type Consensus struct {
	Proposal      Proposal
	GeometricMean float64
	Scores        []ModelScore
	Approved      bool

	// VetoedBy lists vetoing models when the proposal was killed by veto.
	VetoedBy []string
}

// Deliberate folds a proposal's scores into a consensus against the
// threshold.
func Deliberate(p Proposal, scores []ModelScore, threshold float64) Consensus {
	c := Consensus{Proposal: p, Scores: scores}

	if vetoes := Vetoes(scores); len(vetoes) > 0 {
		c.VetoedBy = vetoes
		return c
	}

	values := make([]float64, len(scores))
	for i, s := range scores {
		values[i] = s.Score
	}
	c.GeometricMean = GeometricMean(values)
	c.Approved = len(scores) > 0 && c.GeometricMean >= threshold
	return c
}

// Best picks the approved consensus with the highest geometric mean, ties
// broken by lexicographically smaller proposal ID. Returns false when no
// proposal is approved.
func Best(all []Consensus) (Consensus, bool) {
	var best Consensus
	found := false
	for _, c := range all {
		if !c.Approved {
			continue
		}
		switch {
		case !found,
			c.GeometricMean > best.GeometricMean,
			c.GeometricMean == best.GeometricMean && c.Proposal.ID < best.Proposal.ID:
			best = c
			found = true
		}
	}
	return best, found
}
