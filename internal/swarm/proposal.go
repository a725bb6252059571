// Package swarm runs the three-phase improvement cycle: research proposals
// from many models, deliberate with geometric-mean consensus and veto, then
// execute the winner under test-driven development.
package swarm

import (
	"encoding/json"
	"fmt"

	"codesmith/internal/constitution"
	"codesmith/internal/tools"

	"github.com/google/uuid"
)

// Proposal is one agent's self-contained improvement suggestion.
type Proposal struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`

	FilesToModify []string `json:"files_to_modify,omitempty"`
	FilesToCreate []string `json:"files_to_create,omitempty"`
	FilesToDelete []string `json:"files_to_delete,omitempty"`

	EstimatedLinesChanged int      `json:"estimated_lines_changed"`
	ExpectedBenefits      []string `json:"expected_benefits,omitempty"`
	PotentialRisks        []string `json:"potential_risks,omitempty"`
}

// EntityID implements store.Entity so proposals can be archived.
func (p Proposal) EntityID() string { return p.ID }

// ProposedAction converts the proposal for constitutional validation.
func (p Proposal) ProposedAction() constitution.ProposedAction {
	return constitution.ProposedAction{
		Description:           p.Description,
		FilesToModify:         p.FilesToModify,
		FilesToCreate:         p.FilesToCreate,
		FilesToDelete:         p.FilesToDelete,
		EstimatedLinesChanged: p.EstimatedLinesChanged,
	}
}

// parseProposal decodes a model's JSON response, tolerating a Markdown
// fence. The model name seeds the proposal and agent IDs.
func parseProposal(modelName, response string) (Proposal, error) {
	payload := tools.StripFence(response)

	var raw struct {
		Title                 string   `json:"title"`
		Description           string   `json:"description"`
		Rationale             string   `json:"rationale"`
		FilesToModify         []string `json:"files_to_modify"`
		FilesToCreate         []string `json:"files_to_create"`
		FilesToDelete         []string `json:"files_to_delete"`
		EstimatedLinesChanged int      `json:"estimated_lines_changed"`
		ExpectedBenefits      []string `json:"expected_benefits"`
		PotentialRisks        []string `json:"potential_risks"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Proposal{}, fmt.Errorf("failed to parse proposal from model %s: %w", modelName, err)
	}

	title := raw.Title
	if title == "" {
		title = "Untitled"
	}
	return Proposal{
		ID:                    fmt.Sprintf("proposal-%s-%s", modelName, uuid.NewString()),
		AgentID:               "model-" + modelName,
		Title:                 title,
		Description:           raw.Description,
		Rationale:             raw.Rationale,
		FilesToModify:         raw.FilesToModify,
		FilesToCreate:         raw.FilesToCreate,
		FilesToDelete:         raw.FilesToDelete,
		EstimatedLinesChanged: raw.EstimatedLinesChanged,
		ExpectedBenefits:      raw.ExpectedBenefits,
		PotentialRisks:        raw.PotentialRisks,
	}, nil
}
