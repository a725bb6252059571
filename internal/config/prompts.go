package config

// Default phase prompt templates. {{context}} and {{proposal}} are
// substituted by the swarm coordinator.

const defaultResearchPrompt = `You are one researcher in a swarm improving a codebase.

Study the codebase context below and propose exactly one concrete improvement.
Respond with a single JSON object with these fields:
  title, description, rationale,
  files_to_modify, files_to_create, files_to_delete (arrays of paths),
  estimated_lines_changed (integer),
  expected_benefits, potential_risks (arrays of strings).

Keep the change small and focused. Do not propose changes to protected
infrastructure or version-control internals.

Codebase context:
{{context}}`

const defaultDeliberationPrompt = `You are one member of a deliberation council reviewing a proposed code change.

Assess the proposal below for correctness risk, scope, and genuine value.
Respond with a single JSON object: {"score": <number between 0.0 and 1.0>, "reasoning": "..."}.
A score of exactly 0.0 is a veto and rejects the proposal outright; reserve it
for proposals that must not proceed under any circumstances.

Proposal:
{{proposal}}`

const defaultTDDPrompt = `You are implementing an approved code change using test-driven development.

Write a failing test first, then the implementation, using the tools available
to you. Keep the diff within the proposal's declared file set. When you are
done, reply with the single word DONE.

Proposal:
{{proposal}}`
