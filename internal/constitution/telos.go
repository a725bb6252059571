package constitution

import (
	"fmt"
	"strings"
)

// FlourishingDimension is one axis of the intrinsic purpose.
type FlourishingDimension string

const (
	CharacterAndVirtue FlourishingDimension = "character_and_virtue"
	Relationships      FlourishingDimension = "relationships"
	Health             FlourishingDimension = "health"
	Finances           FlourishingDimension = "finances"
	Meaning            FlourishingDimension = "meaning"
	Happiness          FlourishingDimension = "happiness"
	Spirituality       FlourishingDimension = "spirituality"
)

// Telos is the intrinsic purpose that frames every research prompt. It is
// distinct from per-goal tasks: its only behavior is producing the preamble.
type Telos struct {
	Purpose    string
	Dimensions []FlourishingDimension
}

// DefaultTelos returns the standing purpose.
func DefaultTelos() Telos {
	return Telos{
		Purpose: "Maximize human flourishing subject to constitutional constraints",
		Dimensions: []FlourishingDimension{
			CharacterAndVirtue,
			Relationships,
			Health,
			Meaning,
			Happiness,
		},
	}
}

var dimensionHints = map[FlourishingDimension]string{
	CharacterAndVirtue: "Does this promote ethical behavior and integrity?",
	Relationships:      "Does this facilitate genuine human connection?",
	Health:             "Does this support human well-being?",
	Finances:           "Does this support sustainable stewardship of resources?",
	Meaning:            "Does this help humans understand their purpose?",
	Happiness:          "Does this contribute to long-term life satisfaction?",
	Spirituality:       "Does this respect the human search for transcendence?",
}

// Preamble frames proposal generation with the purpose and dimensions,
// without any codebase context. Used as the system prompt over a phase's
// own prompt template.
func (t Telos) Preamble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are part of an autonomous swarm with an intrinsic purpose: %s\n\n", t.Purpose)
	b.WriteString("Weigh every proposal against these dimensions of flourishing:\n")
	for _, d := range t.Dimensions {
		fmt.Fprintf(&b, "- %s: %s\n", d, dimensionHints[d])
	}
	return b.String()
}

// ResearchPrompt frames proposal generation with the purpose and the
// codebase context.
func (t Telos) ResearchPrompt(codebaseContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are part of an autonomous swarm with an intrinsic purpose: %s\n\n", t.Purpose)
	b.WriteString("Your task is to identify improvements to this codebase that would best serve human flourishing.\n\n")
	b.WriteString("Consider these dimensions of flourishing:\n")
	for _, d := range t.Dimensions {
		fmt.Fprintf(&b, "- %s: %s\n", d, dimensionHints[d])
	}
	fmt.Fprintf(&b, "\nCodebase context:\n%s\n\n", codebaseContext)
	b.WriteString("Propose an improvement that genuinely advances human flourishing, not just superficial metrics.")
	return b.String()
}
