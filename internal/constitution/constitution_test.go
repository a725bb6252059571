package constitution

import (
	"strings"
	"testing"
)

func TestAllowsValidAction(t *testing.T) {
	c := New()
	action := ProposedAction{
		Description:           "Add request caching to the provider runtime",
		FilesToModify:         []string{"internal/llm/client.go"},
		FilesToCreate:         []string{"internal/llm/cache.go"},
		EstimatedLinesChanged: 120,
	}
	if v := c.Validate(action); v != nil {
		t.Errorf("expected clean validation, got %+v", v)
	}
	if s := c.Score(action); s != 1.0 {
		t.Errorf("score = %f, want 1.0", s)
	}
}

// S1: editing a protected path is a corrigibility violation with score 0.
func TestBlocksProtectedPath(t *testing.T) {
	c := New()
	action := ProposedAction{
		Description:           "Improve something",
		FilesToModify:         []string{"internal/constitution/constitution.go"},
		EstimatedLinesChanged: 10,
	}
	v := c.Validate(action)
	if v == nil {
		t.Fatal("expected violation")
	}
	if v.Priority != Corrigibility {
		t.Errorf("priority = %v, want Corrigibility", v.Priority)
	}
	if s := c.Score(action); s != 0.0 {
		t.Errorf("score = %f, want 0.0", s)
	}
}

func TestBlocksMonitoringDisable(t *testing.T) {
	c := New()
	v := c.Validate(ProposedAction{Description: "Speed things up and Disable Logging in hot path"})
	if v == nil || v.Priority != Corrigibility || v.Name != "disable_monitoring" {
		t.Errorf("got %+v", v)
	}
}

func TestBlocksDangerPattern(t *testing.T) {
	c := New()
	v := c.Validate(ProposedAction{
		Description:   "Clean up with rm -rf temp/",
		FilesToDelete: []string{"temp/file.go"},
	})
	if v == nil || v.Priority != Safety {
		t.Errorf("got %+v", v)
	}
}

func TestBlocksMassDeletion(t *testing.T) {
	c := New()
	v := c.Validate(ProposedAction{
		Description:   "Remove legacy helpers",
		FilesToDelete: []string{"a.go", "b.go", "c.go", "d.go", "e.go", "f.go"},
	})
	if v == nil || v.Priority != Safety || v.Name != "mass_deletion" {
		t.Errorf("got %+v", v)
	}
}

func TestBlocksTooManyFiles(t *testing.T) {
	c := New()
	files := make([]string, 11)
	for i := range files {
		files[i] = strings.Repeat("x", i+1) + ".go"
	}
	v := c.Validate(ProposedAction{
		Description:           "Refactor everything",
		FilesToModify:         files,
		EstimatedLinesChanged: 100,
	})
	if v == nil || v.Priority != LowImpact || v.Name != "too_many_files" {
		t.Errorf("got %+v", v)
	}
}

func TestBlocksTooManyLines(t *testing.T) {
	c := New()
	v := c.Validate(ProposedAction{
		Description:           "One huge change",
		FilesToModify:         []string{"main.go"},
		EstimatedLinesChanged: 501,
	})
	if v == nil || v.Priority != LowImpact || v.Name != "too_many_lines" {
		t.Errorf("got %+v", v)
	}
}

func TestBlocksEmptyDescription(t *testing.T) {
	c := New()
	v := c.Validate(ProposedAction{Description: "   "})
	if v == nil || v.Priority != EudaimonicTask {
		t.Errorf("got %+v", v)
	}
}

func TestBlocksTrivialLargeChange(t *testing.T) {
	c := New()
	v := c.Validate(ProposedAction{
		Description:           "Fix typo in comment",
		FilesToModify:         []string{"doc.go"},
		EstimatedLinesChanged: 200,
	})
	if v == nil || v.Priority != EudaimonicTask || v.Name != "trivial_large_change" {
		t.Errorf("got %+v", v)
	}
	// The same claim with a small diff is fine.
	if v := c.Validate(ProposedAction{
		Description:           "Fix typo in comment",
		FilesToModify:         []string{"doc.go"},
		EstimatedLinesChanged: 2,
	}); v != nil {
		t.Errorf("small trivial change should pass, got %+v", v)
	}
}

// Invariant 4: when an action violates several levels at once, the returned
// violation carries the minimum numeric priority.
func TestLexicographicPrecedence(t *testing.T) {
	c := New()
	files := make([]string, 12)
	for i := range files {
		files[i] = "pkg/file.go"
	}
	// Hits P2 (danger pattern), P3 (too many files, too many lines) and the
	// P1 protected path at the same time.
	action := ProposedAction{
		Description:           "Clean with rm -rf and rewrite everything",
		FilesToModify:         append(files, "internal/constitution/telos.go"),
		EstimatedLinesChanged: 10_000,
	}
	v := c.Validate(action)
	if v == nil {
		t.Fatal("expected violation")
	}
	if v.Priority != Corrigibility {
		t.Errorf("priority = %v, want the minimum (Corrigibility)", v.Priority)
	}
}

// Re-validating an unmodified action returns the same outcome.
func TestValidateDeterministic(t *testing.T) {
	c := New()
	action := ProposedAction{
		Description:           "Clean with rm -rf",
		EstimatedLinesChanged: 1,
	}
	first := c.Validate(action)
	for i := 0; i < 5; i++ {
		v := c.Validate(action)
		if v == nil || v.Priority != first.Priority || v.Name != first.Name {
			t.Fatalf("validation not deterministic: %+v vs %+v", first, v)
		}
	}
}

func TestTelosResearchPrompt(t *testing.T) {
	telos := DefaultTelos()
	prompt := telos.ResearchPrompt("a small Go service")
	for _, want := range []string{telos.Purpose, "a small Go service", "character_and_virtue"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
