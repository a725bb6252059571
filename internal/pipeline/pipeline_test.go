package pipeline

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// echoStage wires a stage to a fixed shell command.
func echoRunner(t *testing.T, stage Stage, script string) *Runner {
	requireShell(t)
	return NewRunner(t.TempDir()).
		WithStages(stage).
		WithCommand(stage, "sh", "-c", script)
}

func TestStagePassAndMetrics(t *testing.T) {
	r := echoRunner(t, StageUnitTests, `echo "test result: ok. 42 passed; 0 failed;"`)
	res, err := r.Run(context.Background(), "improvement/test/goal-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, output: %s", res.Output)
	}
	sr := res.Stages[0]
	if sr.Metrics == nil {
		t.Fatal("metrics not extracted")
	}
	if sr.Metrics.TestsRun != 42 || sr.Metrics.TestsPassed != 42 || sr.Metrics.TestsFailed != 0 {
		t.Errorf("metrics = %+v", sr.Metrics)
	}
	if sr.Branch != "improvement/test/goal-1" {
		t.Errorf("branch not tagged: %q", sr.Branch)
	}
}

// A zero exit code with a FAILED marker in test output still fails the stage.
func TestFailureMarkerOverridesExitCode(t *testing.T) {
	r := echoRunner(t, StageUnitTests, `echo "test result: FAILED. 1 passed; 2 failed;"; exit 0`)
	res, err := r.Run(context.Background(), "b")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Error("expected failure despite exit 0")
	}
	sr := res.Stages[0]
	if sr.Metrics == nil || sr.Metrics.TestsFailed != 2 {
		t.Errorf("metrics = %+v", sr.Metrics)
	}
}

// The marker only applies to test stages.
func TestMarkerIgnoredForNonTestStages(t *testing.T) {
	r := echoRunner(t, StageLinting, `echo "test result: FAILED"; exit 0`)
	res, _ := r.Run(context.Background(), "b")
	if !res.Success {
		t.Error("linting stage should not honour the test failure marker")
	}
}

func TestStopsAtFirstFailure(t *testing.T) {
	requireShell(t)
	r := NewRunner(t.TempDir()).
		WithStages(StageFormatting, StageLinting, StageCompilation).
		WithCommand(StageFormatting, "sh", "-c", "true").
		WithCommand(StageLinting, "sh", "-c", "echo broken >&2; exit 1").
		WithCommand(StageCompilation, "sh", "-c", "true")

	res, _ := r.Run(context.Background(), "b")
	if res.Success {
		t.Error("expected failure")
	}
	if len(res.Stages) != 2 {
		t.Errorf("expected to stop after the failing stage, ran %d stages", len(res.Stages))
	}
}

func TestContinueOnFailure(t *testing.T) {
	requireShell(t)
	r := NewRunner(t.TempDir()).
		WithStages(StageFormatting, StageLinting, StageCompilation).
		WithCommand(StageFormatting, "sh", "-c", "true").
		WithCommand(StageLinting, "sh", "-c", "exit 1").
		WithCommand(StageCompilation, "sh", "-c", "true").
		ContinueOnFailure(true)

	res, _ := r.Run(context.Background(), "b")
	if res.Success {
		t.Error("aggregate success must be the conjunction of stages")
	}
	if len(res.Stages) != 3 {
		t.Errorf("expected all 3 stages to run, got %d", len(res.Stages))
	}
}

func TestGofmtListOutputFails(t *testing.T) {
	r := echoRunner(t, StageFormatting, `echo "main.go"`)
	res, _ := r.Run(context.Background(), "b")
	if res.Success {
		t.Error("files listed by the formatter should fail the stage")
	}
}

func TestStageTimeout(t *testing.T) {
	requireShell(t)
	r := NewRunner(t.TempDir()).
		WithStages(StageUnitTests).
		WithCommand(StageUnitTests, "sh", "-c", "sleep 5").
		WithTimeout(100 * time.Millisecond)

	start := time.Now()
	res, _ := r.Run(context.Background(), "b")
	if res.Success {
		t.Error("expected timeout failure")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout not enforced")
	}
}

func TestErrorExtraction(t *testing.T) {
	r := echoRunner(t, StageCompilation, `echo "internal/llm/types.go:42:7: undefined: frobnicate"; exit 1`)
	res, _ := r.Run(context.Background(), "b")
	sr := res.Stages[0]
	if len(sr.Errors) == 0 {
		t.Fatal("no errors extracted")
	}
	e := sr.Errors[0]
	if e.File != "internal/llm/types.go" || e.Line != 42 {
		t.Errorf("error location = %+v", e)
	}
}

func TestReportContents(t *testing.T) {
	requireShell(t)
	r := NewRunner(t.TempDir()).
		WithStages(StageUnitTests).
		WithCommand(StageUnitTests, "sh", "-c", `echo "test result: ok. 3 passed; 0 failed;"`)

	res, _ := r.Run(context.Background(), "swarm/p-9")
	report := res.Output
	for _, want := range []string{"# Test Pipeline Report", "swarm/p-9", "| unit_tests |", "3/3 passed", "## Stage Output"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestMetricsAcrossMultipleSuites(t *testing.T) {
	m := extractMetrics("test result: ok. 10 passed; 1 failed;\nother noise\ntest result: ok. 5 passed; 0 failed;")
	if m == nil || m.TestsRun != 16 || m.TestsPassed != 15 || m.TestsFailed != 1 {
		t.Errorf("metrics = %+v", m)
	}
}
