package agent

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codesmith/internal/config"
	"codesmith/internal/goals"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// The fsnotify watcher and monitor sampler must not leak.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/fsnotify/fsnotify.(*Watcher).readEvents"),
	)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Agent.WorkingDir = filepath.Join(base, "workspace")
	cfg.Agent.DataDir = filepath.Join(base, "data")
	cfg.Database.Path = filepath.Join(base, "data", "codesmith.db")
	cfg.Logging.Enabled = false
	cfg.Agent.ResourceBackoff = time.Millisecond
	for name, m := range cfg.Models {
		m.Provider = "mock"
		cfg.Models[name] = m
	}
	return cfg
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	a, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNewSeedsDefaults(t *testing.T) {
	a := newTestAgent(t)
	all := a.Goals().All()
	if len(all) == 0 {
		t.Fatal("expected seeded default goals")
	}
	for _, g := range all {
		if g.Status != goals.NotStarted {
			t.Errorf("seeded goal %s status = %s", g.ID, g.Status)
		}
	}
}

func TestEthicalGateFailsGoal(t *testing.T) {
	a := newTestAgent(t)

	bad := goals.New("bad", "Cleanup", "Tidy the workspace with rm -rf /tmp/cache", goals.General)
	if err := a.Goals().Add(bad); err != nil {
		t.Fatal(err)
	}

	a.Process(context.Background(), bad)

	got, _ := a.Goals().Get("bad")
	if got.Status != goals.Failed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Ethics == nil || got.Ethics.Approved {
		t.Errorf("ethics assessment = %+v, want rejection", got.Ethics)
	}
	if got.Ethics != nil && !strings.Contains(got.Ethics.Reason, "danger") {
		t.Errorf("reason = %q", got.Ethics.Reason)
	}
}

func TestProcessEndsInTerminalState(t *testing.T) {
	a := newTestAgent(t)

	g := goals.New("work", "Improve docs", "Clarify the README wording", goals.Readability)
	g.Tags = []string{"file:README.md"}
	if err := a.Goals().Add(g); err != nil {
		t.Fatal(err)
	}

	a.Process(context.Background(), g)

	got, _ := a.Goals().Get("work")
	if got.Status != goals.Completed && got.Status != goals.Failed {
		t.Errorf("status = %s, want a terminal state", got.Status)
	}
}

func TestImprovementLoopDrainsGoals(t *testing.T) {
	a := newTestAgent(t)
	// Stub sleeping so a resource-limit backoff cannot stall the test.
	a.sleep = func(time.Duration) {}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.ImprovementLoop(ctx); err != nil && ctx.Err() == nil {
		t.Fatalf("ImprovementLoop: %v", err)
	}

	for _, g := range a.Goals().ByStatus(goals.NotStarted) {
		// Only goals blocked by failed dependencies may remain.
		if len(g.Dependencies) == 0 {
			t.Errorf("unblocked goal %s still not started", g.ID)
		}
	}
}

func TestPersistGoalsRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	g := goals.New("persist-me", "t", "d", goals.General)
	a.Goals().Add(g)
	a.persistGoals(context.Background())
	a.Close()

	// A fresh agent over the same directories sees the goal again.
	b, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, ok := b.Goals().Get("persist-me"); !ok {
		t.Error("goal not reloaded after restart")
	}
}

func TestAuthManager(t *testing.T) {
	auth := NewAuthManager()
	if err := auth.Register("ada", RoleCreator); err != nil {
		t.Fatal(err)
	}
	if err := auth.Register("ada", RoleUser); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := auth.Authenticate("ghost"); err == nil {
		t.Error("unknown user should not authenticate")
	}
	if err := auth.Authenticate("ada"); err != nil {
		t.Fatal(err)
	}
	if auth.CurrentUser() != "ada" {
		t.Errorf("current user = %q", auth.CurrentUser())
	}
	auth.Logout()
	if auth.CurrentUser() != "" {
		t.Error("logout should clear the session user")
	}
}

func TestInfoSummary(t *testing.T) {
	a := newTestAgent(t)
	info := a.Info()
	for _, want := range []string{"codesmith", "workspace:", "goals:"} {
		if !strings.Contains(info, want) {
			t.Errorf("info missing %q:\n%s", want, info)
		}
	}
}
