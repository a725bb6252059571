package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledLoggingWritesNothing(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Options{Enabled: false, Dir: dir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	Get(CategorySwarm).Info("should not appear")
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("disabled logging created files: %v", entries)
	}
}

func TestCategoryFileCreatedAndWritten(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Options{Enabled: true, Dir: dir, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	Swarm("cycle %d started", 7)
	SwarmDebug("detail")
	Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var swarmFile string
	for _, e := range entries {
		if strings.Contains(e.Name(), "swarm") {
			swarmFile = e.Name()
		}
	}
	if swarmFile == "" {
		t.Fatalf("no swarm log file in %v", entries)
	}
	data, _ := os.ReadFile(filepath.Join(dir, swarmFile))
	if !strings.Contains(string(data), "cycle 7 started") {
		t.Errorf("log content: %s", data)
	}
	if !strings.Contains(string(data), "[DEBUG] detail") {
		t.Errorf("debug line missing at debug level: %s", data)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Options{Enabled: true, Dir: dir, Level: "info"}); err != nil {
		t.Fatal(err)
	}
	defer Close()

	GoalsDebug("hidden")
	Goals("visible")
	Close()

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
		if strings.Contains(string(data), "hidden") {
			t.Error("debug line written at info level")
		}
	}
}

func TestCategoryToggle(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(Options{
		Enabled:    true,
		Dir:        dir,
		Level:      "info",
		Categories: map[string]bool{"git": false},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer Close()

	if IsCategoryEnabled(CategoryGit) {
		t.Error("git category should be disabled")
	}
	if !IsCategoryEnabled(CategorySwarm) {
		t.Error("unlisted categories default to enabled")
	}
}
