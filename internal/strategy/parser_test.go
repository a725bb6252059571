package strategy

import "testing"

func TestParseFenceWithPathLabel(t *testing.T) {
	response := "Here is the change:\n\n```go:internal/util/math.go\npackage util\n\nfunc Add(a, b int) int { return a + b }\n```\n"
	changes := ParseFileChanges(response, "")
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Path != "internal/util/math.go" {
		t.Errorf("path = %q", changes[0].Path)
	}
	if changes[0].Content != "package util\n\nfunc Add(a, b int) int { return a + b }\n" {
		t.Errorf("content = %q", changes[0].Content)
	}
}

func TestParseFileCommentHeader(t *testing.T) {
	response := "```go\n// file: cmd/main.go\npackage main\n```"
	changes := ParseFileChanges(response, "")
	if len(changes) != 1 || changes[0].Path != "cmd/main.go" {
		t.Fatalf("changes = %+v", changes)
	}
	if changes[0].Content != "package main\n" {
		t.Errorf("header comment should be stripped: %q", changes[0].Content)
	}
}

func TestParseFallbackToDefaultPath(t *testing.T) {
	response := "```go\npackage x\n```"
	changes := ParseFileChanges(response, "pkg/x.go")
	if len(changes) != 1 || changes[0].Path != "pkg/x.go" {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestParseDropsUnresolvableBlocks(t *testing.T) {
	changes := ParseFileChanges("```go\npackage x\n```", "")
	if len(changes) != 0 {
		t.Errorf("block with no path should be dropped: %+v", changes)
	}
}

func TestParseMultipleBlocks(t *testing.T) {
	response := "```go:a.go\npackage a\n```\nand\n```go:b.go\npackage b\n```"
	changes := ParseFileChanges(response, "")
	if len(changes) != 2 || changes[0].Path != "a.go" || changes[1].Path != "b.go" {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestParseIgnoresProse(t *testing.T) {
	if changes := ParseFileChanges("no code here at all", "x.go"); len(changes) != 0 {
		t.Errorf("expected none, got %+v", changes)
	}
}
