package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	tool := &Tool{
		Name:        "probe",
		Description: "test tool",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := reg.Get("probe"); got == nil || got.Name != "probe" {
		t.Errorf("Get returned %+v", got)
	}
	if reg.Get("missing") != nil {
		t.Error("Get for missing tool should be nil")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	tool := &Tool{Name: "dup", Execute: func(context.Context, map[string]any) (string, error) { return "", nil }}
	if err := reg.Register(tool); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(tool); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestFilterByAllowList(t *testing.T) {
	reg := Builtin(t.TempDir())
	phase := reg.Filter([]string{"read", "grep", "no_such_tool"})
	if phase.Count() != 2 {
		t.Errorf("filtered registry has %d tools, want 2", phase.Count())
	}
	if phase.Get("write") != nil {
		t.Error("write should be filtered out")
	}
}

func TestRequiredArgEnforced(t *testing.T) {
	reg := Builtin(t.TempDir())
	_, err := reg.Execute(context.Background(), "read", map[string]any{})
	var missing *MissingArgError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingArgError, got %v", err)
	}
	if missing.Param != "path" {
		t.Errorf("missing param = %q", missing.Param)
	}
}

func TestReadWriteEditTools(t *testing.T) {
	ws := t.TempDir()
	reg := Builtin(ws)
	ctx := context.Background()

	if _, err := reg.Execute(ctx, "write", map[string]any{
		"path": "pkg/hello.go", "content": "package pkg\n\nconst Greeting = \"hi\"\n",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := reg.Execute(ctx, "read", map[string]any{"path": "pkg/hello.go"})
	if err != nil || !strings.Contains(out, "Greeting") {
		t.Fatalf("read: %q, %v", out, err)
	}

	if _, err := reg.Execute(ctx, "edit", map[string]any{
		"path": "pkg/hello.go", "old": `"hi"`, "new": `"hello"`,
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(ws, "pkg/hello.go"))
	if !strings.Contains(string(data), `"hello"`) {
		t.Errorf("edit not applied: %s", data)
	}

	if _, err := reg.Execute(ctx, "edit", map[string]any{
		"path": "pkg/hello.go", "old": "not there", "new": "x",
	}); err == nil {
		t.Error("edit of missing text should fail")
	}
}

func TestPathEscapeRejected(t *testing.T) {
	reg := Builtin(t.TempDir())
	_, err := reg.Execute(context.Background(), "read", map[string]any{"path": "../../etc/passwd"})
	if err == nil {
		t.Error("path escape should be rejected")
	}
}

func TestGrepAndFindTests(t *testing.T) {
	ws := t.TempDir()
	os.WriteFile(filepath.Join(ws, "main.go"), []byte("package main\nfunc main() {}\n"), 0644)
	os.WriteFile(filepath.Join(ws, "main_test.go"), []byte("package main\n"), 0644)
	reg := Builtin(ws)
	ctx := context.Background()

	out, err := reg.Execute(ctx, "grep", map[string]any{"pattern": "func main"})
	if err != nil || !strings.Contains(out, "main.go:2") {
		t.Errorf("grep: %q, %v", out, err)
	}

	out, err = reg.Execute(ctx, "find_tests", nil)
	if err != nil || !strings.Contains(out, "main_test.go") {
		t.Errorf("find_tests: %q, %v", out, err)
	}

	out, err = reg.Execute(ctx, "glob", map[string]any{"pattern": "*.go"})
	if err != nil || !strings.Contains(out, "main.go") {
		t.Errorf("glob: %q, %v", out, err)
	}
}

func TestParseLooseCalls(t *testing.T) {
	text := `I will inspect the file first.

{"tool":"read","args":{"path":"main.go"}}

Then search: {"tool":"grep","args":{"pattern":"TODO","path":"internal"}}`

	calls := ParseLooseCalls(text)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Tool != "read" || calls[0].Args["path"] != "main.go" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Tool != "grep" || calls[1].Args["pattern"] != "TODO" {
		t.Errorf("second call = %+v", calls[1])
	}
}

func TestParseLooseCallsArrayArgs(t *testing.T) {
	calls := ParseLooseCalls(`{"tool":"bash","args":["ls","-la"]}`)
	if len(calls) != 1 || calls[0].Args["arg0"] != "ls" {
		t.Errorf("calls = %+v", calls)
	}

	// Indexes past 9 must keep their full decimal form.
	calls = ParseLooseCalls(`{"tool":"bash","args":["a","b","c","d","e","f","g","h","i","j","k","l"]}`)
	if len(calls) != 1 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].Args["arg10"] != "k" || calls[0].Args["arg11"] != "l" {
		t.Errorf("multi-digit arg keys wrong: %+v", calls[0].Args)
	}
	if _, ok := calls[0].Args["arg:"]; ok {
		t.Error("rune-arithmetic key leaked")
	}
}

func TestParseLooseCallsIgnoresInvalid(t *testing.T) {
	if calls := ParseLooseCalls(`{"tool":"broken","args":`); len(calls) != 0 {
		t.Errorf("unbalanced envelope should be ignored, got %+v", calls)
	}
	if calls := ParseLooseCalls("plain text without calls"); len(calls) != 0 {
		t.Errorf("expected none, got %+v", calls)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripFence(tt.in); got != tt.want {
			t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
