package tools

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const maxToolOutput = 64 * 1024

func clip(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "\n... (output truncated)"
	}
	return s
}

// resolveWorkspacePath joins a model-supplied path with the workspace root
// and rejects escapes.
func resolveWorkspacePath(workspace, path string) (string, error) {
	full := filepath.Join(workspace, path)
	rel, err := filepath.Rel(workspace, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return full, nil
}

// Builtin registers the full tool set rooted at the workspace directory.
// Phases narrow it with Registry.Filter.
func Builtin(workspace string) *Registry {
	r := NewRegistry()

	r.MustRegister(&Tool{
		Name:        "read",
		Description: "Read a file from the workspace",
		Params: []Param{
			{Name: "path", Description: "Workspace-relative file path", Type: TypeString, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			full, err := resolveWorkspacePath(workspace, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			return clip(string(data)), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "grep",
		Description: "Search workspace files for a regular expression",
		Params: []Param{
			{Name: "pattern", Description: "Regular expression", Type: TypeString, Required: true},
			{Name: "path", Description: "Subdirectory to search", Type: TypeString, Default: "."},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := args["pattern"].(string)
			sub, _ := args["path"].(string)
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid pattern: %w", err)
			}
			root, err := resolveWorkspacePath(workspace, sub)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if d.Name() == ".git" {
						return filepath.SkipDir
					}
					return nil
				}
				data, err := os.ReadFile(path)
				if err != nil || bytes.IndexByte(data, 0) >= 0 {
					return nil // unreadable or binary
				}
				rel, _ := filepath.Rel(workspace, path)
				for i, line := range strings.Split(string(data), "\n") {
					if re.MatchString(line) {
						fmt.Fprintf(&b, "%s:%d: %s\n", rel, i+1, strings.TrimSpace(line))
					}
				}
				return nil
			})
			if err != nil {
				return "", err
			}
			if b.Len() == 0 {
				return "no matches", nil
			}
			return clip(b.String()), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "glob",
		Description: "List workspace files matching a glob pattern",
		Params: []Param{
			{Name: "pattern", Description: "Glob pattern matched against relative paths", Type: TypeString, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := args["pattern"].(string)
			var matches []string
			err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if d.Name() == ".git" {
						return filepath.SkipDir
					}
					return nil
				}
				rel, _ := filepath.Rel(workspace, path)
				ok, _ := filepath.Match(pattern, rel)
				if !ok {
					// Also match against the basename for patterns like *.go.
					ok, _ = filepath.Match(pattern, filepath.Base(rel))
				}
				if ok {
					matches = append(matches, rel)
				}
				return nil
			})
			if err != nil {
				return "", err
			}
			sort.Strings(matches)
			if len(matches) == 0 {
				return "no matches", nil
			}
			return clip(strings.Join(matches, "\n")), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "find_tests",
		Description: "List test files in the workspace",
		Params: []Param{
			{Name: "path", Description: "Subdirectory to search", Type: TypeString, Default: "."},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			sub, _ := args["path"].(string)
			root, err := resolveWorkspacePath(workspace, sub)
			if err != nil {
				return "", err
			}
			var tests []string
			filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() && d.Name() == ".git" {
					return filepath.SkipDir
				}
				if !d.IsDir() && strings.HasSuffix(d.Name(), "_test.go") {
					rel, _ := filepath.Rel(workspace, path)
					tests = append(tests, rel)
				}
				return nil
			})
			sort.Strings(tests)
			if len(tests) == 0 {
				return "no test files found", nil
			}
			return clip(strings.Join(tests, "\n")), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "git_history",
		Description: "Show recent commit history",
		Params: []Param{
			{Name: "path", Description: "Restrict history to a path", Type: TypeString},
			{Name: "limit", Description: "Number of commits", Type: TypeInteger, Default: 10},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			limit := intArg(args, "limit", 10)
			cmdArgs := []string{"log", fmt.Sprintf("-%d", limit), "--oneline"}
			if p, _ := args["path"].(string); p != "" {
				cmdArgs = append(cmdArgs, "--", p)
			}
			return runCommand(ctx, workspace, 30*time.Second, "git", cmdArgs...)
		},
	})

	r.MustRegister(&Tool{
		Name:        "compile_check",
		Description: "Compile the workspace and report errors",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			out, err := runCommand(ctx, workspace, 2*time.Minute, "go", "build", "./...")
			if err != nil {
				return clip(out), nil // compile errors are output, not tool failure
			}
			if strings.TrimSpace(out) == "" {
				return "compilation OK", nil
			}
			return clip(out), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "run_tests",
		Description: "Run the workspace test suite",
		Params: []Param{
			{Name: "pattern", Description: "Restrict to tests matching this name", Type: TypeString},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			cmdArgs := []string{"test", "./..."}
			if p, _ := args["pattern"].(string); p != "" {
				cmdArgs = []string{"test", "-run", p, "./..."}
			}
			out, err := runCommand(ctx, workspace, 5*time.Minute, "go", cmdArgs...)
			if err != nil {
				return clip(out), nil
			}
			return clip(out), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "write",
		Description: "Write a file in the workspace, creating directories as needed",
		Params: []Param{
			{Name: "path", Description: "Workspace-relative file path", Type: TypeString, Required: true},
			{Name: "content", Description: "Full file content", Type: TypeCode, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			full, err := resolveWorkspacePath(workspace, path)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
				return "", fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.WriteFile(full, []byte(content), 0644); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", path, err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "edit",
		Description: "Replace an exact string in a workspace file",
		Params: []Param{
			{Name: "path", Description: "Workspace-relative file path", Type: TypeString, Required: true},
			{Name: "old", Description: "Exact text to replace", Type: TypeCode, Required: true},
			{Name: "new", Description: "Replacement text", Type: TypeCode, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			oldText, _ := args["old"].(string)
			newText, _ := args["new"].(string)
			full, err := resolveWorkspacePath(workspace, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			content := string(data)
			if !strings.Contains(content, oldText) {
				return "", fmt.Errorf("text to replace not found in %s", path)
			}
			content = strings.Replace(content, oldText, newText, 1)
			if err := os.WriteFile(full, []byte(content), 0644); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", path, err)
			}
			return fmt.Sprintf("edited %s", path), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "bash",
		Description: "Run a shell command in the workspace",
		Params: []Param{
			{Name: "command", Description: "Command line to execute", Type: TypeString, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			return runCommand(ctx, workspace, 2*time.Minute, "sh", "-c", command)
		},
	})

	todos := &todoList{}
	r.MustRegister(&Tool{
		Name:        "todo_write",
		Description: "Record or update the running todo list",
		Params: []Param{
			{Name: "content", Description: "Full todo list, one item per line", Type: TypeString, Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			content, _ := args["content"].(string)
			todos.set(content)
			return fmt.Sprintf("recorded %d todo items", todos.count()), nil
		},
	})

	registerWebTools(r)
	return r
}

func intArg(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func runCommand(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s failed: %w (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

type todoList struct {
	content string
}

func (t *todoList) set(content string) { t.content = content }

func (t *todoList) count() int {
	n := 0
	for _, line := range strings.Split(t.content, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
