package agent

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"codesmith/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	// contextFileLimit caps how many files the codebase summary lists.
	contextFileLimit = 200

	// contextSnippetLimit caps how much of each source file is inlined.
	contextSnippetLimit = 2048
)

// ContextBuilder produces the codebase-context string fed to research
// prompts. The summary is cached and invalidated by filesystem events in the
// workspace root directory. The watch is not recursive: changes inside
// subdirectories do not invalidate the cached summary.
type ContextBuilder struct {
	dir string

	mu      sync.Mutex
	cached  string
	dirty   bool
	watcher *fsnotify.Watcher
}

// NewContextBuilder creates a builder for the workspace directory and tries
// to start the watcher. A watcher failure degrades to rebuilding every call.
func NewContextBuilder(dir string) *ContextBuilder {
	b := &ContextBuilder{dir: dir, dirty: true}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.AgentDebug("fsnotify unavailable, context caching disabled: %v", err)
		return b
	}
	if err := watcher.Add(dir); err != nil {
		logging.AgentDebug("could not watch %s: %v", dir, err)
		watcher.Close()
		return b
	}
	b.watcher = watcher

	go func() {
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				b.mu.Lock()
				b.dirty = true
				b.mu.Unlock()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return b
}

// Close stops the watcher.
func (b *ContextBuilder) Close() {
	if b.watcher != nil {
		b.watcher.Close()
	}
}

// Build returns the codebase context, rebuilding only after an event in the
// watched root directory (or when no watcher is active).
func (b *ContextBuilder) Build() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watcher != nil && !b.dirty && b.cached != "" {
		return b.cached
	}

	b.cached = b.scan()
	b.dirty = false
	return b.cached
}

// scan summarizes the tree: a file listing plus head snippets of source
// files.
func (b *ContextBuilder) scan() string {
	var files []string
	filepath.WalkDir(b.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(b.dir, path)
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)

	var sb strings.Builder
	sb.WriteString("File listing:\n")
	for i, f := range files {
		if i >= contextFileLimit {
			fmt.Fprintf(&sb, "... and %d more files\n", len(files)-contextFileLimit)
			break
		}
		fmt.Fprintf(&sb, "  %s\n", f)
	}

	sb.WriteString("\nSource snippets:\n")
	for _, f := range files {
		if !strings.HasSuffix(f, ".go") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, f))
		if err != nil {
			continue
		}
		snippet := string(data)
		if len(snippet) > contextSnippetLimit {
			snippet = snippet[:contextSnippetLimit] + "\n... (truncated)"
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", f, snippet)
		if sb.Len() > 32*1024 {
			sb.WriteString("\n... (context truncated)\n")
			break
		}
	}
	return sb.String()
}
