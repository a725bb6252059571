// Package llmlog records the raw traffic between the agent and LM providers.
// One log file is created per process launch; files beyond the configured
// keep-count are deleted oldest-first.
package llmlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options configures the transcript logger.
type Options struct {
	Enabled            bool
	Dir                string
	FilesToKeep        int
	IncludeFullPrompts bool
	ConsoleLogging     bool
}

// Logger writes request/response transcripts to a single per-process file.
type Logger struct {
	opts Options

	mu   sync.Mutex
	file *os.File
	path string
}

// New creates the logger, opening a fresh timestamped file when enabled.
func New(opts Options) (*Logger, error) {
	l := &Logger{opts: opts}
	if !opts.Enabled {
		return l, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create llm log directory: %w", err)
	}

	name := fmt.Sprintf("llm_log_%s.txt", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(opts.Dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm log file: %w", err)
	}
	l.file = file
	l.path = path

	if err := l.pruneOld(); err != nil {
		// Pruning failure is not fatal to logging itself.
		fmt.Fprintf(os.Stderr, "[llmlog] Warning: could not prune old logs: %v\n", err)
	}
	return l, nil
}

// Path returns the current log file path, or empty when disabled.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogRequest records an outgoing request.
func (l *Logger) LogRequest(provider, model, prompt string) {
	if l == nil || !l.opts.Enabled {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n===== REQUEST: %s %s =====\n", provider, model)
	fmt.Fprintf(&b, "TIMESTAMP: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05.000"))
	if l.opts.IncludeFullPrompts {
		fmt.Fprintf(&b, "PROMPT:\n%s\n", prompt)
	} else {
		fmt.Fprintf(&b, "PROMPT SUMMARY: %s\n", summarize(prompt))
	}
	l.write(b.String())
}

// LogResponse records a completed response with its duration.
func (l *Logger) LogResponse(provider, model, response string, duration time.Duration) {
	if l == nil || !l.opts.Enabled {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n===== RESPONSE: %s %s =====\n", provider, model)
	fmt.Fprintf(&b, "TIMESTAMP: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, "DURATION: %s\n", duration)
	if l.opts.IncludeFullPrompts {
		fmt.Fprintf(&b, "RESPONSE:\n%s\n", response)
	} else {
		fmt.Fprintf(&b, "RESPONSE SUMMARY: %s\n", summarize(response))
	}
	l.write(b.String())
}

// LogError records a failed call.
func (l *Logger) LogError(provider, model string, err error, duration time.Duration) {
	if l == nil || !l.opts.Enabled {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n===== RESPONSE: %s %s =====\n", provider, model)
	fmt.Fprintf(&b, "TIMESTAMP: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, "DURATION: %s\n", duration)
	fmt.Fprintf(&b, "ERROR: %v\n", err)
	l.write(b.String())
}

func (l *Logger) write(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.WriteString(entry)
	}
	if l.opts.ConsoleLogging {
		fmt.Print(entry)
	}
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// pruneOld deletes log files beyond FilesToKeep, oldest first.
func (l *Logger) pruneOld() error {
	if l.opts.FilesToKeep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(l.opts.Dir)
	if err != nil {
		return err
	}

	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "llm_log_") && strings.HasSuffix(e.Name(), ".txt") {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) <= l.opts.FilesToKeep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-l.opts.FilesToKeep] {
		if err := os.Remove(filepath.Join(l.opts.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func summarize(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
