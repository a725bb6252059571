package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"codesmith/internal/logging"
)

// Registry holds available tools and provides lookup. Thread-safe; supports
// registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	logging.ToolsDebug("registered tool %s", tool.Name)
	return nil
}

// MustRegister registers a tool and panics on error. For static
// registration at construction time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Filter returns a new registry containing only the allowed names. Unknown
// names are ignored.
func (r *Registry) Filter(allowed []string) *Registry {
	allowSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowSet[a] = true
	}

	out := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, tool := range r.tools {
		if allowSet[name] {
			out.tools[name] = tool
		}
	}
	return out
}

// Execute looks up, validates arguments, and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	checked, err := tool.CheckArgs(args)
	if err != nil {
		return "", err
	}
	logging.Tools("executing %s", name)
	return tool.Execute(ctx, checked)
}

// Specs renders every tool as a provider tool spec (name, description,
// schema).
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, ToolSpec{Name: t.Name, Description: t.Description, Schema: t.Schema()})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ToolSpec is the provider-facing description of a tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}
