package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"pitchbook/internal/adapters/ai"
	"pitchbook/internal/metrics"
	"pitchbook/pkg/errors"
)

// Registry stores tools by name and bridges them to the model's
// function-calling interface.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the names of all registered tools, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions exports the named tools as model function definitions. Names
// not present in the registry are skipped.
func (r *Registry) Definitions(names ...string) []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, ai.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Executor returns the dispatch function handed to the model client. Tool
// failures are returned as errors and surfaced as ordinary participant
// failures.
func (r *Registry) Executor() ai.ToolExecutor {
	return func(ctx context.Context, name, argsJSON string) (string, error) {
		t, ok := r.Get(name)
		if !ok {
			return "", errors.Wrapf(errors.ErrToolFailed, "unknown tool %q", name)
		}

		args := map[string]interface{}{}
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", errors.Wrapf(errors.ErrToolFailed, "bad arguments for %q: %v", name, err)
			}
		}

		start := time.Now()
		out, err := t.Execute(ctx, args)
		if err != nil {
			metrics.ObserveTool(name, "error", time.Since(start))
			return "", err
		}

		metrics.ObserveTool(name, "success", time.Since(start))
		return out, nil
	}
}
