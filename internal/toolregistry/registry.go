// Package toolregistry holds the Tool contract, a concurrent registry of
// named tools, and the executor that resolves a domain.ToolCall to a
// registered Tool and coerces its arguments (spec.md §4.1).
package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is the contract every executable tool must satisfy.
type Tool interface {
	// Name is the tool's unique identifier for registration and lookup.
	Name() string
	// Description is shown to the model to help it decide when to call the tool.
	Description() string
	// Parameters returns the tool's JSON Schema for its arguments.
	Parameters() json.RawMessage
	// Execute runs the tool against a single JSON argument value (the
	// result of argument coercion, never the raw provider fragments).
	Execute(ctx context.Context, args json.RawMessage) (string, error)
	// IsAutoApproved reports whether this tool may run without going
	// through the chat loop's approval callback.
	IsAutoApproved() bool
}

// Registry is a concurrent name -> Tool map. Registering a name that
// already exists replaces the prior entry (spec.md §4.1).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// ValidateSchema compiles a tool's declared JSON Schema and reports an error
// if it is malformed. Register does not call it.
func ValidateSchema(schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("toolregistry: add schema resource: %w", err)
	}
	_, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("toolregistry: invalid tool schema: %w", err)
	}
	return nil
}
