package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neuromance/neuromance-go/internal/domain"
)

// Executor resolves domain.ToolCall values against a Registry and runs them.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an Executor backed by registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute resolves call by name, coerces its arguments (spec.md §4.1), and
// runs the tool, returning the tool's result unchanged on success. An
// unregistered name fails with an ErrCodeToolUnknown DomainError; a
// coercion or execution failure is wrapped in a *domain.ToolExecutionError
// the caller can format into a Tool-role message's content (spec.md §4.3
// step 6). Tool calls are never retried by the executor.
func (e *Executor) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	tool, ok := e.registry.Get(call.Function.Name)
	if !ok {
		return "", domain.WrapDomainError(domain.ErrCodeToolUnknown,
			fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Function.Name))
	}

	args, err := CoerceArguments(call.Function.Arguments)
	if err != nil {
		return "", &domain.ToolExecutionError{ToolName: call.Function.Name, Cause: err}
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return "", &domain.ToolExecutionError{ToolName: call.Function.Name, Cause: err}
	}
	return result, nil
}

// IsAutoApproved reports whether name is registered and auto-approved.
// An unregistered tool is never auto-approved; the unknown-tool error
// surfaces later, when Execute is actually attempted.
func (e *Executor) IsAutoApproved(name string) bool {
	tool, ok := e.registry.Get(name)
	return ok && tool.IsAutoApproved()
}

// CoerceArguments implements the argument coercion table from spec.md §4.1
// / §8 property 7:
//
//	[]              -> {}
//	["x"]           -> parsed JSON if x is valid JSON, else the JSON string "x"
//	["a", "b", ...] -> JSON array of strings ["a", "b", ...]
func CoerceArguments(arguments []string) (json.RawMessage, error) {
	switch len(arguments) {
	case 0:
		return json.RawMessage(`{}`), nil
	case 1:
		raw := arguments[0]
		if json.Valid([]byte(raw)) {
			return json.RawMessage(raw), nil
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("toolregistry: encode argument as JSON string: %w", err)
		}
		return encoded, nil
	default:
		encoded, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("toolregistry: encode arguments as JSON array: %w", err)
		}
		return encoded, nil
	}
}
