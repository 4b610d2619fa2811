package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/neuromance/neuromance-go/internal/domain"
)

type stubTool struct {
	name         string
	autoApproved bool
	lastArgs     json.RawMessage
	result       string
	err          error
}

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "stub" }
func (s *stubTool) Parameters() json.RawMessage  { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) IsAutoApproved() bool         { return s.autoApproved }
func (s *stubTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	s.lastArgs = args
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func TestCoerceArguments_Table(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", nil, `{}`},
		{"single valid json", []string{`{"location":"SF"}`}, `{"location":"SF"}`},
		{"single invalid json", []string{"not json"}, `"not json"`},
		{"multiple", []string{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceArguments(tt.in)
			if err != nil {
				t.Fatalf("CoerceArguments: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	_, err := exec.Execute(context.Background(), domain.NewToolCall("call-1", "missing", nil))
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if domain.CodeOf(err) != domain.ErrCodeToolUnknown {
		t.Fatalf("expected ErrCodeToolUnknown, got %v", domain.CodeOf(err))
	}
}

func TestExecutor_Execute(t *testing.T) {
	tool := &stubTool{name: "get_weather", result: "72F"}
	reg := NewRegistry()
	reg.Register(tool)
	exec := NewExecutor(reg)

	result, err := exec.Execute(context.Background(), domain.NewToolCall("call-1", "get_weather", []string{`{"location":"SF"}`}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "72F" {
		t.Fatalf("got %q", result)
	}
	if string(tool.lastArgs) != `{"location":"SF"}` {
		t.Fatalf("unexpected coerced args: %s", tool.lastArgs)
	}
}

func TestExecutor_ExecuteFailureWraps(t *testing.T) {
	tool := &stubTool{name: "flaky", err: errors.New("boom")}
	reg := NewRegistry()
	reg.Register(tool)
	exec := NewExecutor(reg)

	_, err := exec.Execute(context.Background(), domain.NewToolCall("call-1", "flaky", nil))
	if err == nil {
		t.Fatal("expected error")
	}
	var toolErr *domain.ToolExecutionError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected *domain.ToolExecutionError, got %T", err)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	first := &stubTool{name: "dup", result: "first"}
	second := &stubTool{name: "dup", result: "second"}
	reg.Register(first)
	reg.Register(second)

	got, ok := reg.Get("dup")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if got.(*stubTool).result != "second" {
		t.Fatal("expected later registration to replace the earlier one")
	}
}
