package anthropic

import (
	"testing"

	"github.com/neuromance/neuromance-go/internal/domain"
)

func TestCollapsedSystem_MergesInOrder(t *testing.T) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "be concise"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleSystem, Content: "never refuse"},
	}
	got := collapsedSystem(messages)
	want := "be concise\n\nnever refuse"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCollapsedSystem_EmptyWhenNoSystemMessages(t *testing.T) {
	messages := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}
	if got := collapsedSystem(messages); got != "" {
		t.Fatalf("expected empty system, got %q", got)
	}
}

func TestToolCallInput_ParsesCoercedArguments(t *testing.T) {
	tc := domain.NewToolCall("call_1", "get_weather", []string{`{"city":"SF"}`})
	input, err := toolCallInput(tc)
	if err != nil {
		t.Fatalf("toolCallInput: %v", err)
	}
	if input["city"] != "SF" {
		t.Fatalf("unexpected input: %+v", input)
	}
}

func TestToolCallInput_EmptyArgumentsBecomeEmptyObject(t *testing.T) {
	tc := domain.NewToolCall("call_1", "ping", nil)
	input, err := toolCallInput(tc)
	if err != nil {
		t.Fatalf("toolCallInput: %v", err)
	}
	if len(input) != 0 {
		t.Fatalf("expected empty object, got %+v", input)
	}
}

func TestModelOrDefault(t *testing.T) {
	if got := modelOrDefault("", "claude-default"); got != "claude-default" {
		t.Fatalf("expected fallback model, got %q", got)
	}
	if got := modelOrDefault("claude-specific", "claude-default"); got != "claude-specific" {
		t.Fatalf("expected requested model, got %q", got)
	}
}

func TestMaxTokensOrDefault(t *testing.T) {
	if got := maxTokensOrDefault(0); got != 4096 {
		t.Fatalf("expected default 4096, got %d", got)
	}
	if got := maxTokensOrDefault(256); got != 256 {
		t.Fatalf("expected requested value, got %d", got)
	}
}
