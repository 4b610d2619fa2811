package domain

import (
	"encoding/json"
	"testing"
)

func TestNewMessage_ToolCallRequiresAssistant(t *testing.T) {
	msg, err := NewMessage("conv-1", RoleUser, "hello")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := msg.WithToolCalls([]ToolCall{NewToolCall("call-1", "get_weather", []string{"{}"})}); err == nil {
		t.Fatal("expected error attaching tool calls to a non-assistant message")
	}

	assistant, err := NewMessage("conv-1", RoleAssistant, "")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := assistant.WithToolCalls([]ToolCall{NewToolCall("call-1", "get_weather", []string{"{}"})}); err != nil {
		t.Fatalf("attaching tool calls to an assistant message should succeed: %v", err)
	}
}

func TestNewToolMessage_RequiresIDAndName(t *testing.T) {
	if _, err := NewToolMessage("conv-1", "", "get_weather", "72F"); err == nil {
		t.Fatal("expected error for empty tool_call_id")
	}
	if _, err := NewToolMessage("conv-1", "call-1", "", "72F"); err == nil {
		t.Fatal("expected error for empty name")
	}
	msg, err := NewToolMessage("conv-1", "call-1", "get_weather", "72F")
	if err != nil {
		t.Fatalf("NewToolMessage: %v", err)
	}
	if msg.Role != RoleTool {
		t.Fatalf("expected role tool, got %q", msg.Role)
	}
}

func TestMessage_RoundTripSerialization(t *testing.T) {
	msg, err := NewMessage("conv-1", RoleAssistant, "hi there")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := msg.WithToolCalls([]ToolCall{NewToolCall("call-1", "search", []string{"{\"q\":\"go\"}"})}); err != nil {
		t.Fatalf("WithToolCalls: %v", err)
	}
	msg.Metadata = map[string]any{"trace_id": "abc"}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var roundTripped Message
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if roundTripped.ID != msg.ID || roundTripped.ConversationID != msg.ConversationID ||
		roundTripped.Content != msg.Content || len(roundTripped.ToolCalls) != 1 ||
		roundTripped.ToolCalls[0].Function.Name != "search" {
		t.Fatalf("round trip mismatch: got %+v, want %+v", roundTripped, *msg)
	}
}
