package responses

import (
	"testing"

	"github.com/neuromance/neuromance-go/internal/domain"
)

func TestCollapsedInstructions_MergesInOrder(t *testing.T) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "be concise"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleSystem, Content: "never refuse"},
	}
	got := collapsedInstructions(messages)
	want := "be concise\n\nnever refuse"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConvertMessages_ToolMessageWithoutCallIDIsSkipped(t *testing.T) {
	messages := []domain.Message{
		{Role: domain.RoleUser, Content: "what's the weather"},
		{Role: domain.RoleTool, Content: "72F", Name: "get_weather"},
	}
	items, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected tool message without call id to be skipped, got %+v", items)
	}
}

func TestConvertMessages_ToolMessageWithCallIDBecomesFunctionCallOutput(t *testing.T) {
	messages := []domain.Message{
		{Role: domain.RoleTool, Content: "72F", ToolCallID: "call_1", Name: "get_weather"},
	}
	items, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(items) != 1 || items[0].Type != "function_call_output" || items[0].CallID != "call_1" || items[0].Output != "72F" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestConvertMessages_AssistantToolCallBecomesFunctionCallItem(t *testing.T) {
	messages := []domain.Message{
		{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				domain.NewToolCall("call_1", "get_weather", []string{`{"city":"NYC"}`}),
			},
		},
	}
	items, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(items) != 1 || items[0].Type != "function_call" || items[0].Arguments != `{"city":"NYC"}` {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestArgsToJSONString_Table(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", nil, "{}"},
		{"single", []string{`{"a":1}`}, `{"a":1}`},
		{"multiple", []string{"x", "y"}, `["x","y"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := argsToJSONString(tt.in)
			if err != nil {
				t.Fatalf("argsToJSONString: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFinishReason_ToolCallsTakesPriority(t *testing.T) {
	if got := finishReason("completed", nil, true); got != domain.FinishToolCalls {
		t.Fatalf("expected tool_calls, got %q", got)
	}
}

func TestFinishReason_IncompleteMaxTokensMapsToLength(t *testing.T) {
	got := finishReason("incomplete", &IncompleteDetails{Reason: "max_output_tokens"}, false)
	if got != domain.FinishLength {
		t.Fatalf("expected length, got %q", got)
	}
}

func TestFinishReason_FailedMapsToModelError(t *testing.T) {
	if got := finishReason("failed", nil, false); got != domain.FinishModelError {
		t.Fatalf("expected model_error, got %q", got)
	}
}

func TestOutputText_ConcatenatesMessageParts(t *testing.T) {
	items := []OutputItem{
		{Type: "message", Content: []OutputContentPart{{Type: "output_text", Text: "Hello, "}, {Type: "output_text", Text: "world"}}},
		{Type: "function_call", CallID: "call_1", Name: "get_weather"},
	}
	if got := outputText(items); got != "Hello, world" {
		t.Fatalf("got %q", got)
	}
}

func TestConvertResponse_AttachesToolCallsAndUsage(t *testing.T) {
	resp := &Response{
		ID:     "resp_1",
		Model:  "gpt-5",
		Status: "completed",
		Output: []OutputItem{
			{Type: "function_call", CallID: "call_1", Name: "get_weather", Arguments: `{"city":"NYC"}`},
		},
		Usage: &Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
	out, err := convertResponse(resp)
	if err != nil {
		t.Fatalf("convertResponse: %v", err)
	}
	if len(out.Message.ToolCalls) != 1 || out.Message.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", out.Message.ToolCalls)
	}
	if out.FinishReason != domain.FinishToolCalls {
		t.Fatalf("expected tool_calls finish reason, got %q", out.FinishReason)
	}
	if out.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", out.Usage)
	}
}
