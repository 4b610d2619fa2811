package chatcore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/toolregistry"
)

// stubProvider answers each Chat call with the next entry in responses, in
// order, ignoring the request. Good enough to drive the loop through a
// fixed number of turns without a real provider.
type stubProvider struct {
	responses []*domain.ChatResponse
	calls     int
}

func (p *stubProvider) Name() string            { return "stub" }
func (p *stubProvider) SupportsTools() bool     { return true }
func (p *stubProvider) SupportsStreaming() bool { return false }

func (p *stubProvider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *stubProvider) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.ChatChunk, error) {
	panic("not used in this test")
}

// streamErrorProvider answers ChatStream with a content delta and then a
// chunk carrying a mid-stream error, never a finish reason; Chat is unused.
type streamErrorProvider struct{ err error }

func (p *streamErrorProvider) Name() string            { return "stub-stream-error" }
func (p *streamErrorProvider) SupportsTools() bool     { return true }
func (p *streamErrorProvider) SupportsStreaming() bool { return true }

func (p *streamErrorProvider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	panic("not used in this test")
}

func (p *streamErrorProvider) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.ChatChunk, error) {
	out := make(chan domain.ChatChunk, 2)
	out <- domain.ChatChunk{ContentDelta: "partial"}
	out <- domain.ChatChunk{Err: p.err}
	close(out)
	return out, nil
}

func assistantTextResponse(text string) *domain.ChatResponse {
	msg, _ := domain.NewMessage("", domain.RoleAssistant, text)
	return &domain.ChatResponse{Message: *msg, FinishReason: domain.FinishStop}
}

func assistantToolCallResponse(callID, name, args string) *domain.ChatResponse {
	msg, _ := domain.NewMessage("", domain.RoleAssistant, "")
	_ = msg.WithToolCalls([]domain.ToolCall{domain.NewToolCall(callID, name, []string{args})})
	return &domain.ChatResponse{Message: *msg, FinishReason: domain.FinishToolCalls}
}

// echoTool returns its single "value" argument verbatim.
type echoTool struct{ autoApproved bool }

func (t *echoTool) Name() string                 { return "echo" }
func (t *echoTool) Description() string          { return "echoes its input" }
func (t *echoTool) Parameters() json.RawMessage   { return json.RawMessage(`{"type":"object"}`) }
func (t *echoTool) IsAutoApproved() bool          { return t.autoApproved }
func (t *echoTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestRun_NoToolCallsReturnsImmediately(t *testing.T) {
	provider := &stubProvider{responses: []*domain.ChatResponse{assistantTextResponse("hello")}}
	core := New(provider, toolregistry.NewRegistry(), Config{})

	msgs, err := core.Run(context.Background(), "conv1", nil, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestRun_AutoApprovedToolExecutesAndContinues(t *testing.T) {
	registry := toolregistry.NewRegistry()
	registry.Register(&echoTool{autoApproved: true})

	provider := &stubProvider{responses: []*domain.ChatResponse{
		assistantToolCallResponse("call_1", "echo", `{"value":"hi"}`),
		assistantTextResponse("done"),
	}}
	core := New(provider, registry, Config{})

	msgs, err := core.Run(context.Background(), "conv1", nil, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected assistant+tool+assistant, got %d: %+v", len(msgs), msgs)
	}
	if msgs[1].Role != domain.RoleTool || msgs[1].ToolCallID != "call_1" {
		t.Fatalf("unexpected tool message: %+v", msgs[1])
	}
}

func TestRun_NoApprovalMechanismDeniesTool(t *testing.T) {
	registry := toolregistry.NewRegistry()
	registry.Register(&echoTool{autoApproved: false})

	provider := &stubProvider{responses: []*domain.ChatResponse{
		assistantToolCallResponse("call_1", "echo", `{"value":"hi"}`),
		assistantTextResponse("done"),
	}}
	core := New(provider, registry, Config{})

	msgs, err := core.Run(context.Background(), "conv1", nil, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if msgs[1].Content != "Tool execution denied: no approval mechanism" {
		t.Fatalf("unexpected denial message: %q", msgs[1].Content)
	}
}

func TestRun_ApprovalQuitStopsLoop(t *testing.T) {
	registry := toolregistry.NewRegistry()
	registry.Register(&echoTool{autoApproved: false})

	provider := &stubProvider{responses: []*domain.ChatResponse{
		assistantToolCallResponse("call_1", "echo", `{"value":"hi"}`),
	}}
	core := New(provider, registry, Config{})

	quitApprove := func(ctx context.Context, conversationID string, call domain.ToolCall) (domain.Approval, error) {
		return domain.Quit(), nil
	}

	_, err := core.Run(context.Background(), "conv1", nil, quitApprove, nil)
	if domain.CodeOf(err) != domain.ErrCodeUserQuit {
		t.Fatalf("expected ErrCodeUserQuit, got %v", err)
	}
}

func TestRun_MaxTurnsExceeded(t *testing.T) {
	registry := toolregistry.NewRegistry()
	registry.Register(&echoTool{autoApproved: true})

	provider := &stubProvider{responses: []*domain.ChatResponse{
		assistantToolCallResponse("call_1", "echo", `{"value":"1"}`),
		assistantToolCallResponse("call_2", "echo", `{"value":"2"}`),
	}}
	core := New(provider, registry, Config{MaxTurns: 1})

	_, err := core.Run(context.Background(), "conv1", nil, nil, nil)
	if domain.CodeOf(err) != domain.ErrCodeMaxTurnsExceeded {
		t.Fatalf("expected ErrCodeMaxTurnsExceeded, got %v", err)
	}
}

func TestRun_StreamingMidStreamErrorPropagatesAndStopsTheLoop(t *testing.T) {
	sentinel := domain.NewDomainError(domain.ErrCodeServiceUnavailable, "connection reset")
	provider := &streamErrorProvider{err: sentinel}
	core := New(provider, toolregistry.NewRegistry(), Config{Streaming: true})

	_, err := core.Run(context.Background(), "conv1", nil, nil, nil)
	if err != sentinel {
		t.Fatalf("expected the streamed error back unchanged, got %v", err)
	}
}

func TestRun_EmitsToolResultEvent(t *testing.T) {
	registry := toolregistry.NewRegistry()
	registry.Register(&echoTool{autoApproved: true})

	provider := &stubProvider{responses: []*domain.ChatResponse{
		assistantToolCallResponse("call_1", "echo", `{"value":"hi"}`),
		assistantTextResponse("done"),
	}}
	core := New(provider, registry, Config{})

	var events []Event
	sink := func(e Event) { events = append(events, e) }

	_, err := core.Run(context.Background(), "conv1", nil, nil, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	found := false
	for _, e := range events {
		if e.Kind == EventToolResult && e.ToolName == "echo" && e.ToolSuccess {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a successful tool_result event, got %+v", events)
	}
}
