// Package chatcore drives one client-initiated message to either
// completion or an error (spec.md §4.3): build a request, stream or call
// the provider, dispatch tool calls through an approval callback, append
// tool results, and repeat until the assistant stops calling tools or a
// turn limit is reached. It is a generalization of the teacher's
// AgenticLoop (internal/agent/loop.go), stripped of the teacher's
// session-store/branch/steering/job machinery that this spec does not
// carry and rebuilt around the neutral domain.ChatRequest/ChatResponse
// model instead of the teacher's provider-specific completion types.
package chatcore

import (
	"context"
	"fmt"
	"strings"

	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/providers"
	"github.com/neuromance/neuromance-go/internal/toolregistry"
)

// EventKind discriminates the three streaming fan-out events a Core emits
// while running a turn (spec.md §4.3 "Streaming fan-out"). These events are
// not persisted; they exist purely so a UI can render progress.
type EventKind string

const (
	EventStreaming  EventKind = "streaming"
	EventToolResult EventKind = "tool_result"
	EventUsage      EventKind = "usage"
)

// Event is one fan-out notification emitted during Run.
type Event struct {
	Kind EventKind

	// set when Kind == EventStreaming
	ContentDelta string

	// set when Kind == EventToolResult
	ToolName    string
	ToolResult  string
	ToolSuccess bool

	// set when Kind == EventUsage
	Usage *domain.Usage
}

// EventSink receives fan-out events. A nil sink is valid; Run simply skips
// emitting.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}

// ApprovalFunc is awaited for each tool call that is neither globally
// auto-approved nor individually auto-approved (spec.md §4.3 step 5). A nil
// ApprovalFunc means every non-auto-approved call is Denied with reason
// "no approval mechanism".
type ApprovalFunc func(ctx context.Context, conversationID string, call domain.ToolCall) (domain.Approval, error)

// Config controls a Core's turn policy.
type Config struct {
	// MaxTurns bounds the number of request/tool-execution round trips
	// before the loop fails with ErrCodeMaxTurnsExceeded. 0 means unlimited.
	MaxTurns int

	// AutoApproveTools approves every tool call without consulting the
	// registry's per-tool IsAutoApproved or the ApprovalFunc.
	AutoApproveTools bool

	// Streaming selects ChatStream+reassembly over a single Chat call.
	Streaming bool

	// ToolChoice is the tool-choice policy threaded into every ChatRequest.
	ToolChoice domain.ToolChoice

	// Model and Metadata are copied onto every ChatRequest this Core builds.
	Model    string
	Metadata map[string]any
}

// Core drives the per-turn procedure of spec.md §4.3 against one provider
// and one tool registry.
type Core struct {
	provider providers.ChatProvider
	registry *toolregistry.Registry
	executor *toolregistry.Executor
	config   Config
}

// New constructs a Core. registry may be empty (no tools offered).
func New(provider providers.ChatProvider, registry *toolregistry.Registry, config Config) *Core {
	if registry == nil {
		registry = toolregistry.NewRegistry()
	}
	return &Core{
		provider: provider,
		registry: registry,
		executor: toolregistry.NewExecutor(registry),
		config:   config,
	}
}

// Run executes the chat loop starting from messages (which already
// includes the new user turn the caller appended) and returns the same
// list extended with every assistant/tool message the loop produced.
// conversationID stamps every message this Core appends.
func (c *Core) Run(ctx context.Context, conversationID string, messages []domain.Message, approve ApprovalFunc, sink EventSink) ([]domain.Message, error) {
	turn := 0
	for {
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		assistantMsg, err := c.requestTurn(ctx, conversationID, messages, sink)
		if err != nil {
			return messages, err
		}
		messages = append(messages, *assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			return messages, nil
		}

		for _, call := range assistantMsg.ToolCalls {
			if err := ctx.Err(); err != nil {
				return messages, err
			}

			toolMsg, quit, err := c.dispatchToolCall(ctx, conversationID, call, approve, sink)
			if err != nil {
				return messages, err
			}
			if quit {
				return messages, domain.WrapDomainError(domain.ErrCodeUserQuit, domain.ErrUserQuit)
			}
			messages = append(messages, *toolMsg)
		}

		turn++
		if c.config.MaxTurns > 0 && turn >= c.config.MaxTurns {
			return messages, domain.WrapDomainError(domain.ErrCodeMaxTurnsExceeded,
				fmt.Errorf("%w: reached max turns (%d)", domain.ErrMaxTurnsExceeded, c.config.MaxTurns))
		}
	}
}

// requestTurn builds a ChatRequest from messages and this Core's tool set,
// then either streams and reassembles or calls Chat directly, returning the
// assembled assistant message.
func (c *Core) requestTurn(ctx context.Context, conversationID string, messages []domain.Message, sink EventSink) (*domain.Message, error) {
	req := &domain.ChatRequest{
		Messages:   messages,
		Model:      c.config.Model,
		Tools:      toolDefinitions(c.registry),
		ToolChoice: c.config.ToolChoice,
		Stream:     c.config.Streaming,
		Metadata:   c.config.Metadata,
	}

	var resp *domain.ChatResponse
	if c.config.Streaming {
		chunks, err := c.provider.ChatStream(ctx, req)
		if err != nil {
			return nil, err
		}
		resp, err = reassembleStream(req, chunks, sink)
		if err != nil {
			return nil, err
		}
	} else {
		r, err := c.provider.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		resp = r
		sink.emit(Event{Kind: EventUsage, Usage: &resp.Usage})
	}

	msg := resp.Message
	msg.ConversationID = conversationID
	return &msg, nil
}

// reassembleStream drains chunks into a single ChatResponse, fanning out a
// Streaming event per content delta and a terminal Usage event — the same
// accumulation providers.CollectStream performs, plus the fan-out spec.md
// §4.3 requires the chat loop (not the adapter) to emit.
func reassembleStream(req *domain.ChatRequest, chunks <-chan domain.ChatChunk, sink EventSink) (*domain.ChatResponse, error) {
	var contentBuilder, reasoningBuilder strings.Builder
	acc := providers.NewToolCallAccumulator()
	var finish domain.FinishReason
	var usage *domain.Usage

	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.ContentDelta != "" {
			contentBuilder.WriteString(chunk.ContentDelta)
			sink.emit(Event{Kind: EventStreaming, ContentDelta: chunk.ContentDelta})
		}
		reasoningBuilder.WriteString(chunk.ReasoningDelta)
		for _, d := range chunk.ToolCallDeltas {
			acc.Add(d)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	msg, err := domain.NewMessage("", domain.RoleAssistant, contentBuilder.String())
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
	}
	if calls := acc.Finish(); len(calls) > 0 {
		if err := msg.WithToolCalls(calls); err != nil {
			return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
		}
	}
	if reasoningBuilder.Len() > 0 {
		msg.Reasoning = &domain.Reasoning{Text: reasoningBuilder.String()}
	}

	resp := &domain.ChatResponse{Message: *msg, Model: req.Model, FinishReason: finish}
	if usage != nil {
		resp.Usage = *usage
	}
	sink.emit(Event{Kind: EventUsage, Usage: &resp.Usage})
	return resp, nil
}

// dispatchToolCall resolves approval for call and, if approved, executes
// it, returning the Tool-role message to append (spec.md §4.3 steps 5-6).
// quit reports that the approval verdict was Quit and the loop must stop.
func (c *Core) dispatchToolCall(ctx context.Context, conversationID string, call domain.ToolCall, approve ApprovalFunc, sink EventSink) (msg *domain.Message, quit bool, err error) {
	verdict := c.resolveApproval(ctx, conversationID, call, approve)

	if verdict.Verdict == domain.ApprovalQuit {
		return nil, true, nil
	}

	if verdict.Verdict == domain.ApprovalDenied {
		content := fmt.Sprintf("Tool execution denied: %s", verdict.Reason)
		sink.emit(Event{Kind: EventToolResult, ToolName: call.Function.Name, ToolResult: content, ToolSuccess: false})
		toolMsg, merr := domain.NewToolMessage(conversationID, call.ID, call.Function.Name, content)
		if merr != nil {
			return nil, false, domain.WrapDomainError(domain.ErrCodeInternal, merr)
		}
		return toolMsg, false, nil
	}

	result, execErr := c.executor.Execute(ctx, call)
	content := result
	success := execErr == nil
	if execErr != nil {
		content = execErr.Error()
	}
	sink.emit(Event{Kind: EventToolResult, ToolName: call.Function.Name, ToolResult: content, ToolSuccess: success})

	toolMsg, merr := domain.NewToolMessage(conversationID, call.ID, call.Function.Name, content)
	if merr != nil {
		return nil, false, domain.WrapDomainError(domain.ErrCodeInternal, merr)
	}
	return toolMsg, false, nil
}

// resolveApproval implements the verdict chain of spec.md §4.3 step 5.
func (c *Core) resolveApproval(ctx context.Context, conversationID string, call domain.ToolCall, approve ApprovalFunc) domain.Approval {
	if c.config.AutoApproveTools {
		return domain.Approved()
	}
	if c.executor.IsAutoApproved(call.Function.Name) {
		return domain.Approved()
	}
	if approve == nil {
		return domain.Denied("no approval mechanism")
	}
	verdict, err := approve(ctx, conversationID, call)
	if err != nil {
		return domain.Denied("approval channel closed")
	}
	return verdict
}

// toolDefinitions converts every registered tool into the neutral
// ToolDefinition shape a ChatRequest carries to the provider.
func toolDefinitions(registry *toolregistry.Registry) []domain.ToolDefinition {
	tools := registry.List()
	defs := make([]domain.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
