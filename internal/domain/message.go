// Package domain holds the neutral conversation model shared by the chat
// loop, provider adapters, storage, and the daemon RPC layer: messages,
// conversations, tool calls, usage, and the errors used to report on them.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Reasoning carries a model's extended-thinking output alongside the
// provider's opaque signature for it (Anthropic's thinking-block signature,
// or an equivalent from another provider).
type Reasoning struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// Message is one turn in a Conversation.
//
// Invariants (enforced by NewMessage / the setters below, never by direct
// field mutation from outside this package):
//  1. ToolCalls non-empty implies Role == RoleAssistant.
//  2. Role == RoleTool implies ToolCallID and Name are both non-empty.
//  3. ConversationID matches the conversation it is appended to (enforced
//     by Conversation.Append, not by Message itself).
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	Name           string         `json:"name,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Reasoning      *Reasoning     `json:"reasoning,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewMessage constructs a Message and validates invariants (1) and (2).
func NewMessage(conversationID string, role Role, content string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewToolMessage constructs a Tool-role message answering toolCallID.
// Both toolCallID and name are required per invariant (2).
func NewToolMessage(conversationID, toolCallID, name, content string) (*Message, error) {
	if toolCallID == "" || name == "" {
		return nil, fmt.Errorf("domain: tool message requires tool_call_id and name")
	}
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleTool,
		Content:        content,
		ToolCallID:     toolCallID,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	return msg, nil
}

// WithToolCalls attaches tool calls to the message, enforcing invariant (1).
func (m *Message) WithToolCalls(calls []ToolCall) error {
	if len(calls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("domain: tool calls can only be attached to an assistant message, got role %q", m.Role)
	}
	m.ToolCalls = calls
	return nil
}

func (m *Message) validate() error {
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("domain: tool calls require role=assistant, got %q", m.Role)
	}
	if m.Role == RoleTool && (m.ToolCallID == "" || m.Name == "") {
		return fmt.Errorf("domain: tool-role message requires tool_call_id and name")
	}
	return nil
}

// ToolCallType is the constant discriminator for ToolCall.CallType.
const ToolCallType = "function"

// ToolCall is a provider-issued request to invoke a named function.
//
// FunctionCall.Arguments is a list of strings rather than a single string.
// The adapters in this module fill it with at most one element: streamed
// fragments are joined into one string by providers.ToolCallAccumulator,
// and a call with no arguments has an empty list. CoerceArguments in
// internal/toolregistry turns the list into one JSON value.
type ToolCall struct {
	ID       string       `json:"id"`
	CallType string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function a ToolCall invokes and its arguments.
type FunctionCall struct {
	Name      string   `json:"name"`
	Arguments []string `json:"arguments"`
}

// NewToolCall constructs a ToolCall with CallType pre-filled.
func NewToolCall(id, name string, arguments []string) ToolCall {
	return ToolCall{
		ID:       id,
		CallType: ToolCallType,
		Function: FunctionCall{Name: name, Arguments: arguments},
	}
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	Cost             *float64       `json:"cost,omitempty"`
	InputDetail      *InputDetail   `json:"input_detail,omitempty"`
	OutputDetail     *OutputDetail  `json:"output_detail,omitempty"`
}

// InputDetail breaks down prompt-token accounting for prompt-cache-aware
// providers (Anthropic cache read/creation).
type InputDetail struct {
	CachedTokens       int `json:"cached_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// OutputDetail breaks down completion-token accounting.
type OutputDetail struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// FinishReason explains why a completion stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
	FinishModelError     FinishReason = "model_error"
)
