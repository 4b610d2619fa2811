package domain

import "time"

// ToolChoiceMode selects how a provider should decide whether to call a tool.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice selects tool-calling policy for a ChatRequest. Name is only
// meaningful when Mode == ToolChoiceFunction.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// ToolDefinition describes a callable tool in provider-neutral form.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  []byte `json:"parameters"` // raw JSON Schema
}

// ChatRequest is the neutral request shape passed to every provider adapter.
//
// Messages is a reference to a shared, cheaply-cloneable slice: callers
// build the next turn's request from the previous turn's messages plus any
// newly appended ones, rather than deep-copying history on every turn.
type ChatRequest struct {
	Messages         []Message        `json:"messages"`
	Model            string           `json:"model,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
	FrequencyPenalty *float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64         `json:"presence_penalty,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
	StopSequences    []string         `json:"stop_sequences,omitempty"`
	Tools            []ToolDefinition `json:"tools,omitempty"`
	ToolChoice        ToolChoice       `json:"tool_choice,omitempty"`
	Stream            bool             `json:"stream,omitempty"`
	UserID            string           `json:"user_id,omitempty"`
	EnableThinking    bool             `json:"enable_thinking,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// Clone returns a shallow copy of req whose Messages slice is independent
// (new backing array, same Message values) so a caller can append to it
// without mutating the original request.
func (req *ChatRequest) Clone() *ChatRequest {
	if req == nil {
		return nil
	}
	clone := *req
	clone.Messages = append([]Message(nil), req.Messages...)
	return &clone
}

// ChatResponse is a complete, non-streamed (or fully-reassembled) reply.
type ChatResponse struct {
	Message      Message      `json:"message"`
	Model        string       `json:"model"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
	ResponseID   string       `json:"response_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ToolCallDelta is an incremental fragment of a ToolCall arriving on a
// streaming response, keyed by the provider's per-response index so that
// fragments for the same logical tool call can be merged (spec.md §4.2.1).
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"` // fragment to append, not the whole value
	Done      bool   `json:"done,omitempty"`      // true when this delta finalizes the tool call
}

// ChatChunk is one increment of a streamed ChatResponse.
//
// Err, when non-nil, marks this as the terminal chunk of a stream that
// failed mid-flight (a transport error from the SDK's Recv loop, a
// provider-sent "error" event, or a trailing stream.Err() after the loop
// exits without a finish reason). No further chunks follow one with Err
// set; every other field on it is meaningless.
type ChatChunk struct {
	Role             Role            `json:"role,omitempty"`
	ContentDelta     string          `json:"content_delta,omitempty"`
	ReasoningDelta    string          `json:"reasoning_delta,omitempty"`
	ToolCallDeltas    []ToolCallDelta `json:"tool_call_deltas,omitempty"`
	FinishReason      FinishReason    `json:"finish_reason,omitempty"`
	Usage             *Usage          `json:"usage,omitempty"` // set only on the terminal chunk
	Err               error           `json:"-"`
}
