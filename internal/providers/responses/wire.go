// Package responses adapts domain.ChatRequest/ChatResponse/ChatChunk to
// OpenAI's Responses API (spec.md §4.2 Adapter C): a stateful,
// previous_response_id-chaining wire format distinct from Chat Completions.
// go-openai doesn't model this API, so the wire types here are hand-rolled
// from the original client's request/event shapes.
package responses

import "encoding/json"

// ResponsesRole is the role discriminator inside an input Message item.
type ResponsesRole string

const (
	ResponsesRoleUser      ResponsesRole = "user"
	ResponsesRoleAssistant ResponsesRole = "assistant"
	ResponsesRoleSystem    ResponsesRole = "system"
)

// InputItem is one element of a ResponsesRequest's Input array. Exactly one
// of its fields is populated, discriminated by Type.
type InputItem struct {
	Type string `json:"type"`

	// type == "message"
	Role    ResponsesRole `json:"role,omitempty"`
	Content string        `json:"content,omitempty"`

	// type == "function_call" (assistant-issued tool call, replayed as history)
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// type == "function_call_output" (the tool's answer to a prior call)
	Output string `json:"output,omitempty"`
}

// ReasoningEffort controls how much the model reasons before answering.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// ReasoningSummary controls whether a reasoning summary is included.
type ReasoningSummary string

const ReasoningSummaryConcise ReasoningSummary = "concise"

// ReasoningConfig requests extended thinking from a reasoning-capable model.
type ReasoningConfig struct {
	Effort  ReasoningEffort   `json:"effort"`
	Summary *ReasoningSummary `json:"summary,omitempty"`
}

// ToolDef is a Responses-API tool declaration (flat, unlike Chat
// Completions' {type, function: {...}} nesting).
type ToolDef struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request is the Responses API request body.
type Request struct {
	Model              string            `json:"model"`
	Input              []InputItem       `json:"input"`
	Instructions       *string           `json:"instructions,omitempty"`
	PreviousResponseID *string           `json:"previous_response_id,omitempty"`
	Tools              []ToolDef         `json:"tools,omitempty"`
	Reasoning          *ReasoningConfig  `json:"reasoning,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	TopP               *float64          `json:"top_p,omitempty"`
	Stream             *bool             `json:"stream,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// OutputItem is one element of a Response's Output array.
type OutputItem struct {
	Type string `json:"type"`

	// type == "message"
	Content []OutputContentPart `json:"content,omitempty"`

	// type == "function_call"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// OutputContentPart is one part of an output message's content array.
type OutputContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// IncompleteDetails explains why a response stopped before completion.
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// ResponseError carries the Responses API's error shape.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// UsageDetail mirrors the Responses API's nested token breakdown.
type UsageDetail struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// Usage is the Responses API's token accounting block.
type Usage struct {
	InputTokens         int          `json:"input_tokens"`
	OutputTokens        int          `json:"output_tokens"`
	TotalTokens         int          `json:"total_tokens"`
	OutputTokensDetails *UsageDetail `json:"output_tokens_details,omitempty"`
}

// Response is the full (non-streaming, or final) Responses API response.
type Response struct {
	ID                string            `json:"id"`
	Model             string            `json:"model"`
	Status            string            `json:"status"`
	CreatedAt         int64             `json:"created_at"`
	Output            []OutputItem      `json:"output"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
	Usage             *Usage            `json:"usage,omitempty"`
	Error             *ResponseError    `json:"error,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// streamEnvelope is the outer shape every Responses SSE event shares; Type
// selects which typed payload to decode next.
type streamEnvelope struct {
	Type        string         `json:"type"`
	Response    *Response      `json:"response,omitempty"`
	OutputIndex uint32         `json:"output_index"`
	Item        *OutputItem    `json:"item,omitempty"`
	CallID      string         `json:"call_id,omitempty"`
	Delta       string         `json:"delta,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
	Error       *ResponseError `json:"error,omitempty"`
}
