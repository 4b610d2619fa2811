// Package daemonrpc defines the daemon's gRPC surface (spec.md §4.6) by
// hand rather than via protoc: message types are plain Go structs carried
// over a JSON codec instead of protobuf-generated ones, and the service is
// registered with a hand-authored grpc.ServiceDesc. grpc-go's wire
// protocol only requires a registered codec and a ServiceDesc matching the
// method names a client dials, so this needs no .proto file or generated
// stubs; see codec.go and service.go.
package daemonrpc

import "github.com/neuromance/neuromance-go/internal/domain"

// CreateConversationRequest asks the daemon to start a new conversation.
type CreateConversationRequest struct {
	Model         string `json:"model,omitempty"`
	SystemMessage string `json:"system_message,omitempty"`
}

// CreateConversationResponse echoes the new conversation's identity.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
}

// ListConversationsRequest bounds how many summaries to return; Limit <= 0
// means unlimited.
type ListConversationsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ConversationSummary is one entry in a ListConversationsResponse.
type ConversationSummary struct {
	ConversationID string   `json:"conversation_id"`
	Title          string   `json:"title,omitempty"`
	Model          string   `json:"model"`
	MessageCount   int      `json:"message_count"`
	Bookmarks      []string `json:"bookmarks,omitempty"`
	UpdatedAtUnix  int64    `json:"updated_at_unix"`
}

// ListConversationsResponse carries every requested summary.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// GetMessagesRequest resolves a conversation by id, name, or (if empty)
// the active conversation.
type GetMessagesRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// GetMessagesResponse returns a window of a conversation's messages.
type GetMessagesResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
	TotalCount     int              `json:"total_count"`
}

// ApproveToolRequest answers a pending tool-approval request raised on a
// Chat stream.
type ApproveToolRequest struct {
	ConversationID string                `json:"conversation_id"`
	ToolCallID     string                `json:"tool_call_id"`
	Verdict        domain.ApprovalVerdict `json:"verdict"`
	Reason         string                `json:"reason,omitempty"`
}

// ApproveToolResponse is empty on success; failures surface as a gRPC
// status error instead.
type ApproveToolResponse struct{}

// ChatRequest is one client->daemon message on the bidirectional Chat
// stream: send a user message to a conversation (spec.md §4.6 "chat
// stream protocol").
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

// ChatStreamRequest is any client->server message on the bidirectional Chat
// stream. Exactly one field is set: SendMessage is only valid as the first
// message of the stream; Approval answers whatever ToolApprovalRequest
// event the server most recently emitted (spec.md §4.6).
type ChatStreamRequest struct {
	SendMessage *ChatRequest         `json:"send_message,omitempty"`
	Approval    *ApproveToolRequest  `json:"approval,omitempty"`
}

// SetBookmarkRequest aliases Name to ConversationID.
type SetBookmarkRequest struct {
	Name           string `json:"name"`
	ConversationID string `json:"conversation_id"`
}

// RemoveBookmarkRequest deletes a bookmark by name.
type RemoveBookmarkRequest struct {
	Name string `json:"name"`
}

// DeleteConversationRequest removes a conversation and every bookmark
// pointing at it.
type DeleteConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// SwitchModelRequest changes the model nickname a conversation routes to.
type SwitchModelRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	ModelNickname  string `json:"model_nickname"`
}

// ListModelsRequest takes no parameters; present for symmetry with the
// other unary RPCs and room to grow (e.g. a provider filter).
type ListModelsRequest struct{}

// ModelSummary describes one configured model profile, omitting the
// environment variable's value (only its name is ever sent on the wire).
type ModelSummary struct {
	Nickname  string `json:"nickname"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env"`
	Active    bool   `json:"active"`
}

// ListModelsResponse enumerates every configured model profile.
type ListModelsResponse struct {
	Models []ModelSummary `json:"models"`
}

// StatusResponse is the brief daemon status (spec.md §4.6 "get status").
type StatusResponse struct {
	Version              string `json:"version"`
	ActiveConversationID string `json:"active_conversation_id,omitempty"`
	ConversationCount    int    `json:"conversation_count"`
	UptimeSeconds         int64  `json:"uptime_seconds"`
}

// DetailedStatusResponse adds per-conversation client cache visibility to
// StatusResponse (spec.md §4.6 "get detailed status").
type DetailedStatusResponse struct {
	StatusResponse
	CachedClients    []string `json:"cached_clients"`
	PendingApprovals int      `json:"pending_approvals"`
	IdleSeconds      int64    `json:"idle_seconds"`
}

// HealthCheckRequest carries the caller's protocol version for the
// compatibility check spec.md §4.6 describes.
type HealthCheckRequest struct {
	ClientVersion string `json:"client_version"`
}

// HealthCheckResponse reports the daemon's protocol version and whether
// ClientVersion is compatible with it (same major, any minor).
type HealthCheckResponse struct {
	ServerVersion  string `json:"server_version"`
	Compatible     bool   `json:"compatible"`
	Warning        string `json:"warning,omitempty"`
}

// ChatEventKind discriminates a ChatEvent's payload.
type ChatEventKind string

const (
	ChatEventStreamChunk         ChatEventKind = "stream_chunk"
	ChatEventToolResult          ChatEventKind = "tool_result"
	ChatEventUsage               ChatEventKind = "usage"
	ChatEventToolApprovalRequest ChatEventKind = "tool_approval_request"
	ChatEventMessageCompleted    ChatEventKind = "message_completed"
	ChatEventError               ChatEventKind = "error"
)

// ChatEvent is one daemon->client message on the Chat stream.
type ChatEvent struct {
	Kind           ChatEventKind   `json:"kind"`
	ConversationID string          `json:"conversation_id"`
	ContentDelta   string          `json:"content_delta,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolResult     string          `json:"tool_result,omitempty"`
	ToolSuccess    bool            `json:"tool_success,omitempty"`
	Usage          *domain.Usage   `json:"usage,omitempty"`
	ToolCall       *domain.ToolCall `json:"tool_call,omitempty"`
	Message        *domain.Message  `json:"message,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// Empty is used for RPCs that take or return no data.
type Empty struct{}
