// Package convmgr owns the mapping from a conversation id to its running
// provider client and drives spec.md §4.5's send_message/approve_tool
// procedures. It is the daemon-side generalization of the teacher's
// conversation-scoped runtime instance cache (internal/agent/runtime.go's
// sync.Map of provider clients) over this spec's three LLM adapters
// instead of the teacher's plugin/channel providers.
package convmgr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"

	"github.com/neuromance/neuromance-go/internal/chatcore"
	"github.com/neuromance/neuromance-go/internal/config"
	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/providers"
	"github.com/neuromance/neuromance-go/internal/providers/anthropic"
	"github.com/neuromance/neuromance-go/internal/providers/openai"
	"github.com/neuromance/neuromance-go/internal/providers/responses"
	"github.com/neuromance/neuromance-go/internal/proxy"
	"github.com/neuromance/neuromance-go/internal/storage"
	"github.com/neuromance/neuromance-go/internal/toolregistry"
)

// providerAuth names the header (and its value prefix) each provider
// normally carries its credential in, so a tokenizer-proxy rewrite knows
// which header slot the sealed token replaces (spec.md §6).
var providerAuth = map[string]struct{ header, prefix string }{
	"anthropic": {header: "x-api-key"},
	"openai":    {header: "Authorization", prefix: "Bearer "},
	"responses": {header: "Authorization", prefix: "Bearer "},
}

// defaultProviderHost names each provider's real upstream host, used as the
// X-Target-Host value when a model profile doesn't override BaseURL.
var defaultProviderHost = map[string]string{
	"anthropic": "api.anthropic.com",
	"openai":    "api.openai.com",
	"responses": "api.openai.com",
}

// EventKind discriminates the events a Manager publishes to a client's
// chat stream while SendMessage runs (spec.md §4.6 "bidirectional chat
// stream protocol").
type EventKind string

const (
	EventStreamChunk         EventKind = "stream_chunk"
	EventToolResult          EventKind = "tool_result"
	EventUsage               EventKind = "usage"
	EventToolApprovalRequest EventKind = "tool_approval_request"
	EventMessageCompleted    EventKind = "message_completed"
)

// Event is one notification a Manager emits for a conversation's chat
// stream. Only the fields relevant to Kind are populated.
type Event struct {
	Kind           EventKind
	ConversationID string

	ContentDelta string          // EventStreamChunk
	ToolName     string          // EventToolResult
	ToolResult   string          // EventToolResult
	ToolSuccess  bool            // EventToolResult
	Usage        *domain.Usage   // EventUsage
	ToolCall     *domain.ToolCall // EventToolApprovalRequest
	Message      *domain.Message  // EventMessageCompleted
}

// EventSink receives Manager events. A nil sink is valid.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}

type approvalKey struct {
	conversationID string
	toolCallID     string
}

// Manager coordinates storage, per-conversation provider clients, and the
// tool-approval handshake between a daemon RPC handler and the chat loop.
type Manager struct {
	storage  *storage.Store
	config   *config.DaemonConfig
	registry *toolregistry.Registry

	clients            sync.Map // conversation id -> providers.ChatProvider
	conversationModels sync.Map // conversation id -> model nickname

	approvalsMu sync.Mutex
	approvals   map[approvalKey]chan domain.Approval
}

// New constructs a Manager. registry is shared across every conversation's
// Core; cfg supplies model profiles and per-conversation default settings.
func New(store *storage.Store, cfg *config.DaemonConfig, registry *toolregistry.Registry) *Manager {
	return &Manager{
		storage:   store,
		config:    cfg,
		registry:  registry,
		approvals: make(map[approvalKey]chan domain.Approval),
	}
}

// CreateConversation validates modelNickname (falling back to the config's
// active model), creates an empty conversation with an optional system
// message, and persists it as the new active conversation.
func (m *Manager) CreateConversation(modelNickname, systemMessage string) (*domain.Conversation, error) {
	if modelNickname == "" {
		modelNickname = m.config.ActiveModelName()
	}
	if _, err := m.config.GetModel(modelNickname); err != nil {
		return nil, err
	}

	conv := domain.NewConversation("")
	if systemMessage != "" {
		msg, err := domain.NewMessage(conv.ID, domain.RoleSystem, systemMessage)
		if err != nil {
			return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
		}
		if err := conv.Append(*msg); err != nil {
			return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
		}
	}

	if err := m.storage.SaveConversation(conv); err != nil {
		return nil, err
	}
	if err := m.storage.SetActiveConversation(conv.ID); err != nil {
		return nil, err
	}
	m.conversationModels.Store(conv.ID, modelNickname)

	slog.Info("created conversation", "conversation_id", conv.ID, "model", modelNickname)
	return conv, nil
}

// resolveID returns conversationID resolved through storage, or the active
// conversation if conversationID is empty.
func (m *Manager) resolveID(conversationID string) (string, error) {
	if conversationID != "" {
		return m.storage.ResolveConversationID(conversationID)
	}
	id, ok, err := m.storage.GetActiveConversation()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NewDomainError(domain.ErrCodeNoActiveConversation, "no active conversation")
	}
	return id, nil
}

// SendMessage appends content as a user message to conversationID (or the
// active conversation, if empty), runs the tool-augmented chat loop to
// completion, fans out progress through sink, and persists every new
// message (spec.md §4.5).
func (m *Manager) SendMessage(ctx context.Context, conversationID, content string, sink EventSink) error {
	id, err := m.resolveID(conversationID)
	if err != nil {
		return err
	}

	conv, err := m.storage.LoadConversation(id)
	if err != nil {
		return err
	}

	userMsg, err := domain.NewMessage(id, domain.RoleUser, content)
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeInternal, err)
	}
	if err := conv.Append(*userMsg); err != nil {
		return domain.WrapDomainError(domain.ErrCodeInternal, err)
	}

	client, err := m.getOrCreateClient(id)
	if err != nil {
		return err
	}

	settings := m.config.SnapshotSettings()
	core := chatcore.New(client, m.registry, chatcore.Config{
		MaxTurns:         settings.MaxTurns,
		AutoApproveTools: settings.AutoApproveTools,
		Streaming:        true,
	})

	coreSink := func(e chatcore.Event) {
		switch e.Kind {
		case chatcore.EventStreaming:
			sink.emit(Event{Kind: EventStreamChunk, ConversationID: id, ContentDelta: e.ContentDelta})
		case chatcore.EventToolResult:
			sink.emit(Event{Kind: EventToolResult, ConversationID: id, ToolName: e.ToolName, ToolResult: e.ToolResult, ToolSuccess: e.ToolSuccess})
		case chatcore.EventUsage:
			sink.emit(Event{Kind: EventUsage, ConversationID: id, Usage: e.Usage})
		}
	}

	approve := m.approvalFunc(id, sink)

	updated, err := core.Run(ctx, id, conv.Messages, approve, coreSink)
	if err != nil && domain.CodeOf(err) != domain.ErrCodeUserQuit {
		// Keep the chat loop's own code (rate_limited, max_turns_exceeded,
		// ...) so it reaches the client's ChatError unchanged.
		if domain.CodeOf(err) != domain.ErrCodeInternal {
			return err
		}
		return domain.WrapDomainError(domain.ErrCodeInternal, err)
	}

	conv.Messages = updated
	if saveErr := m.storage.SaveConversation(conv); saveErr != nil {
		return saveErr
	}

	if len(updated) > 0 {
		last := updated[len(updated)-1]
		if last.Role == domain.RoleAssistant {
			sink.emit(Event{Kind: EventMessageCompleted, ConversationID: id, Message: &last})
		}
	}
	return err
}

// approvalFunc builds the chatcore.ApprovalFunc for conversationID: it
// registers a reply channel, publishes a ToolApprovalRequest event, and
// blocks until ApproveTool answers or ctx is cancelled.
func (m *Manager) approvalFunc(conversationID string, sink EventSink) chatcore.ApprovalFunc {
	return func(ctx context.Context, convID string, call domain.ToolCall) (domain.Approval, error) {
		key := approvalKey{conversationID: conversationID, toolCallID: call.ID}
		reply := make(chan domain.Approval, 1)

		m.approvalsMu.Lock()
		m.approvals[key] = reply
		m.approvalsMu.Unlock()

		sink.emit(Event{Kind: EventToolApprovalRequest, ConversationID: conversationID, ToolCall: &call})

		select {
		case approval := <-reply:
			return approval, nil
		case <-ctx.Done():
			m.approvalsMu.Lock()
			delete(m.approvals, key)
			m.approvalsMu.Unlock()
			slog.Warn("tool approval channel closed before a reply arrived", "conversation_id", conversationID, "tool_call_id", call.ID)
			return domain.Approval{}, ctx.Err()
		}
	}
}

// ApproveTool answers a pending tool-approval request registered by
// approvalFunc. It returns ErrCodeApprovalNotFound if no request is
// pending for (conversationID, toolCallID) — already answered, or never
// asked.
func (m *Manager) ApproveTool(conversationID, toolCallID string, approval domain.Approval) error {
	key := approvalKey{conversationID: conversationID, toolCallID: toolCallID}

	m.approvalsMu.Lock()
	reply, ok := m.approvals[key]
	if ok {
		delete(m.approvals, key)
	}
	m.approvalsMu.Unlock()

	if !ok {
		return domain.NewDomainError(domain.ErrCodeApprovalNotFound,
			fmt.Sprintf("no pending approval for conversation %s, tool call %s", conversationID, toolCallID))
	}
	reply <- approval
	return nil
}

// getOrCreateClient returns the cached provider client for conversationID,
// constructing and caching one from the conversation's model profile if
// none exists yet.
func (m *Manager) getOrCreateClient(conversationID string) (providers.ChatProvider, error) {
	if cached, ok := m.clients.Load(conversationID); ok {
		return cached.(providers.ChatProvider), nil
	}

	nickname := m.config.ActiveModelName()
	if v, ok := m.conversationModels.Load(conversationID); ok {
		nickname = v.(string)
	}

	profile, err := m.config.GetModel(nickname)
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv(profile.APIKeyEnv)
	if apiKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfig,
			fmt.Sprintf("environment variable %s not set for model %s", profile.APIKeyEnv, nickname))
	}

	pcfg := providers.Config{
		APIKey:       apiKey,
		BaseURL:      profile.BaseURL,
		DefaultModel: profile.Model,
	}

	if profile.TokenizerProxyURL != "" {
		httpClient, err := tokenizerProxyClient(profile)
		if err != nil {
			return nil, err
		}
		pcfg.HTTPClient = httpClient
	}

	var client providers.ChatProvider
	switch profile.Provider {
	case "anthropic":
		client = anthropic.New(pcfg)
	case "openai":
		client = openai.New(pcfg)
	case "responses":
		client = responses.New(pcfg)
	default:
		return nil, domain.NewDomainError(domain.ErrCodeConfig, fmt.Sprintf("unsupported provider: %s", profile.Provider))
	}

	m.clients.Store(conversationID, client)
	slog.Info("created provider client", "conversation_id", conversationID, "model", nickname, "provider", profile.Provider)
	return client, nil
}

// tokenizerProxyClient builds the http.Client a provider adapter should use
// when its profile names a tokenizer proxy (spec.md §6): the real
// credential never leaves the process, replaced on the wire by the sealed
// token named by profile.SealedTokenEnv.
func tokenizerProxyClient(profile config.ModelProfile) (*http.Client, error) {
	auth, ok := providerAuth[profile.Provider]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeConfig,
			fmt.Sprintf("tokenizer proxy mode: unsupported provider %q", profile.Provider))
	}

	sealedToken := os.Getenv(profile.SealedTokenEnv)
	if sealedToken == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfig,
			fmt.Sprintf("environment variable %s not set for tokenizer-proxied model", profile.SealedTokenEnv))
	}

	targetHost := defaultProviderHost[profile.Provider]
	if profile.BaseURL != "" {
		if u, err := url.Parse(profile.BaseURL); err == nil && u.Host != "" {
			targetHost = u.Host
		}
	}

	return proxy.NewHTTPClient(nil, proxy.Config{
		ProxyURL:    profile.TokenizerProxyURL,
		SealedToken: sealedToken,
		AuthHeader:  auth.header,
		AuthPrefix:  auth.prefix,
		TargetHost:  targetHost,
	})
}

// Config returns the DaemonConfig this Manager was constructed with, for
// callers (e.g. the daemon server's ListModels/status RPCs) that need
// model-profile visibility beyond what Manager itself exposes.
func (m *Manager) Config() *config.DaemonConfig { return m.config }

// SwitchModel changes the model nickname conversationID (or the active
// conversation, if empty) routes to, validating that nickname names a
// configured profile and dropping any cached client for the conversation
// so the next SendMessage constructs a fresh one against the new profile.
func (m *Manager) SwitchModel(conversationID, nickname string) (string, error) {
	id, err := m.resolveID(conversationID)
	if err != nil {
		return "", err
	}
	if _, err := m.config.GetModel(nickname); err != nil {
		return "", err
	}
	m.conversationModels.Store(id, nickname)
	m.clients.Delete(id)
	return id, nil
}

// CachedConversations returns every conversation id with a live provider
// client cached, for daemon status reporting.
func (m *Manager) CachedConversations() []string {
	var ids []string
	m.clients.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// PendingApprovalCount returns the number of tool-approval requests
// currently awaiting a response, for daemon status reporting.
func (m *Manager) PendingApprovalCount() int {
	m.approvalsMu.Lock()
	defer m.approvalsMu.Unlock()
	return len(m.approvals)
}

// conversationSummary is the lightweight listing shape spec.md §4.5's
// list_conversations returns.
type conversationSummary struct {
	Conversation *domain.Conversation
	Model        string
	Bookmarks    []string
}

// ListConversations returns every conversation's summary, most recently
// updated first, truncated to limit if limit > 0.
func (m *Manager) ListConversations(limit int) ([]conversationSummary, error) {
	ids, err := m.storage.ListConversations()
	if err != nil {
		return nil, err
	}

	summaries := make([]conversationSummary, 0, len(ids))
	for _, id := range ids {
		conv, err := m.storage.LoadConversation(id)
		if err != nil {
			continue
		}
		model := m.config.ActiveModelName()
		if v, ok := m.conversationModels.Load(id); ok {
			model = v.(string)
		}
		bookmarks, err := m.storage.GetConversationBookmarks(id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, conversationSummary{Conversation: conv, Model: model, Bookmarks: bookmarks})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Conversation.UpdatedAt.After(summaries[j].Conversation.UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// GetMessages returns up to limit of conversationID's (or the active
// conversation's) most recent messages, the total message count, and the
// resolved conversation id.
func (m *Manager) GetMessages(conversationID string, limit int) ([]domain.Message, int, string, error) {
	id, err := m.resolveID(conversationID)
	if err != nil {
		return nil, 0, "", err
	}

	conv, err := m.storage.LoadConversation(id)
	if err != nil {
		return nil, 0, "", err
	}

	total := len(conv.Messages)
	messages := conv.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, total, id, nil
}
