// Package anthropic adapts domain.ChatRequest/ChatResponse/ChatChunk to
// Anthropic's Messages wire format (spec.md §4.2 Adapter B): system-prompt
// collapsing with prompt-cache breakpoints, extended-thinking blocks, the
// interleaved-thinking beta path when thinking and tools are both in play,
// and the typed SSE event taxonomy Anthropic streams content blocks over.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/providers"
	"github.com/neuromance/neuromance-go/internal/toolregistry"
)

// interleavedThinkingBeta is the header value that keeps a model's thinking
// blocks visible across tool-result turns instead of only on the first one.
const interleavedThinkingBeta = anthropic.AnthropicBeta("interleaved-thinking-2025-05-14")

// defaultThinkingBudget is the thinking token budget sent whenever a request
// enables thinking; ChatRequest carries no budget of its own.
const defaultThinkingBudget = int64(10000)

// Adapter implements providers.ChatProvider for Anthropic's Messages API.
type Adapter struct {
	client anthropic.Client
	cfg    providers.Config
}

// New creates a Messages adapter.
func New(cfg providers.Config) *Adapter {
	cfg = cfg.WithDefaults()
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Adapter{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (a *Adapter) Name() string            { return "anthropic" }
func (a *Adapter) SupportsTools() bool     { return true }
func (a *Adapter) SupportsStreaming() bool { return true }

func (a *Adapter) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	chunks, err := a.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return providers.CollectStream(req, chunks)
}

func (a *Adapter) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.ChatChunk, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeAuthentication, "anthropic: no API key configured")
	}

	useInterleaved := req.EnableThinking && len(req.Tools) > 0

	out := make(chan domain.ChatChunk)

	if useInterleaved {
		var stream *ssestream.Stream[anthropic.BetaRawMessageStreamEventUnion]
		retryErr := providers.Retry(ctx, a.cfg, a.isRetryable, func() error {
			params, err := a.buildBetaRequest(req)
			if err != nil {
				return err
			}
			stream = a.client.Beta.Messages.NewStreaming(ctx, params)
			return stream.Err()
		})
		if retryErr != nil {
			return nil, a.wrapError(retryErr)
		}
		go a.pumpBeta(stream, out)
		return out, nil
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	retryErr := providers.Retry(ctx, a.cfg, a.isRetryable, func() error {
		params, err := a.buildRequest(req)
		if err != nil {
			return err
		}
		stream = a.client.Messages.NewStreaming(ctx, params)
		return stream.Err()
	})
	if retryErr != nil {
		return nil, a.wrapError(retryErr)
	}
	go a.pump(stream, out)
	return out, nil
}

func (a *Adapter) buildRequest(req *domain.ChatRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelOrDefault(req.Model, a.cfg.DefaultModel)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if system := collapsedSystem(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         system,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, domain.WrapDomainError(domain.ErrCodeSerialization, err)
		}
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if req.EnableThinking {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingBudget(req))
	}
	return params, nil
}

func (a *Adapter) buildBetaRequest(req *domain.ChatRequest) (anthropic.BetaMessageNewParams, error) {
	messages, err := convertMessagesBeta(req.Messages)
	if err != nil {
		return anthropic.BetaMessageNewParams{}, domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}

	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(modelOrDefault(req.Model, a.cfg.DefaultModel)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		Betas:     []anthropic.AnthropicBeta{interleavedThinkingBeta},
		Thinking:  anthropic.BetaThinkingConfigParamOfEnabled(thinkingBudget(req)),
	}
	if system := collapsedSystem(req.Messages); system != "" {
		params.System = []anthropic.BetaTextBlockParam{{
			Text:         system,
			CacheControl: anthropic.NewBetaCacheControlEphemeralParam(),
		}}
	}
	tools, err := convertToolsBeta(req.Tools)
	if err != nil {
		return anthropic.BetaMessageNewParams{}, domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}
	params.Tools = tools
	return params, nil
}

// collapsedSystem concatenates every RoleSystem message into a single
// system prompt (spec.md §4.2 "system-block collapsing"): Anthropic has one
// system field, not a message role, so system turns from the neutral model
// are merged in order rather than emitted as user/assistant content.
func collapsedSystem(messages []domain.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Role != domain.RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(msg.Content)
	}
	return b.String()
}

func convertMessages(messages []domain.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == domain.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			input, err := toolCallInput(tc)
			if err != nil {
				return nil, err
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		if msg.Role == domain.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertMessagesBeta(messages []domain.Message) ([]anthropic.BetaMessageParam, error) {
	var result []anthropic.BetaMessageParam
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue
		}

		var content []anthropic.BetaContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewBetaTextBlock(msg.Content))
		}
		if msg.Role == domain.RoleTool {
			content = append(content, anthropic.NewBetaToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			input, err := toolCallInput(tc)
			if err != nil {
				return nil, err
			}
			content = append(content, anthropic.NewBetaToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		if msg.Role == domain.RoleAssistant {
			result = append(result, anthropic.NewBetaAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewBetaUserMessage(content...))
		}
	}
	return result, nil
}

func toolCallInput(tc domain.ToolCall) (map[string]any, error) {
	raw, err := toolregistry.CoerceArguments(tc.Function.Arguments)
	if err != nil {
		return nil, fmt.Errorf("tool call %s: %w", tc.ID, err)
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("tool call %s: arguments are not a JSON object: %w", tc.ID, err)
	}
	return input, nil
}

func convertTools(tools []domain.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	// The tool-definitions block only gets a cache breakpoint on its last
	// entry, same as the system block: Anthropic caches everything up to and
	// including a CacheControl-marked block, so marking every tool would
	// just waste cache-write tokens re-writing the same prefix.
	if len(out) > 0 {
		out[len(out)-1].OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return out, nil
}

func convertToolsBeta(tools []domain.ToolDefinition) ([]anthropic.BetaToolUnionParam, error) {
	out := make([]anthropic.BetaToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.BetaToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.BetaToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	if len(out) > 0 {
		out[len(out)-1].OfTool.CacheControl = anthropic.NewBetaCacheControlEphemeralParam()
	}
	return out, nil
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func maxTokensOrDefault(maxTokens int) int {
	if maxTokens > 0 {
		return maxTokens
	}
	return 4096
}

func thinkingBudget(req *domain.ChatRequest) int64 {
	return defaultThinkingBudget
}

// pump processes Server-Sent Events from Anthropic's non-beta streaming API,
// accumulating text, thinking, and tool-call content blocks into ChatChunks.
func (a *Adapter) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- domain.ChatChunk) {
	defer close(out)

	acc := providers.NewToolCallAccumulator()
	toolIndex := -1
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			usage := event.AsMessageStart().Message.Usage
			if usage.InputTokens > 0 {
				inputTokens = int(usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				toolIndex++
				acc.Add(domain.ToolCallDelta{Index: toolIndex, ID: toolUse.ID, Name: toolUse.Name})
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- domain.ChatChunk{ContentDelta: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- domain.ChatChunk{ReasoningDelta: delta.Thinking}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					acc.Add(domain.ToolCallDelta{Index: toolIndex, Arguments: delta.PartialJSON})
				}
			}

		case "message_delta":
			usage := event.AsMessageDelta().Usage
			if usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}

		case "message_stop":
			usageChunk := &domain.Usage{PromptTokens: inputTokens, CompletionTokens: outputTokens, TotalTokens: inputTokens + outputTokens}
			if !acc.Empty() {
				out <- domain.ChatChunk{ToolCallDeltas: acc.FinishDeltas(), FinishReason: domain.FinishToolCalls, Usage: usageChunk}
			} else {
				out <- domain.ChatChunk{FinishReason: domain.FinishStop, Usage: usageChunk}
			}
			return

		case "error":
			out <- domain.ChatChunk{Err: a.wrapError(errors.New("anthropic stream error"))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- domain.ChatChunk{Err: a.wrapError(err)}
	}
}

// pumpBeta mirrors pump for the interleaved-thinking beta event stream.
func (a *Adapter) pumpBeta(stream *ssestream.Stream[anthropic.BetaRawMessageStreamEventUnion], out chan<- domain.ChatChunk) {
	defer close(out)

	acc := providers.NewToolCallAccumulator()
	toolIndex := -1
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			usage := event.AsMessageStart().Message.Usage
			if usage.InputTokens > 0 {
				inputTokens = int(usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				toolIndex++
				acc.Add(domain.ToolCallDelta{Index: toolIndex, ID: toolUse.ID, Name: toolUse.Name})
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- domain.ChatChunk{ContentDelta: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- domain.ChatChunk{ReasoningDelta: delta.Thinking}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					acc.Add(domain.ToolCallDelta{Index: toolIndex, Arguments: delta.PartialJSON})
				}
			}

		case "message_delta":
			usage := event.AsMessageDelta().Usage
			if usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}

		case "message_stop":
			usageChunk := &domain.Usage{PromptTokens: inputTokens, CompletionTokens: outputTokens, TotalTokens: inputTokens + outputTokens}
			if !acc.Empty() {
				out <- domain.ChatChunk{ToolCallDeltas: acc.FinishDeltas(), FinishReason: domain.FinishToolCalls, Usage: usageChunk}
			} else {
				out <- domain.ChatChunk{FinishReason: domain.FinishStop, Usage: usageChunk}
			}
			return

		case "error":
			out <- domain.ChatChunk{Err: a.wrapError(errors.New("anthropic stream error"))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- domain.ChatChunk{Err: a.wrapError(err)}
	}
}

func (a *Adapter) isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504, 529:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

func (a *Adapter) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		de := &domain.DomainError{Cause: err}
		switch apiErr.StatusCode {
		case 401, 403:
			de.Code = domain.ErrCodeAuthentication
		case 429:
			de.Code = domain.ErrCodeRateLimited
		case 500, 502, 503, 504, 529:
			de.Code = domain.ErrCodeServiceUnavailable
		case 400, 404, 422:
			de.Code = domain.ErrCodeInvalidRequest
		default:
			de.Code = domain.ErrCodeModelError
		}
		de.Message = apiErr.Error()
		return de
	}
	return providers.WrapTransportError("anthropic", err)
}
