package responses

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter implements providers.ChatProvider against OpenAI's Responses API.
type Adapter struct {
	httpClient *http.Client
	cfg        providers.Config
}

// New constructs an Adapter. An empty APIKey is accepted so callers can
// exercise request building without a live credential; Chat/ChatStream then
// fail with ErrCodeAuthentication instead of sending an unauthenticated
// request.
func New(cfg providers.Config) *Adapter {
	cfg = cfg.WithDefaults()
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Adapter{httpClient: httpClient, cfg: cfg}
}

func (a *Adapter) Name() string             { return "openai-responses" }
func (a *Adapter) SupportsTools() bool      { return true }
func (a *Adapter) SupportsStreaming() bool  { return true }

// Chat sends a non-streaming request and waits for the complete response.
func (a *Adapter) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeAuthentication, "openai-responses: no API key configured")
	}
	wireReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	wireReq.Stream = boolPtr(false)

	var resp *Response
	err = providers.Retry(ctx, a.cfg, a.isRetryable, func() error {
		r, rerr := a.send(ctx, wireReq)
		if rerr != nil {
			return rerr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return convertResponse(resp)
}

// ChatStream sends a streaming request and returns a channel of incremental
// chunks, closed when the response completes or the stream errors.
func (a *Adapter) ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.ChatChunk, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeAuthentication, "openai-responses: no API key configured")
	}
	wireReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	wireReq.Stream = boolPtr(true)

	var body io.ReadCloser
	err = providers.Retry(ctx, a.cfg, a.isRetryable, func() error {
		b, rerr := a.sendStream(ctx, wireReq)
		if rerr != nil {
			return rerr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ChatChunk)
	go a.pump(body, out)
	return out, nil
}

// buildRequest converts a neutral ChatRequest into the Responses API's
// instructions/input/previous_response_id shape.
func (a *Adapter) buildRequest(req *domain.ChatRequest) (*Request, error) {
	wireReq := &Request{
		Model:           modelOrDefault(req.Model, a.cfg.DefaultModel),
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
	}

	if system := collapsedInstructions(req.Messages); system != "" {
		wireReq.Instructions = &system
	}
	if prev, ok := req.Metadata["previous_response_id"].(string); ok && prev != "" {
		wireReq.PreviousResponseID = &prev
	}

	input, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	wireReq.Input = input

	if len(req.Tools) > 0 {
		wireReq.Tools = convertTools(req.Tools)
	}
	if req.EnableThinking {
		wireReq.Reasoning = &ReasoningConfig{Effort: ReasoningEffortHigh}
	}
	return wireReq, nil
}

// collapsedInstructions joins every system-role message's content into the
// Responses API's single instructions string, mirroring the Anthropic
// adapter's system-message collapsing since this API also has no per-turn
// system role.
func collapsedInstructions(messages []domain.Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// convertMessages maps non-system messages to input items: plain
// user/assistant text, assistant tool calls replayed as function_call
// items, and tool results as function_call_output items. A tool-role
// message with no ToolCallID is skipped since the Responses API has no
// way to attach its output to a prior call.
func convertMessages(messages []domain.Message) ([]InputItem, error) {
	var items []InputItem
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			continue
		case domain.RoleTool:
			if msg.ToolCallID == "" {
				continue
			}
			items = append(items, InputItem{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: msg.Content,
			})
		case domain.RoleAssistant:
			if msg.Content != "" {
				items = append(items, InputItem{Type: "message", Role: ResponsesRoleAssistant, Content: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args, err := argsToJSONString(tc.Function.Arguments)
				if err != nil {
					return nil, domain.WrapDomainError(domain.ErrCodeSerialization, err)
				}
				items = append(items, InputItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: args,
				})
			}
		default:
			items = append(items, InputItem{Type: "message", Role: ResponsesRoleUser, Content: msg.Content})
		}
	}
	return items, nil
}

func argsToJSONString(fragments []string) (string, error) {
	switch len(fragments) {
	case 0:
		return "{}", nil
	case 1:
		return fragments[0], nil
	default:
		b, err := json.Marshal(fragments)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func convertTools(tools []domain.ToolDefinition) []ToolDef {
	out := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDef{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  json.RawMessage(t.Parameters),
		})
	}
	return out
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func boolPtr(b bool) *bool { return &b }

// send performs a non-streaming request and decodes the full response body.
func (a *Adapter) send(ctx context.Context, wireReq *Request) (*Response, error) {
	httpResp, err := a.do(ctx, wireReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.WrapTransportError("openai-responses", err)
	}
	if httpResp.StatusCode >= 400 {
		return nil, a.wrapHTTPError(httpResp.StatusCode, data)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}
	return &resp, nil
}

// sendStream performs a streaming request and returns the open response
// body for the SSE pump to consume; the caller is responsible for closing it.
func (a *Adapter) sendStream(ctx context.Context, wireReq *Request) (io.ReadCloser, error) {
	httpResp, err := a.do(ctx, wireReq)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode >= 400 {
		defer httpResp.Body.Close()
		data, _ := io.ReadAll(httpResp.Body)
		return nil, a.wrapHTTPError(httpResp.StatusCode, data)
	}
	return httpResp.Body, nil
}

func (a *Adapter) do(ctx context.Context, wireReq *Request) (*http.Response, error) {
	payload, err := json.Marshal(wireReq)
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}

	baseURL := a.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, providers.WrapTransportError("openai-responses", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	if *wireReq.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.WrapTransportError("openai-responses", err)
	}
	return httpResp, nil
}

// wrapHTTPError classifies a non-2xx Responses API response into the
// neutral error taxonomy, following the same status-to-code mapping as the
// Chat Completions and Anthropic adapters.
func (a *Adapter) wrapHTTPError(status int, body []byte) error {
	var payload struct {
		Error *ResponseError `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		message = payload.Error.Message
	}

	var code domain.ErrorCode
	switch {
	case status == 401 || status == 403:
		code = domain.ErrCodeAuthentication
	case status == 429:
		code = domain.ErrCodeRateLimited
	case status >= 500:
		code = domain.ErrCodeServiceUnavailable
	case status == 400 || status == 404 || status == 422:
		code = domain.ErrCodeInvalidRequest
	default:
		code = domain.ErrCodeModelError
	}
	return domain.NewDomainError(code, fmt.Sprintf("openai-responses: %s (status %d)", message, status))
}

// wrapStreamError classifies a response.failed/error event's payload into
// the neutral error taxonomy, the streaming counterpart of wrapHTTPError for
// a failure that only surfaces after the response already started.
func (a *Adapter) wrapStreamError(env streamEnvelope) error {
	message := "openai-responses: stream failed"
	if env.Error != nil && env.Error.Message != "" {
		message = fmt.Sprintf("openai-responses: %s", env.Error.Message)
	} else if env.Response != nil && env.Response.Error != nil && env.Response.Error.Message != "" {
		message = fmt.Sprintf("openai-responses: %s", env.Response.Error.Message)
	}
	return domain.NewDomainError(domain.ErrCodeModelError, message)
}

func (a *Adapter) isRetryable(err error) bool {
	code := domain.CodeOf(err)
	if code.IsRetryable() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

// convertResponse maps a complete, non-streamed Response into the neutral
// ChatResponse shape.
func convertResponse(resp *Response) (*domain.ChatResponse, error) {
	msg, err := domain.NewMessage("", domain.RoleAssistant, outputText(resp.Output))
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
	}

	var toolCalls []domain.ToolCall
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		toolCalls = append(toolCalls, domain.NewToolCall(item.CallID, item.Name, []string{item.Arguments}))
	}
	if len(toolCalls) > 0 {
		if err := msg.WithToolCalls(toolCalls); err != nil {
			return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
		}
	}

	out := &domain.ChatResponse{
		Message:      *msg,
		Model:        resp.Model,
		FinishReason: finishReason(resp.Status, resp.IncompleteDetails, len(toolCalls) > 0),
		ResponseID:   resp.ID,
	}
	if resp.Usage != nil {
		out.Usage = domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		if resp.Usage.OutputTokensDetails != nil {
			out.Usage.OutputDetail = &domain.OutputDetail{ReasoningTokens: resp.Usage.OutputTokensDetails.ReasoningTokens}
		}
	}
	return out, nil
}

func outputText(items []OutputItem) string {
	var b strings.Builder
	for _, item := range items {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// finishReason mirrors the original's status/incomplete/tool-call
// classification into the neutral domain.FinishReason taxonomy.
func finishReason(status string, incomplete *IncompleteDetails, hasToolCalls bool) domain.FinishReason {
	if hasToolCalls {
		return domain.FinishToolCalls
	}
	switch status {
	case "completed":
		return domain.FinishStop
	case "incomplete":
		if incomplete != nil && incomplete.Reason == "max_output_tokens" {
			return domain.FinishLength
		}
		return domain.FinishStop
	case "failed":
		return domain.FinishModelError
	default:
		return domain.FinishStop
	}
}

// pump reads an SSE response body event by event and converts each to zero
// or more domain.ChatChunk values, mirroring convert_stream_event_to_chunk:
// function_call_arguments.delta is only an accumulation fallback, the
// authoritative complete-arguments string comes from .done, and
// output_item.done is the last-resort finalization path if .done never
// fires for a given call.
func (a *Adapter) pump(body io.ReadCloser, out chan<- domain.ChatChunk) {
	defer close(out)
	defer body.Close()

	acc := providers.NewToolCallAccumulator()
	indexByCallID := make(map[string]int)
	nextIndex := 0
	indexFor := func(callID string) int {
		if idx, ok := indexByCallID[callID]; ok {
			return idx
		}
		idx := nextIndex
		indexByCallID[callID] = idx
		nextIndex++
		return idx
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		raw := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if raw == "[DONE]" {
			return
		}

		var env streamEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return
		}

		switch env.Type {
		case "response.output_item.added":
			if env.Item != nil && env.Item.Type == "function_call" {
				idx := indexFor(env.Item.CallID)
				acc.Add(domain.ToolCallDelta{Index: idx, ID: env.Item.CallID, Name: env.Item.Name})
			}
		case "response.output_text.delta":
			out <- domain.ChatChunk{ContentDelta: env.Delta}
		case "response.reasoning_summary_text.delta":
			out <- domain.ChatChunk{ReasoningDelta: env.Delta}
		case "response.function_call_arguments.delta":
			if env.CallID != "" {
				acc.Add(domain.ToolCallDelta{Index: indexFor(env.CallID), Arguments: env.Delta})
			}
		case "response.function_call_arguments.done":
			if env.CallID != "" {
				acc.SetArguments(indexFor(env.CallID), env.Arguments)
			}
		case "response.output_item.done":
			if env.Item != nil && env.Item.Type == "function_call" && env.Item.Arguments != "" {
				idx := indexFor(env.Item.CallID)
				acc.SetArguments(idx, env.Item.Arguments)
			}
		case "response.completed":
			var usage *domain.Usage
			if env.Response != nil && env.Response.Usage != nil {
				u := env.Response.Usage
				usage = &domain.Usage{PromptTokens: u.InputTokens, CompletionTokens: u.OutputTokens, TotalTokens: u.TotalTokens}
			}
			if !acc.Empty() {
				out <- domain.ChatChunk{ToolCallDeltas: acc.FinishDeltas(), FinishReason: domain.FinishToolCalls, Usage: usage}
				return
			}
			out <- domain.ChatChunk{FinishReason: domain.FinishStop, Usage: usage}
			return
		case "response.failed", "error":
			out <- domain.ChatChunk{FinishReason: domain.FinishModelError, Err: a.wrapStreamError(env)}
			return
		case "response.incomplete":
			finish := domain.FinishStop
			if env.Response != nil && env.Response.IncompleteDetails != nil && env.Response.IncompleteDetails.Reason == "max_output_tokens" {
				finish = domain.FinishLength
			}
			out <- domain.ChatChunk{FinishReason: finish}
			return
		default:
			// response.created/in_progress, content_part.added/done,
			// output_text.done, reasoning_summary_text.done: no chunk to emit.
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: lines and comments carry no payload we need.
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		out <- domain.ChatChunk{Err: providers.WrapTransportError("openai-responses", err)}
	}
}
