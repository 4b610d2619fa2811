// Package openai adapts domain.ChatRequest/ChatResponse/ChatChunk to
// OpenAI's Chat Completions wire format (spec.md §4.2 Adapter A), grounded
// on the go-openai SDK the way the teacher's own OpenAI provider uses it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/providers"
)

// Adapter implements providers.ChatProvider for OpenAI's Chat Completions API.
type Adapter struct {
	client *openai.Client
	cfg    providers.Config
}

// New creates a Chat Completions adapter. An empty APIKey is accepted so the
// zero value can be constructed before a key is known; Chat/ChatStream then
// fail with ErrCodeAuthentication rather than panicking.
func New(cfg providers.Config) *Adapter {
	cfg = cfg.WithDefaults()
	a := &Adapter{cfg: cfg}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}
		a.client = openai.NewClientWithConfig(clientCfg)
	}
	return a
}

func (a *Adapter) Name() string            { return "openai" }
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
	if a.client == nil {
		return nil, domain.NewDomainError(domain.ErrCodeAuthentication, "openai: no API key configured")
	}

	wireReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var stream *openai.ChatCompletionStream
	retryErr := providers.Retry(ctx, a.cfg, a.isRetryable, func() error {
		s, err := a.client.CreateChatCompletionStream(ctx, wireReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if retryErr != nil {
		return nil, a.wrapError(retryErr)
	}

	out := make(chan domain.ChatChunk)
	go a.pump(ctx, stream, out)
	return out, nil
}

func (a *Adapter) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- domain.ChatChunk) {
	defer close(out)
	defer stream.Close()

	acc := providers.NewToolCallAccumulator()

	for {
		select {
		case <-ctx.Done():
			out <- domain.ChatChunk{Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !acc.Empty() {
					out <- domain.ChatChunk{ToolCallDeltas: acc.FinishDeltas(), FinishReason: domain.FinishToolCalls}
				}
				return
			}
			out <- domain.ChatChunk{Err: a.wrapError(err)}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		chunk := domain.ChatChunk{}
		if delta.Content != "" {
			chunk.ContentDelta = delta.Content
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			// Fragments stay in the accumulator; the completed calls go out
			// once, as Done deltas, when the stream ends.
			acc.Add(domain.ToolCallDelta{Index: index, ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		if choice.FinishReason != "" {
			chunk.FinishReason = domain.FinishReason(choice.FinishReason)
		}
		if resp.Usage != nil {
			chunk.Usage = &domain.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if chunk.ContentDelta != "" || len(chunk.ToolCallDeltas) > 0 || chunk.FinishReason != "" || chunk.Usage != nil {
			out <- chunk
		}
	}
}

func (a *Adapter) buildRequest(req *domain.ChatRequest) (openai.ChatCompletionRequest, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, domain.WrapDomainError(domain.ErrCodeSerialization, err)
	}

	wireReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		wireReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		wireReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		wireReq.TopP = float32(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		wireReq.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		wireReq.PresencePenalty = float32(*req.PresencePenalty)
	}
	if len(req.StopSequences) > 0 {
		wireReq.Stop = req.StopSequences
	}
	if len(req.Tools) > 0 {
		wireReq.Tools = convertTools(req.Tools)
	}
	switch req.ToolChoice.Mode {
	case domain.ToolChoiceNone:
		wireReq.ToolChoice = "none"
	case domain.ToolChoiceRequired:
		wireReq.ToolChoice = "required"
	case domain.ToolChoiceFunction:
		wireReq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ToolChoice.Name},
		}
	}
	if req.UserID != "" {
		wireReq.User = req.UserID
	}
	return wireReq, nil
}

func convertMessages(messages []domain.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		wireMsg := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, err := argsToJSONString(tc.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("tool call %s: %w", tc.ID, err)
			}
			wireMsg.ToolCalls = append(wireMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, wireMsg)
	}
	return out, nil
}

// argsToJSONString renders the fragments the wire format expects a tool
// call's arguments to already be (a single JSON-object string), mirroring
// the coercion rules the executor applies on the way back in.
func argsToJSONString(fragments []string) (string, error) {
	switch len(fragments) {
	case 0:
		return "{}", nil
	case 1:
		return fragments[0], nil
	default:
		encoded, err := json.Marshal(fragments)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

func convertTools(tools []domain.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Parameters) > 0 {
			params = json.RawMessage(t.Parameters)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func (a *Adapter) isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

func (a *Adapter) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		de := &domain.DomainError{Message: apiErr.Message, Cause: err}
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			de.Code = domain.ErrCodeAuthentication
		case 429:
			de.Code = domain.ErrCodeRateLimited
		case 500, 502, 503, 504:
			de.Code = domain.ErrCodeServiceUnavailable
		case 400, 404, 422:
			de.Code = domain.ErrCodeInvalidRequest
		default:
			de.Code = domain.ErrCodeModelError
		}
		return de
	}
	return providers.WrapTransportError("openai", err)
}
