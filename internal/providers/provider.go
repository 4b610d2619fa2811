// Package providers adapts the neutral domain.ChatRequest/ChatResponse/
// ChatChunk model (spec.md §4.2) onto three concrete wire formats: OpenAI
// Chat Completions, OpenAI Responses, and Anthropic Messages. Every adapter
// satisfies the Provider interface so the chat loop never branches on which
// backend it is talking to.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/neuromance/neuromance-go/internal/backoff"
	"github.com/neuromance/neuromance-go/internal/domain"
)

// ChatProvider is satisfied by each of the three adapters in this module.
type ChatProvider interface {
	// Name identifies the provider for logging and error wrapping (e.g. "openai", "anthropic").
	Name() string

	// SupportsTools reports whether the provider accepts tool definitions at all.
	SupportsTools() bool

	// SupportsStreaming reports whether ChatStream is implemented; it always
	// is for the three adapters in this module, but the method exists so a
	// future non-streaming-only adapter doesn't need a fake channel.
	SupportsStreaming() bool

	// Chat performs a single non-streaming completion.
	Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error)

	// ChatStream performs a streaming completion. The returned error reports
	// only request-setup failures (auth, a malformed request, exhausted
	// retries before the stream ever started). Once the channel is
	// returned, a failure that happens mid-stream (a transport error, a
	// provider-sent error event) is reported by the final chunk carrying a
	// non-nil Err instead; the channel is always closed after that chunk.
	ChatStream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.ChatChunk, error)
}

// Config holds the fields common to every adapter's construction. Providers
// embed this rather than repeating APIKey/BaseURL/MaxRetries/RetryDelay.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration

	// HTTPClient, when set, replaces the adapter's default http.Client.
	// internal/convmgr sets this to a client carrying internal/proxy's
	// RoundTripper when a model profile names a tokenizer proxy (spec.md §6
	// "optional proxy mode").
	HTTPClient *http.Client
}

// WithDefaults fills zero-valued fields with the same defaults the teacher's
// provider constructors use (3 retries, 1s base delay).
func (c Config) WithDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Retry runs op, retrying up to cfg.MaxRetries times with exponential
// backoff while classify(err) reports true. Sleeps use
// internal/backoff.ProviderPolicy (1s/30s/2.0/20% jitter, spec.md §4.2),
// scaled by cfg.RetryDelay when it overrides the 1s default. It returns the
// last error if retries are exhausted, or ctx.Err() if the context is
// cancelled mid-wait.
func Retry(ctx context.Context, cfg Config, classify func(error) bool, op func() error) error {
	policy := backoff.ProviderPolicy()
	if cfg.RetryDelay > 0 {
		policy.InitialMs = float64(cfg.RetryDelay / time.Millisecond)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if classify == nil || !classify(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}
		if err := backoff.SleepWithBackoff(ctx, policy, attempt+1); err != nil {
			return err
		}
	}
	return lastErr
}

// CollectStream drains a ChatStream channel into a single ChatResponse,
// letting an adapter implement Chat() as "stream it and collect" the way
// the teacher's non-streaming call sites build a full response from
// accumulated chunks rather than duplicating request logic.
func CollectStream(req *domain.ChatRequest, chunks <-chan domain.ChatChunk) (*domain.ChatResponse, error) {
	var content strings.Builder
	var reasoning strings.Builder
	acc := NewToolCallAccumulator()
	var finish domain.FinishReason
	var usage *domain.Usage

	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		content.WriteString(chunk.ContentDelta)
		reasoning.WriteString(chunk.ReasoningDelta)
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

	msg, err := domain.NewMessage("", domain.RoleAssistant, content.String())
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
	}
	if calls := acc.Finish(); len(calls) > 0 {
		if err := msg.WithToolCalls(calls); err != nil {
			return nil, domain.WrapDomainError(domain.ErrCodeInternal, err)
		}
	}
	if reasoning.Len() > 0 {
		msg.Reasoning = &domain.Reasoning{Text: reasoning.String()}
	}

	resp := &domain.ChatResponse{
		Message:      *msg,
		Model:        req.Model,
		FinishReason: finish,
		CreatedAt:    time.Now(),
	}
	if usage != nil {
		resp.Usage = *usage
	}
	return resp, nil
}

// WrapTransportError classifies a low-level transport failure (the request
// never reached the provider, or no HTTP response was returned at all) into
// the domain taxonomy using substring matching, mirroring how the teacher's
// isRetryableError functions work before a structured provider error exists.
func WrapTransportError(provider string, err error) *domain.DomainError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "no such host", "eof"} {
		if strings.Contains(msg, s) {
			return domain.WrapDomainError(domain.ErrCodeServiceUnavailable, fmt.Errorf("%s: %w", provider, err))
		}
	}
	return domain.WrapDomainError(domain.ErrCodeInternal, fmt.Errorf("%s: %w", provider, err))
}
