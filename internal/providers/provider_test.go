package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neuromance/neuromance-go/internal/domain"
)

func TestRetry_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	cfg := Config{MaxRetries: 3, RetryDelay: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), cfg, nil, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_StopsImmediatelyWhenNotRetryable(t *testing.T) {
	cfg := Config{MaxRetries: 3, RetryDelay: time.Millisecond}
	calls := 0
	sentinel := errors.New("boom")
	err := Retry(context.Background(), cfg, func(error) bool { return false }, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", calls)
	}
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxRetries: 3, RetryDelay: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), cfg, func(error) bool { return true }, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetry_ExhaustsAndReturnsLastError(t *testing.T) {
	cfg := Config{MaxRetries: 2, RetryDelay: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), cfg, func(error) bool { return true }, func() error {
		calls++
		return errors.New("still failing")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls != 3 { // initial attempt + 2 retries
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := Config{MaxRetries: 5, RetryDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, cfg, func(error) bool { return true }, func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWrapTransportError_ClassifiesTimeoutAsServiceUnavailable(t *testing.T) {
	err := WrapTransportError("openai", errors.New("net/http: request canceled (Client.Timeout exceeded)"))
	if domain.CodeOf(err) != domain.ErrCodeServiceUnavailable {
		t.Fatalf("expected ErrCodeServiceUnavailable, got %v", domain.CodeOf(err))
	}
}

func TestWrapTransportError_DefaultsToInternal(t *testing.T) {
	err := WrapTransportError("openai", errors.New("totally unclassified failure"))
	if domain.CodeOf(err) != domain.ErrCodeInternal {
		t.Fatalf("expected ErrCodeInternal, got %v", domain.CodeOf(err))
	}
}

func TestCollectStream_AssemblesResponseFromChunks(t *testing.T) {
	req := &domain.ChatRequest{Model: "gpt-4o"}
	chunks := make(chan domain.ChatChunk, 4)
	chunks <- domain.ChatChunk{ContentDelta: "Hello, "}
	chunks <- domain.ChatChunk{ContentDelta: "world"}
	chunks <- domain.ChatChunk{FinishReason: domain.FinishStop, Usage: &domain.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}}
	close(chunks)

	resp, err := CollectStream(req, chunks)
	if err != nil {
		t.Fatalf("CollectStream: %v", err)
	}
	if resp.Message.Content != "Hello, world" {
		t.Fatalf("unexpected content: %q", resp.Message.Content)
	}
	if resp.FinishReason != domain.FinishStop {
		t.Fatalf("unexpected finish reason: %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestCollectStream_AttachesMergedToolCalls(t *testing.T) {
	req := &domain.ChatRequest{Model: "gpt-4o"}
	chunks := make(chan domain.ChatChunk, 2)
	chunks <- domain.ChatChunk{ToolCallDeltas: []domain.ToolCallDelta{{Index: 0, ID: "call_1", Name: "get_weather", Arguments: `{"city":"NYC"}`, Done: true}}}
	chunks <- domain.ChatChunk{FinishReason: domain.FinishToolCalls}
	close(chunks)

	resp, err := CollectStream(req, chunks)
	if err != nil {
		t.Fatalf("CollectStream: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("expected 1 merged tool call, got %+v", resp.Message.ToolCalls)
	}
}

func TestCollectStream_PropagatesMidStreamError(t *testing.T) {
	req := &domain.ChatRequest{Model: "gpt-4o"}
	chunks := make(chan domain.ChatChunk, 2)
	chunks <- domain.ChatChunk{ContentDelta: "partial"}
	sentinel := domain.NewDomainError(domain.ErrCodeServiceUnavailable, "connection reset")
	chunks <- domain.ChatChunk{Err: sentinel}
	close(chunks)

	_, err := CollectStream(req, chunks)
	if err != sentinel {
		t.Fatalf("expected the chunk's error back unchanged, got %v", err)
	}
}
