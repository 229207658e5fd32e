package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type stubProvider struct {
	failures int
	calls    int
}

func (s *stubProvider) SendMessage(_ context.Context, _ *Request) (*Response, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("upstream unavailable")
	}
	return &Response{Content: "ok", StopReason: "end_turn"}, nil
}

func (s *stubProvider) Name() string { return "stub" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryProvider_SucceedsAfterFailures(t *testing.T) {
	stub := &stubProvider{failures: 2}
	p := NewRetryProvider(stub, discardLogger(), WithInitialBackoff(time.Millisecond))

	resp, err := p.SendMessage(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected content ok, got %q", resp.Content)
	}
	if stub.calls != 3 {
		t.Errorf("expected 3 calls, got %d", stub.calls)
	}
}

func TestRetryProvider_ExhaustsAttempts(t *testing.T) {
	stub := &stubProvider{failures: 10}
	p := NewRetryProvider(stub, discardLogger(),
		WithMaxAttempts(2),
		WithInitialBackoff(time.Millisecond),
	)

	_, err := p.SendMessage(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if stub.calls != 2 {
		t.Errorf("expected 2 calls, got %d", stub.calls)
	}
}

func TestRetryProvider_ContextCancelled(t *testing.T) {
	stub := &stubProvider{failures: 10}
	p := NewRetryProvider(stub, discardLogger(), WithInitialBackoff(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.SendMessage(ctx, &Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", stub.calls)
	}
}

func TestFallbackProvider_TriesNext(t *testing.T) {
	failing := &stubProvider{failures: 10}
	healthy := &stubProvider{}
	p := NewFallbackProvider([]Provider{failing, healthy}, discardLogger())

	resp, err := p.SendMessage(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected content ok, got %q", resp.Content)
	}
	if failing.calls != 1 || healthy.calls != 1 {
		t.Errorf("expected one call each, got %d and %d", failing.calls, healthy.calls)
	}
}
