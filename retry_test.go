package depth

import (
	"context"
	"testing"
	"time"
)

func TestRetryRecoversFromTransientError(t *testing.T) {
	p := &mockProvider{
		responses: []ChatResponse{{}, {Content: "recovered"}},
		errs:      []error{&ErrHTTP{Status: 429, Body: "slow down"}, nil},
	}
	r := WithRetry(p, RetryBaseDelay(time.Millisecond))

	resp, err := r.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if p.callCount() != 2 {
		t.Errorf("calls = %d, want 2", p.callCount())
	}
}

func TestRetryDoesNotRetryClientErrors(t *testing.T) {
	p := &mockProvider{
		responses: []ChatResponse{{}},
		errs:      []error{&ErrHTTP{Status: 400, Body: "bad request"}},
	}
	r := WithRetry(p, RetryBaseDelay(time.Millisecond))

	_, err := r.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("want error")
	}
	if p.callCount() != 1 {
		t.Errorf("calls = %d, want 1", p.callCount())
	}
}

func TestRetryDoesNotRetryTokenLimit(t *testing.T) {
	// A token-limit failure wrapped in a retryable status must still not be
	// retried: the same oversized request can never succeed.
	p := &mockProvider{
		responses: []ChatResponse{{}},
		errs:      []error{&ErrTokenLimit{Model: "m", Err: &ErrHTTP{Status: 429, Body: "context length exceeded"}}},
	}
	r := WithRetry(p, RetryBaseDelay(time.Millisecond))

	_, err := r.Chat(context.Background(), ChatRequest{})
	if !IsTokenLimit(err) {
		t.Fatalf("err = %v, want token-limit", err)
	}
	if p.callCount() != 1 {
		t.Errorf("calls = %d, want 1", p.callCount())
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	e := &ErrHTTP{Status: 503, Body: "unavailable"}
	p := &mockProvider{
		responses: []ChatResponse{{}, {}, {}},
		errs:      []error{e, e, e},
	}
	r := WithRetry(p, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	_, err := r.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if p.callCount() != 3 {
		t.Errorf("calls = %d, want 3", p.callCount())
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	err := &ErrHTTP{Status: 429, RetryAfter: time.Minute}
	if d := retryDelay(time.Millisecond, 0, err); d < time.Minute {
		t.Errorf("delay = %v, want at least the Retry-After floor", d)
	}
	// Without Retry-After the exponential backoff governs.
	if d := retryDelay(time.Second, 1, &ErrHTTP{Status: 429}); d < 2*time.Second {
		t.Errorf("delay = %v, want >= 2s for attempt 1", d)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := ParseRetryAfter("30"); d != 30*time.Second {
		t.Errorf("delta-seconds: %v", d)
	}
	if d := ParseRetryAfter(""); d != 0 {
		t.Errorf("empty: %v", d)
	}
	if d := ParseRetryAfter("garbage"); d != 0 {
		t.Errorf("unparseable: %v", d)
	}
	future := time.Now().Add(90 * time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	if d := ParseRetryAfter(future); d < 80*time.Second || d > 90*time.Second {
		t.Errorf("http-date: %v", d)
	}
	past := time.Now().Add(-time.Hour).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	if d := ParseRetryAfter(past); d != 0 {
		t.Errorf("past http-date: %v", d)
	}
}

func TestRetryTimeout(t *testing.T) {
	e := &ErrHTTP{Status: 503, Body: "unavailable"}
	p := &mockProvider{respond: func(ChatRequest) (ChatResponse, error) {
		return ChatResponse{}, e
	}}
	r := WithRetry(p, RetryMaxAttempts(10), RetryBaseDelay(50*time.Millisecond), RetryTimeout(80*time.Millisecond))

	start := time.Now()
	_, err := r.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("want error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("retry loop ignored the overall timeout: %v", elapsed)
	}
}
