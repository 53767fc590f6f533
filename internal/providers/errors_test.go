package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"paperchat/internal/util"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota": ErrorQuota,
		"429 rate":           ErrorRate,
		"context too long":   ErrorContext,
		"timeout":            ErrorTransient,
		"bad request":        ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestClassifyUpstreamStatus(t *testing.T) {
	if got := ClassifyError(&util.UpstreamError{Op: "chat", Status: 429, Body: "slow down"}); got != ErrorRate {
		t.Fatalf("429: got %s", got)
	}
	if got := ClassifyError(&util.UpstreamError{Op: "chat", Status: 503, Body: "x"}); got != ErrorTransient {
		t.Fatalf("503: got %s", got)
	}
	if got := ClassifyError(fmt.Errorf("wrap: %w", util.ErrConfigMissing)); got != ErrorConfig {
		t.Fatalf("config: got %s", got)
	}
}

func TestWithRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: time.Second}, func() error {
		calls++
		return &util.UpstreamError{Op: "chat", Status: 400, Body: "bad"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one call and an error, got calls=%d err=%v", calls, err)
	}
}

func TestWithRetryRetriesRateLimit(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: time.Second}, func() error {
		calls++
		if calls < 3 {
			return &util.UpstreamError{Op: "chat", Status: 429, Body: "rate"}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got calls=%d err=%v", calls, err)
	}
}
