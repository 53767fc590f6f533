package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"paperchat/internal/util"

	"github.com/cenkalti/backoff/v4"
)

type ErrorType string

const (
	ErrorConfig    ErrorType = "config"
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, util.ErrConfigMissing) {
		return ErrorConfig
	}
	var up *util.UpstreamError
	if errors.As(err, &up) {
		switch {
		case up.Status == http.StatusTooManyRequests && strings.Contains(strings.ToLower(up.Body), "insufficient_quota"):
			return ErrorQuota
		case up.Status == http.StatusTooManyRequests:
			return ErrorRate
		case up.Status >= 500:
			return ErrorTransient
		}
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"), strings.Contains(e, "connection reset"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// RetryPolicy bounds the backoff used for rate-limited and transient failures.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

func withRetry(ctx context.Context, p RetryPolicy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		switch ClassifyError(err) {
		case ErrorRate, ErrorTransient:
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(b, ctx))
}
