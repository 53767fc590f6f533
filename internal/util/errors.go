package util

import (
	"errors"
	"fmt"
)

var (
	// ErrContentUnavailable means no readable text could be found for a paper.
	ErrContentUnavailable = errors.New("no readable content for this paper")
	// ErrConfigMissing means an endpoint or model has not been configured.
	ErrConfigMissing = errors.New("model endpoint is not configured")
	// ErrUpstream wraps HTTP and decode failures from the model backends.
	ErrUpstream = errors.New("upstream request failed")

	ErrNotFound = errors.New("not found")
)

// UpstreamError carries the status and body of a failed backend call.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("%s error %d: %s", e.Op, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }
