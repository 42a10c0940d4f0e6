// Package service holds the business rules that sit between HTTP handlers
// and the repositories: rating writes with their score recompute, comment
// threads, recommendations, admin analytics and password reset.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/bandou-movie/internal/validation"
)

// ErrUnavailable reports that a required backing service (Redis) is not
// configured or not reachable.
var ErrUnavailable = errors.New("service unavailable")

// ErrDelivery wraps failures of outbound email; no retry is attempted.
var ErrDelivery = errors.New("delivery failed")

// RateLimitedError tells the caller how long to wait before retrying.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry in %d seconds", e.RetryAfter())
}

// RetryAfter rounds Wait up to whole seconds, never below one.
func (e *RateLimitedError) RetryAfter() int {
	s := int((e.Wait + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func invalid(field, msg string) error {
	return validation.NewFieldError(field, msg)
}

// cleanText trims surrounding whitespace from user supplied text.
func cleanText(s string) string { return strings.TrimSpace(s) }
