package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/soundprediction/reconcile/pkg/types"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first
	// (default: 3).
	MaxAttempts int
	// InitialDelay is the backoff before the first retry (default: 1s).
	InitialDelay time.Duration
	// MaxDelay caps the backoff between retries (default: 30s).
	MaxDelay time.Duration
	// BackoffMultiplier grows the backoff per retry (default: 2.0).
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryClient wraps a Client and retries transient failures with jittered
// exponential backoff. Non-retryable errors fail immediately.
type RetryClient struct {
	client Client
	config *RetryConfig
	logger *slog.Logger
}

var _ Client = (*RetryClient)(nil)

// NewRetryClient creates a retrying wrapper around client.
func NewRetryClient(client Client, config *RetryConfig, logger *slog.Logger) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{client: client, config: config, logger: logger}
}

// Chat implements Client with retry logic.
func (r *RetryClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.backoff(attempt)
			r.logger.Debug("retrying chat completion",
				"attempt", attempt, "max_attempts", r.config.MaxAttempts, "backoff", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		resp, err := r.client.Chat(ctx, messages)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// Close implements Client.
func (r *RetryClient) Close() error {
	return r.client.Close()
}

// backoff returns the sleep before the given attempt: exponential in the
// retry count, with up to 50% random jitter, capped at MaxDelay.
func (r *RetryClient) backoff(attempt int) time.Duration {
	base := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-2))
	jittered := base + rand.Float64()*base*0.5
	if jittered > float64(r.config.MaxDelay) {
		jittered = float64(r.config.MaxDelay)
	}
	return time.Duration(jittered)
}

// isRetryableError reports whether the failure is worth another attempt:
// rate limits, timeouts, and 5xx-style transport failures.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	if errors.Is(err, ErrRateLimit) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"500", "internal server error",
		"502", "bad gateway",
		"503", "service unavailable",
		"504", "gateway timeout",
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"rate limit",
		"too many requests",
		"429",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	// Errors carrying an HTTP status, such as the OpenAI SDK's APIError.
	type httpErrorWithStatusCode interface {
		HTTPStatusCode() int
	}
	if httpErr, ok := err.(httpErrorWithStatusCode); ok {
		statusCode := httpErr.HTTPStatusCode()
		if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
			return true
		}
	}

	return false
}
