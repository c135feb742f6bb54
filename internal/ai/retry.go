package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Completer is anything that can answer a chat prompt.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

type RetryConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	AttemptTimeout    time.Duration
	RequestsPerSecond float64
}

// RetryingCompleter retries transient failures with exponential backoff.
// Each attempt is bounded by AttemptTimeout.
type RetryingCompleter struct {
	next    Completer
	cfg     RetryConfig
	limiter *rate.Limiter
}

func NewRetryingCompleter(next Completer, cfg RetryConfig) *RetryingCompleter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 90 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &RetryingCompleter{next: next, cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RetryingCompleter) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.BaseDelay << (attempt - 1)
			log.Printf("ai: completion attempt %d failed, retrying in %s: %v", attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("completion aborted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("completion aborted: %w", err)
		}

		out, err := r.attempt(ctx, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !Retryable(err) {
			break
		}
	}
	return "", lastErr
}

func (r *RetryingCompleter) attempt(ctx context.Context, messages []ChatMessage) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()
	return r.next.Complete(attemptCtx, messages)
}

// Retryable reports whether err is a rate limit, a server-side failure or a timeout.
func Retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
