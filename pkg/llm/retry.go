package llm

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	apperrors "github.com/builder6/builder6/pkg/errors"

	"github.com/builder6/builder6/internal/metrics"
)

// maxJitter is the upper bound of the uniform jitter added to each
// computed backoff delay.
const maxJitter = time.Second

// isRetryable reports whether the upstream error is a transient failure
// worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "503") ||
		strings.Contains(msg, "Service Unavailable") ||
		strings.Contains(msg, "overloaded")
}

// withRetry runs fn with exponential backoff on transient upstream errors.
// Delay i is min(initial*factor^i, max) plus uniform jitter in [0, 1s); a
// preventive delay of min(100ms, delay) precedes each retry. After
// maxRetries retries the last error surfaces as ModelUpstreamFatal.
func (r *Runner) withRetry(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	cfg := r.cfg
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(cfg.InitialRetryDelay) *
				math.Pow(cfg.RetryBackoffFactor, float64(attempt-1)))
			if delay > cfg.MaxRetryDelay {
				delay = cfg.MaxRetryDelay
			}
			preventive := 100 * time.Millisecond
			if delay < preventive {
				preventive = delay
			}
			jitter := time.Duration(rand.Int63n(int64(maxJitter)))

			metrics.ModelRetries.WithLabelValues(r.provider.Name()).Inc()
			r.log.V(1).Info("retrying model call",
				"attempt", attempt, "delay", delay, "jitter", jitter)
			if err := r.sleep(ctx, preventive+delay+jitter); err != nil {
				return nil, err
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, apperrors.New(apperrors.ErrCodeModelUpstreamFatal,
				"model upstream call failed", err)
		}
	}

	return nil, apperrors.New(apperrors.ErrCodeModelUpstreamFatal,
		"model upstream unavailable after retries", lastErr)
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
