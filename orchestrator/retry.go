package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRetryBackoff is the delay before the single retry attempt that
// KindSTTTransient/KindLLMTransient failures get before escalating to fatal.
const DefaultRetryBackoff = 250 * time.Millisecond

// providerLimiters rate-limits retry attempts per provider ID, so a
// provider that is flapping (and whose every call fails transiently)
// cannot be retried into a request storm by many concurrent sessions.
var providerLimiters = struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}{m: make(map[string]*rate.Limiter)}

func limiterFor(providerID string) *rate.Limiter {
	providerLimiters.mu.Lock()
	defer providerLimiters.mu.Unlock()
	l, ok := providerLimiters.m[providerID]
	if !ok {
		l = rate.NewLimiter(rate.Every(100*time.Millisecond), 5)
		providerLimiters.m[providerID] = l
	}
	return l
}

// withRetry runs fn once, and if it fails, waits for both the provider's
// rate limiter and a fixed backoff before running it exactly once more.
// It returns the second attempt's result whether or not that one also
// fails; callers escalate a persistent failure to fatal themselves.
func withRetry(ctx context.Context, providerID string, fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}

	if err := limiterFor(providerID).Wait(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(DefaultRetryBackoff):
	}

	return fn()
}
