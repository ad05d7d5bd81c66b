package discover

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"kinsync/internal/model"
)

// Limiter enforces each provider's minimum inter-request interval. Every
// provider gets its own token bucket with burst 1, so the configured
// rate_limit_ms is a hard floor between consecutive fetches regardless of
// how the traversal is shaped.
type Limiter struct {
	mu       sync.Mutex
	limiters map[model.Provider]*rate.Limiter
	cfg      *model.Config
}

// NewLimiter creates a limiter from configuration.
func NewLimiter(cfg *model.Config) *Limiter {
	return &Limiter{
		limiters: make(map[model.Provider]*rate.Limiter),
		cfg:      cfg,
	}
}

// Wait blocks until the provider's rate limit clears or the context ends.
func (l *Limiter) Wait(ctx context.Context, provider model.Provider) error {
	limiter, err := l.limiterFor(provider)
	if err != nil {
		return err
	}
	return limiter.Wait(ctx)
}

func (l *Limiter) limiterFor(provider model.Provider) (*rate.Limiter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[provider]; ok {
		return limiter, nil
	}
	pcfg, ok := l.cfg.ProviderConfigFor(provider)
	if !ok {
		return nil, fmt.Errorf("discover: no configuration for provider %q", provider)
	}
	limiter := rate.NewLimiter(rate.Every(pcfg.RateLimit()), 1)
	l.limiters[provider] = limiter
	return limiter, nil
}
