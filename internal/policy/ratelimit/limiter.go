// Package ratelimit paces browser crawls with a token bucket per platform.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/creative-collector/internal/metrics"
)

// Limiter manages per-platform rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	overrides    map[string]Rule
	defaultRate  rate.Limit
	defaultBurst int
}

// Rule is a rate for one platform.
type Rule struct {
	RPS   float64
	Burst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// Platforms overrides the default per platform key.
	Platforms map[string]Rule
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func burstFor(b int) int {
	if b <= 0 {
		return 1
	}
	return b
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	overrides := make(map[string]Rule, len(cfg.Platforms))
	for k, v := range cfg.Platforms {
		overrides[k] = v
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		overrides:    overrides,
		defaultRate:  limitFor(cfg.DefaultRPS),
		defaultBurst: burstFor(cfg.DefaultBurst),
	}
}

func (l *Limiter) limiter(platform string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[platform]
	if ok {
		return limiter
	}
	if rule, ok := l.overrides[platform]; ok {
		limiter = rate.NewLimiter(limitFor(rule.RPS), burstFor(rule.Burst))
	} else {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	}
	l.limiters[platform] = limiter
	return limiter
}

// Wait blocks until a token is available for the platform, respecting the context.
func (l *Limiter) Wait(ctx context.Context, platform string) error {
	start := time.Now()
	if err := l.limiter(platform).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(platform, d)
	}
	return nil
}
