package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterSettings configures token-bucket rate limiting per host.
type RateLimiterSettings struct {
	Requests int
	Window   time.Duration
}

// HostLimiter spaces requests to the same host: a minimum gap between
// consecutive requests plus an optional token bucket. Waits for one host
// never block fetches to other hosts.
type HostLimiter struct {
	gap         time.Duration
	rate        RateLimiterSettings
	rateEnabled bool

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter with a per-host gap and optional rate limit.
func NewHostLimiter(gap time.Duration, rateCfg RateLimiterSettings) *HostLimiter {
	l := &HostLimiter{gap: gap}
	if gap > 0 {
		l.last = make(map[string]time.Time)
	}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		l.rateEnabled = true
		l.rate = rateCfg
		l.limiters = make(map[string]*rate.Limiter)
		if l.last == nil {
			l.last = make(map[string]time.Time)
		}
	}
	return l
}

// Wait blocks until the host may be contacted again, or the context ends.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" {
		return nil
	}
	if l.gap <= 0 && !l.rateEnabled {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	var limiter *rate.Limiter
	now := time.Now()

	l.mu.Lock()
	if l.gap > 0 {
		if last, ok := l.last[host]; ok {
			if rest := last.Add(l.gap).Sub(now); rest > 0 {
				sleep = rest
			}
		}
	}
	if l.rateEnabled {
		limiter = l.hostLimiterLocked(host)
	}
	l.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	l.mu.Lock()
	if l.last != nil {
		l.last[host] = time.Now()
	}
	l.mu.Unlock()
	return nil
}

func (l *HostLimiter) hostLimiterLocked(host string) *rate.Limiter {
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	interval := l.rate.Window / time.Duration(l.rate.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	burst := l.rate.Requests
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Every(interval), burst)
	l.limiters[host] = limiter
	return limiter
}
