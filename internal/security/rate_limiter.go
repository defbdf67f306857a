// Package security protects the HTTP surface from request floods.
package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
)

const idleCutoff = time.Hour

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	config  *config.SecurityConfig
	limit   rate.Limit
	burst   int
	clients map[string]*client
	mu      sync.Mutex
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.SecurityConfig) *RateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = max(1, cfg.RateLimit.RequestsPerMin)
	}
	return &RateLimiter{
		config:  cfg,
		limit:   rate.Limit(float64(cfg.RateLimit.RequestsPerMin) / 60.0),
		burst:   burst,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.RateLimit.Enabled {
		return true
	}
	return r.get(clientIP).AllowN(r.now(), 1)
}

// Remaining reports the tokens left for a client, or the burst for an unseen one.
func (r *RateLimiter) Remaining(clientIP string) float64 {
	r.mu.Lock()
	c, ok := r.clients[clientIP]
	r.mu.Unlock()
	if !ok {
		return float64(r.burst)
	}
	return c.limiter.TokensAt(r.now())
}

// Clients returns the number of tracked clients.
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *RateLimiter) get(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientIP]
	if !ok {
		c = &client{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = c
	}
	c.lastSeen = r.now()
	return c.limiter
}

// CleanupOldBuckets drops clients idle for longer than an hour
func (r *RateLimiter) CleanupOldBuckets() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idleCutoff)
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}

// StartCleanupRoutine cleans up idle clients until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets()
			}
		}
	}()
}
