// Package cache provides shared backends for replacement mappings.
//
// Keys handed to a store are already hashed by the consistency cache, so no
// backend ever sees an original value.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// Stats represents store usage statistics
type Stats struct {
	Backend     string  `json:"backend"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes,omitempty"`
}

// StatsReporter is implemented by stores that can describe themselves.
type StatsReporter interface {
	Stats(ctx context.Context) (*Stats, error)
}

// counters tracks lookup outcomes
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *counters) fill(s *Stats) {
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
}

// NewStore opens the backend selected by cfg.Backend.
func NewStore(cfg config.CacheConfig, log *logger.Logger) (privacy.MappingStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return privacy.NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg, log.Logger)
	case "bolt", "bbolt":
		return NewBoltStore(cfg.BoltPath, log.Logger)
	default:
		return nil, &privacy.ConfigurationError{
			Field: "cache.backend",
			Value: cfg.Backend,
			Err:   fmt.Errorf("supported backends: memory, redis, bolt"),
		}
	}
}

// Describe returns store statistics when the backend supports them.
func Describe(ctx context.Context, store privacy.MappingStore) (*Stats, error) {
	switch s := store.(type) {
	case StatsReporter:
		return s.Stats(ctx)
	case *privacy.MemoryStore:
		return &Stats{Backend: "memory", TotalKeys: int64(s.Len())}, nil
	default:
		return &Stats{Backend: "unknown"}, nil
	}
}
