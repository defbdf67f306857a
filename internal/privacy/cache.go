package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/logger"
)

// MappingStore persists replacement mappings beyond a single process. Keys are
// opaque digests and never contain the original value. PutIfAbsent returns the
// value that ends up stored, which is the existing one if another writer won.
type MappingStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	PutIfAbsent(ctx context.Context, key, value string) (string, error)
	Close() error
}

// Entry is one memoized replacement. Entries are never mutated once created.
type Entry struct {
	Replacement string
	Type        PIIType
	CreatedAt   time.Time
}

// CacheOptions configures a ConsistencyCache.
type CacheOptions struct {
	// Enabled turns memoization on. When off every call produces a fresh value.
	Enabled bool
	// Seed makes replacements reproducible across instances and runs.
	Seed *int64
	// Store optionally shares mappings between processes.
	Store MappingStore
	Clock func() time.Time
}

type pendingEntry struct {
	done  chan struct{}
	value string
	ok    bool
}

// ConsistencyCache maps (type, normalized original) to a replacement so repeated
// values are replaced identically. It is safe for concurrent use; concurrent
// callers asking for the same key observe one value.
type ConsistencyCache struct {
	gen     *Generator
	logger  *logger.Logger
	enabled bool
	seed    uint64
	store   MappingStore
	now     func() time.Time

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]*pendingEntry
	calls    atomic.Uint64
}

// NewConsistencyCache creates a cache backed by gen.
func NewConsistencyCache(gen *Generator, opts CacheOptions, log *logger.Logger) *ConsistencyCache {
	c := &ConsistencyCache{
		gen:      gen,
		logger:   log,
		enabled:  opts.Enabled,
		store:    opts.Store,
		now:      opts.Clock,
		entries:  make(map[string]Entry),
		inflight: make(map[string]*pendingEntry),
	}
	if opts.Seed != nil {
		c.seed = uint64(*opts.Seed)
	} else {
		c.seed = rand.Uint64()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func normalize(t PIIType, value string) string {
	value = strings.TrimSpace(value)
	if t == TypeEmail {
		value = strings.ToLower(value)
	}
	return value
}

func cacheKey(t PIIType, normalized string) string {
	return string(t) + "\x00" + normalized
}

// storeKey hashes the cache key so backing stores never hold original values.
func storeKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// rngFor derives a generator seeded by the cache seed, the type, the normalized
// value and salt.
func (c *ConsistencyCache) rngFor(t PIIType, normalized string, salt uint64) *rand.Rand {
	var buf [8]byte
	d := xxhash.New()
	binary.LittleEndian.PutUint64(buf[:], c.seed)
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(string(t))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(normalized)
	binary.LittleEndian.PutUint64(buf[:], salt)
	_, _ = d.Write(buf[:])
	hi := d.Sum64()
	_, _ = d.WriteString("\x01")
	return rand.New(rand.NewPCG(hi, d.Sum64()))
}

// GetOrCreate returns the replacement for original, generating and memoizing it
// on first sight. Whitespace around original is carried over unchanged. ctx
// only bounds backing store calls; store failures fall back to local generation.
func (c *ConsistencyCache) GetOrCreate(ctx context.Context, t PIIType, original string) string {
	lead, core, trail := splitSpace(original)
	normalized := normalize(t, core)

	if !c.enabled {
		rng := c.rngFor(t, normalized, c.calls.Add(1))
		return lead + c.gen.Generate(rng, t, core) + trail
	}

	key := cacheKey(t, normalized)
	for {
		if value, ok := c.getOrCreate(ctx, t, key, normalized, core); ok {
			return lead + value + trail
		}
	}
}

// getOrCreate reports false when it waited on another caller whose generation
// failed without publishing a value; the caller then tries again.
func (c *ConsistencyCache) getOrCreate(ctx context.Context, t PIIType, key, normalized, core string) (string, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.Replacement, true
	}
	if p, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-p.done
		return p.value, p.ok
	}
	p := &pendingEntry{done: make(chan struct{})}
	c.inflight[key] = p
	c.mu.Unlock()

	// A panicking generator must not leave waiters blocked on p.done.
	defer func() {
		c.mu.Lock()
		if p.ok {
			c.entries[key] = Entry{Replacement: p.value, Type: t, CreatedAt: c.now()}
		}
		delete(c.inflight, key)
		c.mu.Unlock()
		close(p.done)
	}()

	p.value = c.create(ctx, t, key, normalized, core)
	p.ok = true
	return p.value, true
}

func (c *ConsistencyCache) create(ctx context.Context, t PIIType, key, normalized, core string) string {
	var sk string
	if c.store != nil {
		sk = storeKey(key)
		stored, ok, err := c.store.Get(ctx, sk)
		if err != nil {
			c.logger.Warn("Mapping store read failed, using local cache",
				zap.String("pii_type", string(t)),
				zap.Error(err),
			)
		} else if ok {
			return stored
		}
	}

	value := c.gen.Generate(c.rngFor(t, normalized, 0), t, core)

	if c.store != nil {
		winner, err := c.store.PutIfAbsent(ctx, sk, value)
		if err != nil {
			c.logger.Warn("Mapping store write failed, using local cache",
				zap.String("pii_type", string(t)),
				zap.Error(err),
			)
		} else if winner != "" {
			value = winner
		}
	}
	return value
}

// Lookup returns the memoized entry for original without creating one.
func (c *ConsistencyCache) Lookup(t PIIType, original string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(t, normalize(t, original))]
	return e, ok
}

// Len returns the number of memoized entries.
func (c *ConsistencyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all local entries. Entries in a backing store are kept.
func (c *ConsistencyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Close releases the backing store, if any.
func (c *ConsistencyCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// MemoryStore is an in-process MappingStore, mainly useful to share mappings
// between several Protectors in one process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) PutIfAbsent(_ context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		return existing, nil
	}
	m.data[key] = value
	return value, nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored mappings.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
