package privacy

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoyNativ-AI/pii-guard/internal/logger"
)

func newTestCache(t *testing.T, opts CacheOptions) *ConsistencyCache {
	t.Helper()
	return NewConsistencyCache(newTestGenerator(t, "en_US"), opts, logger.NewNop())
}

func seed(v int64) *int64 { return &v }

type failingStore struct{ calls int }

func (s *failingStore) Get(context.Context, string) (string, bool, error) {
	s.calls++
	return "", false, errors.New("connection refused")
}

func (s *failingStore) PutIfAbsent(context.Context, string, string) (string, error) {
	s.calls++
	return "", errors.New("connection refused")
}

func (s *failingStore) Close() error { return nil }

func TestConsistencyCache(t *testing.T) {
	ctx := context.Background()

	t.Run("same value same replacement", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: true})
		first := c.GetOrCreate(ctx, TypeEmail, "test@example.com")
		second := c.GetOrCreate(ctx, TypeEmail, "test@example.com")
		assert.Equal(t, first, second)
		assert.NotEqual(t, "test@example.com", first)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("email keys ignore case and surrounding space", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: true})
		a := c.GetOrCreate(ctx, TypeEmail, "Test@Example.com")
		b := c.GetOrCreate(ctx, TypeEmail, "test@example.com")
		assert.Equal(t, a, b)

		padded := c.GetOrCreate(ctx, TypeEmail, "  test@example.com ")
		assert.Equal(t, "  "+a+" ", padded)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("type is part of the key", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: true})
		c.GetOrCreate(ctx, TypeSSN, "123456789")
		c.GetOrCreate(ctx, TypeBankAccount, "123456789")
		assert.Equal(t, 2, c.Len())
	})

	t.Run("seeded caches agree without sharing state", func(t *testing.T) {
		a := newTestCache(t, CacheOptions{Enabled: true, Seed: seed(42)})
		b := newTestCache(t, CacheOptions{Enabled: true, Seed: seed(42)})
		other := newTestCache(t, CacheOptions{Enabled: true, Seed: seed(43)})

		values := []string{"123-45-6789", "987-65-4321", "555-12-3456"}
		differs := false
		for _, v := range values {
			av := a.GetOrCreate(ctx, TypeSSN, v)
			assert.Equal(t, av, b.GetOrCreate(ctx, TypeSSN, v))
			if av != other.GetOrCreate(ctx, TypeSSN, v) {
				differs = true
			}
		}
		assert.True(t, differs, "a different seed should change at least one replacement")
	})

	t.Run("disabled consistency gives fresh values", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: false, Seed: seed(1)})
		a := c.GetOrCreate(ctx, TypeEmail, "someone.long@example.com")
		b := c.GetOrCreate(ctx, TypeEmail, "someone.long@example.com")
		assert.NotEqual(t, a, b)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("concurrent callers observe one value", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: true})
		const n = 64
		results := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = c.GetOrCreate(ctx, TypeCreditCard, "4111 1111 1111 1111")
			}()
		}
		wg.Wait()
		for _, r := range results {
			assert.Equal(t, results[0], r)
		}
		assert.Equal(t, 1, c.Len())
	})

	t.Run("shared store aligns unseeded caches", func(t *testing.T) {
		store := NewMemoryStore()
		a := newTestCache(t, CacheOptions{Enabled: true, Store: store})
		b := newTestCache(t, CacheOptions{Enabled: true, Store: store})

		av := a.GetOrCreate(ctx, TypeName, "Jane Roe")
		assert.Equal(t, av, b.GetOrCreate(ctx, TypeName, "Jane Roe"))
		assert.Equal(t, 1, store.Len())
	})

	t.Run("store keys never hold originals", func(t *testing.T) {
		store := NewMemoryStore()
		c := newTestCache(t, CacheOptions{Enabled: true, Store: store})
		c.GetOrCreate(ctx, TypeEmail, "secret@example.com")
		for key := range store.data {
			assert.NotContains(t, key, "secret")
			assert.Len(t, key, 64)
		}
	})

	t.Run("store failures fall back to local generation", func(t *testing.T) {
		store := &failingStore{}
		c := newTestCache(t, CacheOptions{Enabled: true, Store: store})
		a := c.GetOrCreate(ctx, TypeSSN, "123-45-6789")
		b := c.GetOrCreate(ctx, TypeSSN, "123-45-6789")
		assert.Equal(t, a, b)
		assert.Regexp(t, `^\d{3}-\d{2}-\d{4}$`, a)
		assert.Equal(t, 2, store.calls, "second call is served locally")
	})

	t.Run("failed generation does not strand later callers", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: true})
		var calls atomic.Int32
		c.gen.Register("badge", func(rng *rand.Rand, original string) string {
			if calls.Add(1) == 1 {
				panic("generator failed")
			}
			return ShapeGenerator(rng, original)
		})

		assert.Panics(t, func() { c.GetOrCreate(ctx, "badge", "B-1234") })
		assert.Equal(t, 0, c.Len())

		done := make(chan string, 1)
		go func() { done <- c.GetOrCreate(ctx, "badge", "B-1234") }()
		select {
		case v := <-done:
			assert.Regexp(t, `^[A-Z]-\d{4}$`, v)
			assert.Equal(t, v, c.GetOrCreate(ctx, "badge", "B-1234"))
		case <-time.After(2 * time.Second):
			t.Fatal("GetOrCreate blocked after a failed generation")
		}
	})

	t.Run("lookup and clear", func(t *testing.T) {
		c := newTestCache(t, CacheOptions{Enabled: true})
		v := c.GetOrCreate(ctx, TypeSSN, "123-45-6789")

		e, ok := c.Lookup(TypeSSN, "123-45-6789")
		require.True(t, ok)
		assert.Equal(t, v, e.Replacement)
		assert.Equal(t, TypeSSN, e.Type)
		assert.False(t, e.CreatedAt.IsZero())

		c.Clear()
		assert.Equal(t, 0, c.Len())
		_, ok = c.Lookup(TypeSSN, "123-45-6789")
		assert.False(t, ok)
	})
}
