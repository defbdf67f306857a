package cache

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const boltBucket = "mappings"

// BoltStore keeps replacement mappings in an embedded bbolt file so that
// replacements survive restarts of a single process.
type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
	stats  counters
}

// NewBoltStore opens (or creates) the database at path and ensures the bucket
// exists.
func NewBoltStore(path string, logger *zap.Logger) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store: empty path")
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt store %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}

	logger.Info("Mapping store initialized",
		zap.String("backend", "bolt"),
		zap.String("path", path))
	return &BoltStore{db: db, logger: logger}, nil
}

// Get implements privacy.MappingStore.
func (s *BoltStore) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(boltBucket)).Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("bolt get: %w", err)
	}
	s.stats.record(found)
	return value, found, nil
}

// PutIfAbsent implements privacy.MappingStore. The check and the write share
// one transaction.
func (s *BoltStore) PutIfAbsent(_ context.Context, key, value string) (string, error) {
	stored := value
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if v := b.Get([]byte(key)); v != nil {
			stored = string(v)
			return nil
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return "", fmt.Errorf("bolt put: %w", err)
	}
	return stored, nil
}

// Stats implements StatsReporter.
func (s *BoltStore) Stats(context.Context) (*Stats, error) {
	stats := &Stats{Backend: "bolt"}
	s.stats.fill(stats)
	err := s.db.View(func(tx *bolt.Tx) error {
		stats.TotalKeys = int64(tx.Bucket([]byte(boltBucket)).Stats().KeyN)
		return nil
	})
	return stats, err
}

// Clear drops every mapping.
func (s *BoltStore) Clear(context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(boltBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(boltBucket))
		return err
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
