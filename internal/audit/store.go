// Package audit keeps a PostgreSQL trail of anonymization calls.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS pii_audit_events (
	id            BIGSERIAL PRIMARY KEY,
	request_id    TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	guard         TEXT NOT NULL DEFAULT '',
	guard_skipped BOOLEAN NOT NULL DEFAULT FALSE,
	findings      INTEGER NOT NULL DEFAULT 0,
	by_type       JSONB NOT NULL DEFAULT '{}'::jsonb,
	duration_ms   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pii_audit_events_created_at ON pii_audit_events (created_at);`

const eventColumns = 7

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Store handles audit storage with PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the database and creates the audit table if needed
func NewStore(cfg config.AuditConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db, logger: logger}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, e Event) error {
	query := `
		INSERT INTO pii_audit_events (request_id, source, guard, guard_skipped, findings, by_type, duration_ms)
		VALUES (:request_id, :source, :guard, :guard_skipped, :findings, :by_type, :duration_ms)`

	if _, err := s.db.NamedExecContext(ctx, query, e); err != nil {
		s.logger.Error("Failed to record audit event",
			zap.Error(err),
			zap.String("request_id", e.RequestID),
			zap.String("source", e.Source))
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// RecordBatch inserts events with one statement.
func (s *Store) RecordBatch(ctx context.Context, events []Event) (*BatchInsertResult, error) {
	if len(events) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	query, args := buildBatchInsert(events)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		result.Failed = int64(len(events))
		s.logger.Error("Audit batch insert failed", zap.Error(err))
		return result, fmt.Errorf("audit batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(events))
	}
	result.Inserted = inserted
	result.Failed = int64(len(events)) - inserted
	result.Duration = time.Since(start)

	s.logger.Debug("Audit batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func buildBatchInsert(events []Event) (string, []any) {
	valueStrings := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*eventColumns)
	for i, e := range events {
		n := i * eventColumns
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		byType := e.ByType
		if byType == nil {
			byType = TypeCounts{}
		}
		args = append(args, e.RequestID, e.Source, e.Guard, e.GuardSkipped, e.Findings, byType, e.DurationMs)
	}
	query := `
		INSERT INTO pii_audit_events (request_id, source, guard, guard_skipped, findings, by_type, duration_ms)
		VALUES ` + strings.Join(valueStrings, ",")
	return query, args
}

// Recent returns the latest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, request_id, source, guard, guard_skipped, findings, by_type, duration_ms, created_at
		FROM pii_audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// GetStats returns audit table statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_events,
			COALESCE(SUM(findings), 0) AS total_findings,
			COUNT(CASE WHEN guard_skipped THEN 1 END) AS guard_skipped,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM pii_audit_events`)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}
	return &stats, nil
}

// Purge deletes events older than the given age.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pii_audit_events WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	scheme := strings.Index(userPart, "://")
	colon := strings.LastIndex(userPart, ":")
	if colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
