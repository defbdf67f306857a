package audit

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

func TestEventFromReport(t *testing.T) {
	r := &privacy.Report{
		Findings: []privacy.Finding{
			{Type: privacy.TypeEmail, Original: "jane@example.com", Replacement: "x@y.com"},
			{Type: privacy.TypeEmail, Original: "bob@example.com", Replacement: "z@y.com"},
			{Type: privacy.TypeSSN, Original: "123-45-6789", Replacement: "987-65-4321"},
		},
		Count:        3,
		Duration:     1500 * time.Microsecond,
		Guard:        "presidio",
		GuardSkipped: true,
	}
	e := EventFromReport("req-1", "api", r)
	assert.Equal(t, TypeCounts{"email": 2, "ssn": 1}, e.ByType)
	assert.Equal(t, 3, e.Findings)
	assert.Equal(t, 1.5, e.DurationMs)
	assert.True(t, e.GuardSkipped)

	v, err := e.ByType.Value()
	require.NoError(t, err)
	assert.NotContains(t, v, "jane")

	empty := EventFromReport("req-2", "api", nil)
	assert.Equal(t, 0, empty.Findings)
}

func TestTypeCountsScan(t *testing.T) {
	var c TypeCounts
	require.NoError(t, c.Scan([]byte(`{"phone":4}`)))
	assert.Equal(t, TypeCounts{"phone": 4}, c)
	require.NoError(t, c.Scan(`{"ssn":1}`))
	assert.Equal(t, TypeCounts{"ssn": 1}, c)
	require.NoError(t, c.Scan(nil))
	assert.Empty(t, c)
	assert.Error(t, c.Scan(42))
}

func TestBuildBatchInsert(t *testing.T) {
	query, args := buildBatchInsert([]Event{
		{RequestID: "a", Findings: 1},
		{RequestID: "b", Findings: 2, ByType: TypeCounts{"email": 2}},
	})
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7),($8, $9, $10, $11, $12, $13, $14)")
	require.Len(t, args, 14)
	assert.Equal(t, "b", args[7])
	assert.Equal(t, TypeCounts{}, args[5], "nil counts become an empty object")
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://pii:***@db:5432/audit?sslmode=disable",
		maskDatabaseURL("postgres://pii:hunter2@db:5432/audit?sslmode=disable"))
	assert.Equal(t, "postgres://db:5432/audit", maskDatabaseURL("postgres://db:5432/audit"))
}

// TestStore runs against a live database when PII_GUARD_TEST_DATABASE_URL is set.
func TestStore(t *testing.T) {
	url := os.Getenv("PII_GUARD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PII_GUARD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	cfg := config.GetDefaults().Audit
	cfg.DatabaseURL = url
	s, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	before, err := s.GetStats(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Record(ctx, Event{RequestID: "t-1", Source: "test", Findings: 2, ByType: TypeCounts{"email": 2}}))
	res, err := s.RecordBatch(ctx, []Event{{RequestID: "t-2", Source: "test"}, {RequestID: "t-3", Source: "test", GuardSkipped: true}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Inserted)

	after, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalEvents+3, after.TotalEvents)
	assert.Equal(t, before.TotalFindings+2, after.TotalFindings)

	recent, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.True(t, strings.HasPrefix(recent[0].RequestID, "t-"))
}
