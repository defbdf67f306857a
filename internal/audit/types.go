package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// Event is one anonymization call. It holds counts only, never values.
type Event struct {
	ID           int64      `db:"id" json:"id"`
	RequestID    string     `db:"request_id" json:"request_id"`
	Source       string     `db:"source" json:"source"`
	Guard        string     `db:"guard" json:"guard"`
	GuardSkipped bool       `db:"guard_skipped" json:"guard_skipped"`
	Findings     int        `db:"findings" json:"findings"`
	ByType       TypeCounts `db:"by_type" json:"by_type"`
	DurationMs   float64    `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// EventFromReport summarizes r.
func EventFromReport(requestID, source string, r *privacy.Report) Event {
	e := Event{RequestID: requestID, Source: source, ByType: TypeCounts{}}
	if r == nil {
		return e
	}
	e.Guard = r.Guard
	e.GuardSkipped = r.GuardSkipped
	e.Findings = r.Count
	e.DurationMs = float64(r.Duration.Microseconds()) / 1000
	for t, n := range r.Summary() {
		e.ByType[string(t)] = n
	}
	return e
}

// TypeCounts is stored as JSONB.
type TypeCounts map[string]int

// Value implements driver.Valuer.
func (c TypeCounts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *TypeCounts) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = TypeCounts{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported by_type column type %T", src)
	}
	return json.Unmarshal(data, c)
}

// Stats represents audit table statistics
type Stats struct {
	TotalEvents   int64   `db:"total_events" json:"total_events"`
	TotalFindings int64   `db:"total_findings" json:"total_findings"`
	GuardSkipped  int64   `db:"guard_skipped" json:"guard_skipped"`
	AvgDurationMs float64 `db:"avg_duration_ms" json:"avg_duration_ms"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}
