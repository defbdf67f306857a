package etl

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// Anonymizer is the part of privacy.Protector the pipeline needs.
type Anonymizer interface {
	AnonymizeWithReport(ctx context.Context, text string) (string, *privacy.Report, error)
}

// ProcessingResult represents the result of anonymizing one file
type ProcessingResult struct {
	Input           string                  `json:"input"`
	Output          string                  `json:"output"`
	Format          FileFormat              `json:"format"`
	TotalRecords    int64                   `json:"total_records"`
	ProcessedOK     int64                   `json:"processed_ok"`
	ProcessedFailed int64                   `json:"processed_failed"`
	Values          int64                   `json:"values"`
	Findings        int64                   `json:"findings"`
	ByType          map[privacy.PIIType]int `json:"by_type"`
	GuardSkipped    int64                   `json:"guard_skipped"`
	Duration        time.Duration           `json:"duration"`
	Errors          []string                `json:"errors,omitempty"`
}

func (r *ProcessingResult) addReport(rep *privacy.Report) {
	if rep == nil {
		return
	}
	r.Values++
	r.Findings += int64(rep.Count)
	if rep.GuardSkipped {
		r.GuardSkipped++
	}
	for t, n := range rep.Summary() {
		r.ByType[t] += n
	}
}

// DirectoryResult aggregates a directory run
type DirectoryResult struct {
	Input    string                  `json:"input"`
	Output   string                  `json:"output"`
	Files    []*ProcessingResult     `json:"files"`
	Skipped  []string                `json:"skipped,omitempty"`
	Failed   map[string]string       `json:"failed,omitempty"`
	Findings int64                   `json:"findings"`
	ByType   map[privacy.PIIType]int `json:"by_type"`
	Duration time.Duration           `json:"duration"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	FilesDone      int64     `json:"files_done"`
	RecordsRead    int64     `json:"records_read"`
	ValuesScanned  int64     `json:"values_scanned"`
	ProcessingRate float64   `json:"processing_rate"` // values per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatText    FileFormat = "text"
	FormatCSV     FileFormat = "csv"
	FormatJSON    FileFormat = "json"
	FormatJSONL   FileFormat = "jsonl"
	FormatParquet FileFormat = "parquet"
)

// DetectFileFormat detects file format from extension. Unknown extensions are
// treated as plain text.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatText
	}
}

// OutputPath returns the default output path for input: the same directory
// with ".anonymized" before the extension.
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".anonymized" + ext
}
