// Package report renders anonymization reports as JSON, CSV, HTML or
// terminal text. Original values are masked unless Options.IncludeOriginals is
// set.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/RoyNativ-AI/pii-guard/internal/etl"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// Format names a renderer.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// Formats lists the supported formats.
func Formats() []Format { return []Format{FormatJSON, FormatCSV, FormatHTML, FormatText} }

// ParseFormat accepts a format name, case-insensitive.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(Formats(), f) {
		return f, nil
	}
	return "", &privacy.ConfigurationError{Field: "report.format", Value: name, Err: fmt.Errorf("supported formats: json, csv, html, text")}
}

// Renderer writes a Document in a specific format.
type Renderer interface {
	Render(w io.Writer, doc *Document) error
}

// New returns the renderer for f.
func New(f Format) (Renderer, error) {
	switch f {
	case FormatJSON:
		return &JSONRenderer{Indent: true}, nil
	case FormatCSV:
		return &CSVRenderer{}, nil
	case FormatHTML:
		return NewHTMLRenderer(), nil
	case FormatText:
		return &TerminalRenderer{}, nil
	}
	return nil, fmt.Errorf("unsupported report format %q", f)
}

// Options controls what a Document may contain.
type Options struct {
	IncludeOriginals bool
}

// Document is the renderer-neutral view of one or more reports.
type Document struct {
	Title        string        `json:"title"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Guard        string        `json:"guard,omitempty"`
	GuardSkipped int           `json:"guard_skipped,omitempty"`
	GuardErrors  []string      `json:"guard_errors,omitempty"`
	Total        int64         `json:"total"`
	ByType       []TypeCount   `json:"by_type"`
	Duration     time.Duration `json:"duration_ns"`
	Findings     []Row         `json:"findings,omitempty"`
	Files        []FileRow     `json:"files,omitempty"`
	SkippedRules []string      `json:"skipped_rules,omitempty"`
}

// TypeCount is a per-type tally.
type TypeCount struct {
	Type  privacy.PIIType `json:"type"`
	Count int             `json:"count"`
}

// Row is one replaced value.
type Row struct {
	Input       string          `json:"input,omitempty"`
	Type        privacy.PIIType `json:"type"`
	Original    string          `json:"original,omitempty"`
	Replacement string          `json:"replacement"`
	Start       int             `json:"start"`
	End         int             `json:"end"`
	Source      string          `json:"source"`
	Confidence  float64         `json:"confidence"`
}

// FileRow summarizes one processed file.
type FileRow struct {
	Input    string         `json:"input"`
	Output   string         `json:"output,omitempty"`
	Format   etl.FileFormat `json:"format,omitempty"`
	Records  int64          `json:"records"`
	Failed   int64          `json:"failed"`
	Findings int64          `json:"findings"`
	Error    string         `json:"error,omitempty"`
}

// FromReports builds a Document from per-text reports. inputs labels each
// report and may be nil.
func FromReports(title string, inputs []string, reports []*privacy.Report, opts Options) *Document {
	doc := &Document{Title: title, GeneratedAt: time.Now().UTC()}
	byType := make(map[privacy.PIIType]int)
	for i, r := range reports {
		if r == nil {
			continue
		}
		if doc.Guard == "" {
			doc.Guard = r.Guard
		}
		if r.GuardSkipped {
			doc.GuardSkipped++
			if r.GuardError != "" && !slices.Contains(doc.GuardErrors, r.GuardError) {
				doc.GuardErrors = append(doc.GuardErrors, r.GuardError)
			}
		}
		for _, rule := range r.SkippedRules {
			if !slices.Contains(doc.SkippedRules, rule) {
				doc.SkippedRules = append(doc.SkippedRules, rule)
			}
		}
		doc.Total += int64(r.Count)
		doc.Duration += r.Duration
		var input string
		if i < len(inputs) {
			input = inputs[i]
		}
		for _, f := range r.Findings {
			row := Row{
				Input:       input,
				Type:        f.Type,
				Replacement: f.Replacement,
				Start:       f.Start,
				End:         f.End,
				Source:      f.Source,
				Confidence:  f.Confidence,
			}
			if opts.IncludeOriginals {
				row.Original = f.Original
			}
			doc.Findings = append(doc.Findings, row)
			byType[f.Type]++
		}
	}
	doc.ByType = typeCounts(byType)
	return doc
}

// FromFile builds a Document from a single file run.
func FromFile(res *etl.ProcessingResult) *Document {
	doc := &Document{
		Title:       "pii-guard: " + res.Input,
		GeneratedAt: time.Now().UTC(),
		Total:       res.Findings,
		ByType:      typeCounts(res.ByType),
		Duration:    res.Duration,
		Files:       []FileRow{fileRow(res)},
	}
	doc.GuardSkipped = int(res.GuardSkipped)
	return doc
}

// FromDirectory builds a Document from a directory run.
func FromDirectory(res *etl.DirectoryResult) *Document {
	doc := &Document{
		Title:       "pii-guard: " + res.Input,
		GeneratedAt: time.Now().UTC(),
		Total:       res.Findings,
		ByType:      typeCounts(res.ByType),
		Duration:    res.Duration,
	}
	for _, f := range res.Files {
		doc.Files = append(doc.Files, fileRow(f))
		doc.GuardSkipped += int(f.GuardSkipped)
	}
	for _, path := range slices.Sorted(maps.Keys(res.Failed)) {
		doc.Files = append(doc.Files, FileRow{Input: path, Error: res.Failed[path]})
	}
	return doc
}

func fileRow(res *etl.ProcessingResult) FileRow {
	row := FileRow{
		Input:    res.Input,
		Output:   res.Output,
		Format:   res.Format,
		Records:  res.TotalRecords,
		Failed:   res.ProcessedFailed,
		Findings: res.Findings,
	}
	if len(res.Errors) > 0 {
		row.Error = strings.Join(res.Errors, "; ")
	}
	return row
}

// typeCounts orders tallies by count, then name.
func typeCounts(m map[privacy.PIIType]int) []TypeCount {
	out := make([]TypeCount, 0, len(m))
	for t, n := range m {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	slices.SortFunc(out, func(a, b TypeCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out
}
