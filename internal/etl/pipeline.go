// Package etl anonymizes files and directory trees record by record.
package etl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/segmentio/parquet-go"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

const batchSize = 256

// Pipeline anonymizes text, CSV, JSON, JSONL and Parquet files
type Pipeline struct {
	anon   Anonymizer
	config config.BatchConfig
	fields map[string]bool
	logger *zap.Logger
	stats  *ProcessingStats
	mu     sync.RWMutex
}

// NewPipeline creates a new pipeline. cfg.Fields restricts structured inputs to
// the named columns or keys; empty means every string value.
func NewPipeline(anon Anonymizer, cfg config.BatchConfig, logger *zap.Logger) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	var fields map[string]bool
	if len(cfg.Fields) > 0 {
		fields = make(map[string]bool, len(cfg.Fields))
		for _, f := range cfg.Fields {
			fields[f] = true
		}
	}
	return &Pipeline{
		anon:   anon,
		config: cfg,
		fields: fields,
		logger: logger,
		stats:  &ProcessingStats{StartTime: time.Now()},
	}
}

// ProcessFile anonymizes input into output. An empty output means OutputPath(input).
func (p *Pipeline) ProcessFile(ctx context.Context, input, output string) (*ProcessingResult, error) {
	if output == "" {
		output = OutputPath(input)
	}
	start := time.Now()
	result := &ProcessingResult{
		Input:  input,
		Output: output,
		Format: DetectFileFormat(input),
		ByType: make(map[privacy.PIIType]int),
	}

	info, err := os.Stat(input)
	if err != nil {
		return result, fmt.Errorf("failed to stat input: %w", err)
	}
	if p.config.MaxFileBytes > 0 && info.Size() > p.config.MaxFileBytes {
		return result, fmt.Errorf("%s is %d bytes, limit is %d", input, info.Size(), p.config.MaxFileBytes)
	}

	p.logger.Info("Starting file anonymization",
		zap.String("file", input),
		zap.String("format", string(result.Format)),
		zap.Int("workers", p.config.Workers))

	in, err := os.Open(input)
	if err != nil {
		return result, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return result, fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(output)
	if err != nil {
		return result, fmt.Errorf("failed to create output: %w", err)
	}

	switch result.Format {
	case FormatCSV:
		err = p.processCSV(ctx, in, out, result)
	case FormatJSON:
		err = p.processJSON(ctx, in, out, result)
	case FormatJSONL:
		err = p.processJSONL(ctx, in, out, result)
	case FormatParquet:
		err = p.processParquet(ctx, in, out, result)
	default:
		err = p.processText(ctx, in, out, result)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(output) //nolint:errcheck // partial output must not survive
		return result, fmt.Errorf("%s processing failed: %w", result.Format, err)
	}

	result.Duration = time.Since(start)
	p.recordFile(result)

	p.logger.Info("File anonymization completed",
		zap.String("file", input),
		zap.Int64("records", result.TotalRecords),
		zap.Int64("failed", result.ProcessedFailed),
		zap.Int64("findings", result.Findings),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processText anonymizes the whole file as one value so that entities
// spanning lines stay intact.
func (p *Pipeline) processText(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}
	texts, err := p.anonymizeAll(ctx, []string{string(data)}, result)
	if err != nil {
		return err
	}
	result.TotalRecords = 1
	result.ProcessedOK = 1
	_, err = io.WriteString(out, texts[0])
	return err
}

// processCSV anonymizes selected columns and keeps the header as is.
func (p *Pipeline) processCSV(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	writer := csv.NewWriter(out)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Debug("CSV header detected", zap.Strings("columns", header))
	if err := writer.Write(header); err != nil {
		return err
	}

	selected := make([]bool, len(header))
	for i, name := range header {
		selected[i] = p.selected(strings.TrimSpace(name))
	}

	for {
		var records [][]string
		for len(records) < batchSize {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				p.logger.Warn("Failed to parse CSV record", zap.Error(err))
				result.ProcessedFailed++
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read CSV record: %w", err)
			}
			records = append(records, record)
		}
		if len(records) == 0 {
			break
		}

		var texts []string
		for _, record := range records {
			for i, cell := range record {
				if i < len(selected) && selected[i] && cell != "" {
					texts = append(texts, cell)
				}
			}
		}
		replaced, err := p.anonymizeAll(ctx, texts, result)
		if err != nil {
			return err
		}
		next := 0
		for _, record := range records {
			for i, cell := range record {
				if i < len(selected) && selected[i] && cell != "" {
					record[i] = replaced[next]
					next++
				}
			}
			if err := writer.Write(record); err != nil {
				return err
			}
			result.TotalRecords++
			result.ProcessedOK++
		}
	}

	writer.Flush()
	return writer.Error()
}

// processJSON anonymizes a single JSON document.
func (p *Pipeline) processJSON(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	decoder := json.NewDecoder(in)
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}

	doc, err := p.anonymizeValue(ctx, doc, result)
	if err != nil {
		return err
	}
	result.TotalRecords = 1
	result.ProcessedOK = 1

	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// processJSONL anonymizes one JSON value per line. Lines that fail to decode
// are dropped and counted, never copied through.
func (p *Pipeline) processJSONL(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	w := bufio.NewWriter(out)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		result.TotalRecords++

		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()
		var record any
		if err := decoder.Decode(&record); err != nil {
			p.logger.Warn("Failed to read JSON record", zap.Int("line", line), zap.Error(err))
			result.ProcessedFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		record, err := p.anonymizeValue(ctx, record, result)
		if err != nil {
			return err
		}
		if err := encoder.Encode(record); err != nil {
			return err
		}
		result.ProcessedOK++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read JSONL: %w", err)
	}
	return w.Flush()
}

// processParquet rewrites UTF-8 byte array columns row group by row group,
// keeping the input schema.
func (p *Pipeline) processParquet(ctx context.Context, in *os.File, out io.Writer, result *ProcessingResult) error {
	reader := parquet.NewReader(in)
	defer reader.Close()

	schema := reader.Schema()
	columns := schema.Columns()
	selected := make([]bool, len(columns))
	for i, path := range columns {
		selected[i] = p.selected(strings.Join(path, ".")) || p.selected(path[len(path)-1])
	}

	writer := parquet.NewWriter(out, schema)
	rows := make([]parquet.Row, batchSize)
	for {
		n, readErr := reader.ReadRows(rows)
		if n > 0 {
			if err := p.anonymizeRows(ctx, rows[:n], selected, result); err != nil {
				return err
			}
			if _, err := writer.WriteRows(rows[:n]); err != nil {
				return fmt.Errorf("failed to write Parquet rows: %w", err)
			}
			result.TotalRecords += int64(n)
			result.ProcessedOK += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read Parquet rows: %w", readErr)
		}
	}
	return writer.Close()
}

func (p *Pipeline) anonymizeRows(ctx context.Context, rows []parquet.Row, selected []bool, result *ProcessingResult) error {
	type ref struct{ row, col int }
	var refs []ref
	var texts []string
	for r, row := range rows {
		for c, v := range row {
			col := v.Column()
			if v.IsNull() || v.Kind() != parquet.ByteArray || col >= len(selected) || !selected[col] {
				continue
			}
			b := v.ByteArray()
			if len(b) == 0 || !utf8.Valid(b) {
				continue
			}
			refs = append(refs, ref{r, c})
			texts = append(texts, string(b))
		}
	}

	replaced, err := p.anonymizeAll(ctx, texts, result)
	if err != nil {
		return err
	}
	for i, at := range refs {
		old := rows[at.row][at.col]
		rows[at.row][at.col] = parquet.ByteArrayValue([]byte(replaced[i])).
			Level(old.RepetitionLevel(), old.DefinitionLevel(), old.Column())
	}
	return nil
}

// anonymizeValue walks a decoded JSON value and replaces selected strings.
// Object keys are kept; a selected key selects everything beneath it.
func (p *Pipeline) anonymizeValue(ctx context.Context, v any, result *ProcessingResult) (any, error) {
	var texts []string
	collectStrings(v, p.fields == nil, p.fields, &texts)

	replaced, err := p.anonymizeAll(ctx, texts, result)
	if err != nil {
		return nil, err
	}
	next := 0
	return replaceStrings(v, p.fields == nil, p.fields, replaced, &next), nil
}

// collectStrings appends selected strings in traversal order. Map keys are
// visited sorted so replaceStrings sees the same order.
func collectStrings(v any, sel bool, fields map[string]bool, out *[]string) {
	switch t := v.(type) {
	case string:
		if sel && t != "" {
			*out = append(*out, t)
		}
	case []any:
		for _, item := range t {
			collectStrings(item, sel, fields, out)
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			collectStrings(t[k], sel || fields[k], fields, out)
		}
	}
}

func replaceStrings(v any, sel bool, fields map[string]bool, repl []string, next *int) any {
	switch t := v.(type) {
	case string:
		if sel && t != "" {
			s := repl[*next]
			*next++
			return s
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = replaceStrings(item, sel, fields, repl, next)
		}
		return t
	case map[string]any:
		for _, k := range sortedKeys(t) {
			t[k] = replaceStrings(t[k], sel || fields[k], fields, repl, next)
		}
		return t
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// anonymizeAll runs texts through the anonymizer on the worker pool, keeping
// order. A failing value aborts the file: emitting its original is not an
// option.
func (p *Pipeline) anonymizeAll(ctx context.Context, texts []string, result *ProcessingResult) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]string, len(texts))
	reports := make([]*privacy.Report, len(texts))

	wp := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(p.config.Workers)
	for i, text := range texts {
		wp.Go(func(ctx context.Context) error {
			anonymized, report, err := p.anon.AnonymizeWithReport(ctx, text)
			if err != nil {
				return fmt.Errorf("value %d: %w", i, err)
			}
			out[i], reports[i] = anonymized, report
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}

	for _, r := range reports {
		result.addReport(r)
	}
	p.mu.Lock()
	p.stats.ValuesScanned += int64(len(texts))
	p.mu.Unlock()
	return out, nil
}

func (p *Pipeline) selected(name string) bool {
	return p.fields == nil || p.fields[name]
}

// ProcessDirectory anonymizes every file under input whose extension is in the
// configured list, mirroring the tree under output. Per-file failures are
// collected and never stop the walk.
func (p *Pipeline) ProcessDirectory(ctx context.Context, input, output string) (*DirectoryResult, error) {
	start := time.Now()
	dir := &DirectoryResult{
		Input:  input,
		Output: output,
		Failed: make(map[string]string),
		ByType: make(map[privacy.PIIType]int),
	}

	var files []string
	err := filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != input && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if p.accepts(path) {
			files = append(files, path)
		} else {
			dir.Skipped = append(dir.Skipped, path)
		}
		return nil
	})
	if err != nil {
		return dir, fmt.Errorf("failed to walk %s: %w", input, err)
	}

	p.logger.Info("Starting directory anonymization",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("files", len(files)),
		zap.Int("skipped", len(dir.Skipped)))

	results := make([]*ProcessingResult, len(files))
	failures := make([]error, len(files))
	wp := pool.New().WithMaxGoroutines(p.config.Workers)
	for i, path := range files {
		wp.Go(func() {
			if ctx.Err() != nil {
				failures[i] = ctx.Err()
				return
			}
			rel, err := filepath.Rel(input, path)
			if err != nil {
				failures[i] = err
				return
			}
			results[i], failures[i] = p.ProcessFile(ctx, path, filepath.Join(output, rel))
		})
	}
	wp.Wait()

	for i, path := range files {
		if failures[i] != nil {
			dir.Failed[path] = failures[i].Error()
			p.logger.Warn("File anonymization failed", zap.String("file", path), zap.Error(failures[i]))
			continue
		}
		dir.Files = append(dir.Files, results[i])
		dir.Findings += results[i].Findings
		for t, n := range results[i].ByType {
			dir.ByType[t] += n
		}
	}
	dir.Duration = time.Since(start)

	p.logger.Info("Directory anonymization completed",
		zap.Int("files_ok", len(dir.Files)),
		zap.Int("files_failed", len(dir.Failed)),
		zap.Int64("findings", dir.Findings),
		zap.Duration("duration", dir.Duration))

	return dir, ctx.Err()
}

func (p *Pipeline) accepts(path string) bool {
	if len(p.config.Extensions) == 0 {
		return true
	}
	return slices.Contains(p.config.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (p *Pipeline) recordFile(result *ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FilesDone++
	p.stats.RecordsRead += result.TotalRecords
	if elapsed := time.Since(p.stats.StartTime).Seconds(); elapsed > 0 {
		p.stats.ProcessingRate = float64(p.stats.ValuesScanned) / elapsed
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
