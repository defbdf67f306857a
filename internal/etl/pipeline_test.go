package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

func newTestPipeline(t *testing.T, fields ...string) *Pipeline {
	t.Helper()
	p, err := privacy.New(config.GetDefaults().Privacy, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	cfg := config.GetDefaults().Batch
	cfg.Fields = fields
	return NewPipeline(p, cfg, zap.NewNop())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"a.csv":        FormatCSV,
		"a.CSV":        FormatCSV,
		"a.json":       FormatJSON,
		"a.jsonl":      FormatJSONL,
		"a.ndjson":     FormatJSONL,
		"a.parquet":    FormatParquet,
		"notes.md":     FormatText,
		"no_extension": FormatText,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectFileFormat(name), name)
	}
	assert.Equal(t, "/tmp/in.anonymized.csv", OutputPath("/tmp/in.csv"))
}

func TestProcessText(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "note.txt")
	writeFile(t, in, "Mail jane@example.com\nSSN 123-45-6789\n")

	result, err := newTestPipeline(t).ProcessFile(context.Background(), in, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "note.anonymized.txt"), result.Output)
	assert.Equal(t, int64(2), result.Findings)
	assert.Equal(t, 1, result.ByType[privacy.TypeEmail])

	got := readFile(t, result.Output)
	assert.NotContains(t, got, "jane@example.com")
	assert.NotContains(t, got, "123-45-6789")
	assert.Regexp(t, `^Mail \S+@\S+\nSSN \d{3}-\d{2}-\d{4}\n$`, got)
}

func TestProcessCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	writeFile(t, in, "id,email,notes\n1,jane@example.com,call 555-123-4567\n2,,no pii here\n")

	result, err := newTestPipeline(t, "email", "notes").ProcessFile(context.Background(), in, filepath.Join(dir, "out", "people.csv"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalRecords)
	assert.Equal(t, int64(2), result.Findings)

	f, err := os.Open(result.Output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "email", "notes"}, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.NotEqual(t, "jane@example.com", rows[1][1])
	assert.Contains(t, rows[1][1], "@")
	assert.Regexp(t, `^call \d{3}-\d{3}-\d{4}$`, rows[1][2])
	assert.Equal(t, []string{"2", "", "no pii here"}, rows[2])
}

func TestProcessCSVReadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed row is skipped", func(t *testing.T) {
		var out strings.Builder
		result := &ProcessingResult{ByType: make(map[privacy.PIIType]int)}
		in := strings.NewReader("id,email\n1,ja\"ne@example.com\n2,bob@example.com\n")
		require.NoError(t, newTestPipeline(t, "email").processCSV(ctx, in, &out, result))
		assert.Equal(t, int64(1), result.ProcessedFailed)
		assert.Equal(t, int64(1), result.ProcessedOK)
		assert.NotContains(t, out.String(), "bob@example.com")
	})

	t.Run("read failure aborts the file", func(t *testing.T) {
		readErr := errors.New("disk went away")
		in := io.MultiReader(strings.NewReader("id,email\n"), iotest.ErrReader(readErr))
		result := &ProcessingResult{ByType: make(map[privacy.PIIType]int)}

		done := make(chan error, 1)
		go func() { done <- newTestPipeline(t, "email").processCSV(ctx, in, io.Discard, result) }()
		select {
		case err := <-done:
			require.Error(t, err)
			assert.ErrorIs(t, err, readErr)
			assert.Empty(t, result.Errors)
		case <-time.After(2 * time.Second):
			t.Fatal("processCSV kept reading after a persistent I/O error")
		}
	})
}

func TestProcessJSONL(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "events.jsonl")
	writeFile(t, in, `{"user":"jane@example.com","count":3,"tags":["ip 10.0.0.1"]}
not json at all
{"user":"jane@example.com","count":4.5}
`)

	result, err := newTestPipeline(t).ProcessFile(context.Background(), in, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(2), result.ProcessedOK)
	assert.Equal(t, int64(1), result.ProcessedFailed)
	require.Len(t, result.Errors, 1)

	got := readFile(t, result.Output)
	assert.NotContains(t, got, "jane@example.com")
	assert.NotContains(t, got, "not json")

	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, first["user"], second["user"], "same value, same replacement")
	assert.Equal(t, 3.0, first["count"])
	assert.Contains(t, lines[1], `"count":4.5`)
}

func TestProcessJSONFields(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.json")
	writeFile(t, in, `{"contact":{"email":"jane@example.com","phones":["555-123-4567"]},"audit":"jane@example.com"}`)

	result, err := newTestPipeline(t, "contact").ProcessFile(context.Background(), in, "")
	require.NoError(t, err)

	var doc struct {
		Contact struct {
			Email  string   `json:"email"`
			Phones []string `json:"phones"`
		} `json:"contact"`
		Audit string `json:"audit"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, result.Output)), &doc))
	assert.NotEqual(t, "jane@example.com", doc.Contact.Email)
	assert.NotEqual(t, "555-123-4567", doc.Contact.Phones[0])
	assert.Equal(t, "jane@example.com", doc.Audit, "unselected keys are kept")
}

type person struct {
	Name  string `parquet:"name"`
	Email string `parquet:"email"`
	Age   int64  `parquet:"age"`
}

func TestProcessParquet(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "people.parquet")

	f, err := os.Create(in)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[person](f)
	_, err = w.Write([]person{
		{Name: "row one", Email: "jane@example.com", Age: 41},
		{Name: "row two", Email: "bob@example.org", Age: 37},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	result, err := newTestPipeline(t, "email").ProcessFile(context.Background(), in, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalRecords)
	assert.Equal(t, int64(2), result.Findings)

	out, err := os.Open(result.Output)
	require.NoError(t, err)
	defer out.Close()
	r := parquet.NewGenericReader[person](out)
	defer r.Close()
	rows := make([]person, r.NumRows())
	n, err := r.Read(rows)
	if !errors.Is(err, io.EOF) {
		require.NoError(t, err)
	}
	require.Equal(t, 2, n)

	assert.Equal(t, "row one", rows[0].Name)
	assert.Equal(t, int64(41), rows[0].Age)
	assert.NotEqual(t, "jane@example.com", rows[0].Email)
	assert.Contains(t, rows[0].Email, "@")
	assert.NotEqual(t, "bob@example.org", rows[1].Email)
}

func TestProcessFileLimits(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "big.txt")
	writeFile(t, in, strings.Repeat("x", 100))

	p := newTestPipeline(t)
	p.config.MaxFileBytes = 10
	_, err := p.ProcessFile(context.Background(), in, "")
	assert.Error(t, err)

	_, err = p.ProcessFile(context.Background(), filepath.Join(dir, "missing.txt"), "")
	assert.Error(t, err)
}

func TestProcessDirectory(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "a.txt"), "jane@example.com")
	writeFile(t, filepath.Join(in, "sub", "b.csv"), "email\njane@example.com\n")
	writeFile(t, filepath.Join(in, "image.bin"), "\x00\x01")
	writeFile(t, filepath.Join(in, ".git", "c.txt"), "jane@example.com")
	writeFile(t, filepath.Join(in, "bad.json"), "{broken")

	result, err := newTestPipeline(t).ProcessDirectory(context.Background(), in, out)
	require.NoError(t, err)

	assert.Len(t, result.Files, 2)
	assert.Equal(t, []string{filepath.Join(in, "image.bin")}, result.Skipped)
	assert.Contains(t, result.Failed, filepath.Join(in, "bad.json"))
	assert.Equal(t, int64(2), result.Findings)
	assert.Equal(t, 2, result.ByType[privacy.TypeEmail])

	txt := readFile(t, filepath.Join(out, "a.txt"))
	csvOut := readFile(t, filepath.Join(out, "sub", "b.csv"))
	assert.NotContains(t, txt, "jane@example.com")
	assert.Equal(t, "email\n"+txt+"\n", csvOut, "one protector, one replacement")

	assert.NoFileExists(t, filepath.Join(out, ".git", "c.txt"))
	assert.NoFileExists(t, filepath.Join(out, "bad.json"))
}
