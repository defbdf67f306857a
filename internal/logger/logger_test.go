package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		log, err := New(Config{Level: "info", Format: "json"})
		require.NoError(t, err)
		require.NotNil(t, log)
		log.WithComponent("privacy").WithRequestID("req-1").Info("hello")
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Format: "json"})
		assert.Error(t, err)
	})

	t.Run("file sink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pii-guard.log")
		log, err := New(Config{Level: "debug", Format: "console", File: &FileConfig{Enabled: true, Path: path}})
		require.NoError(t, err)
		log.Debug("written to file")
		assert.FileExists(t, path)
	})
}

func TestSafeHeaders(t *testing.T) {
	headers := map[string][]string{
		"Authorization": {"Bearer abc"},
		"X-Api-Key":     {"k"},
		"Content-Type":  {"application/json"},
		"Empty":         {},
	}

	safe := SafeHeaders(headers)
	assert.Equal(t, "[REDACTED]", safe["Authorization"])
	assert.Equal(t, "[REDACTED]", safe["X-Api-Key"])
	assert.Equal(t, "application/json", safe["Content-Type"])
	assert.NotContains(t, safe, "Empty")
}
