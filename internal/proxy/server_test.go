package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoyNativ-AI/pii-guard/internal/audit"
	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.WebSocket.Enabled = false
	cfg.Security.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	protector, err := privacy.New(cfg.Privacy, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { protector.Close() })

	s, err := New(cfg, protector, logger.NewNop(), opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, s, http.MethodGet, "/info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	decodeBody(t, rec, &info)
	assert.Equal(t, "pii-guard", info["name"])
	assert.Equal(t, "regex", info["guard"])
	assert.Equal(t, "en_US", info["locale"])
}

func TestAnonymizeAPI(t *testing.T) {
	s := newTestServer(t, nil)
	text := `{"text":"Contact jane.doe@example.com or 555-123-4567"}`

	t.Run("plain", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/anonymize", text, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

		var resp anonymizeResponse
		decodeBody(t, rec, &resp)
		assert.True(t, strings.HasPrefix(resp.Text, "Contact "))
		assert.NotContains(t, resp.Text, "jane.doe@example.com")
		assert.NotContains(t, resp.Text, "555-123-4567")
		assert.Nil(t, resp.Report)
	})

	t.Run("with report", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/anonymize/report", text, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp anonymizeResponse
		decodeBody(t, rec, &resp)
		require.NotNil(t, resp.Report)
		assert.Equal(t, 2, resp.Report.Count)
		assert.Equal(t, []privacy.PIIType{privacy.TypeEmail, privacy.TypePhone}, resp.Report.Types())
		for _, f := range resp.Report.Findings {
			assert.Empty(t, f.Original)
			assert.NotEmpty(t, f.Replacement)
		}
		assert.NotContains(t, rec.Body.String(), "jane.doe@example.com")
		assert.NotContains(t, rec.Body.String(), "555-123-4567")
		assert.NotContains(t, rec.Body.String(), `"original"`)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		id := "0b9f8a52-6f52-4d8e-9a4c-3a1c4b3b8f10"
		rec := do(t, s, http.MethodPost, "/v1/anonymize", text, http.Header{requestIDHeader: {id}})
		assert.Equal(t, id, rec.Header().Get(requestIDHeader))
	})

	t.Run("bad bodies", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/anonymize", `{"text":`, nil).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/anonymize", `{"txt":"x"}`, nil).Code)
	})
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 16 })
	rec := do(t, s, http.MethodPost, "/v1/anonymize", `{"text":"this body is well over sixteen bytes"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBatchAPI(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/v1/batch",
		`{"texts":["mail jane@example.com","again jane@example.com",""]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 0, resp.Failed)

	first := strings.TrimPrefix(resp.Results[0].Text, "mail ")
	second := strings.TrimPrefix(resp.Results[1].Text, "again ")
	assert.Equal(t, first, second, "one value, one replacement across items")
	assert.NotEqual(t, "jane@example.com", first)
	assert.Equal(t, "", resp.Results[2].Text)

	assert.NotContains(t, rec.Body.String(), "jane@example.com")
	require.NotNil(t, resp.Results[0].Report)
	require.Len(t, resp.Results[0].Report.Findings, 1)
	assert.Empty(t, resp.Results[0].Report.Findings[0].Original)
}

func TestPatternsAPI(t *testing.T) {
	s := newTestServer(t, nil)
	anonymize := func() string {
		var resp anonymizeResponse
		decodeBody(t, do(t, s, http.MethodPost, "/v1/anonymize", `{"text":"badge EMP-12AB"}`, nil), &resp)
		return resp.Text
	}

	rec := do(t, s, http.MethodPost, "/v1/patterns", `{"type":"employee_id","pattern":"EMP-\\d{2}[A-Z]{2}"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, anonymize(), "EMP-12AB")

	rec = do(t, s, http.MethodGet, "/v1/patterns", "", nil)
	assert.Contains(t, rec.Body.String(), `"type":"employee_id"`)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/patterns/employee_id/disable", "", nil).Code)
	assert.Equal(t, "badge EMP-12AB", anonymize())

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/patterns/employee_id/enable", "", nil).Code)
	assert.NotContains(t, anonymize(), "EMP-12AB")

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/v1/patterns/employee_id", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/v1/patterns/employee_id", "", nil).Code)

	rec = do(t, s, http.MethodPost, "/v1/patterns", `{"type":"broken","pattern":"(unclosed"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.RateLimit.Enabled = true
		cfg.Security.RateLimit.RequestsPerMin = 1
		cfg.Security.RateLimit.Burst = 2
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/patterns", "", nil).Code)
	}
	rec := do(t, s, http.MethodGet, "/v1/patterns", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "", nil).Code, "health is not limited")
}

type upstreamCapture struct {
	mu     sync.Mutex
	path   string
	body   string
	header http.Header
}

func TestAnonymizingProxy(t *testing.T) {
	var got upstreamCapture
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		got.path, got.body, got.header = r.URL.Path, string(body), r.Header.Clone()
		got.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, func(cfg *config.Config) { cfg.Upstream.OpenAI = upstream.URL })

	body := `{"messages":[{"role":"user","content":"My SSN is 123-45-6789, mail me at jane@example.com"}]}`
	rec := do(t, s, http.MethodPost, "/openai/v1/chat/completions", body, http.Header{
		"Authorization": {"Bearer sk-test"},
		"Cookie":        {"session=abc"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"chatcmpl-1"}`, rec.Body.String())

	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.NotContains(t, got.body, "123-45-6789")
	assert.NotContains(t, got.body, "jane@example.com")
	assert.True(t, json.Valid([]byte(got.body)), got.body)
	assert.Equal(t, "Bearer sk-test", got.header.Get("Authorization"))
	assert.Equal(t, "[REDACTED]", got.header.Get("Cookie"))
	assert.Equal(t, "pii-guard/"+Version, got.header.Get("User-Agent"))
}

func TestProxyUpstreamDown(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Upstream.Ollama = "http://127.0.0.1:1"
		cfg.Upstream.Timeout = time.Second
	})
	rec := do(t, s, http.MethodPost, "/ollama/api/generate", `{"prompt":"hi"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInvalidUpstream(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Upstream.Anthropic = "not a url"
	protector, err := privacy.New(cfg.Privacy, logger.NewNop())
	require.NoError(t, err)

	_, err = New(cfg, protector, logger.NewNop())
	assert.Error(t, err)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeRecorder) Record(_ context.Context, e audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeRecorder) snapshot() []audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Event(nil), f.events...)
}

func TestAuditRecording(t *testing.T) {
	rec := &fakeRecorder{}
	s := newTestServer(t, nil, WithAudit(rec))

	resp := do(t, s, http.MethodPost, "/v1/anonymize", `{"text":"ssn 123-45-6789"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	e := rec.snapshot()[0]
	assert.Equal(t, resp.Header().Get(requestIDHeader), e.RequestID)
	assert.Equal(t, "api", e.Source)
	assert.Equal(t, audit.TypeCounts{"ssn": 1}, e.ByType)

	raw, _ := json.Marshal(e)
	assert.NotContains(t, string(raw), "123-45-6789")
}

func TestDashboardRoutes(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.WebSocket.Enabled = true })
	require.NotNil(t, s.GetWebSocketHub())

	rec := do(t, s, http.MethodGet, "/dashboard", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pii-guard")

	off := newTestServer(t, nil)
	assert.Nil(t, off.GetWebSocketHub())
	assert.Equal(t, http.StatusNotFound, do(t, off, http.MethodGet, "/dashboard", "", nil).Code)
}

func TestHeaderPolicy(t *testing.T) {
	cfg := config.GetDefaults().Privacy
	cfg.HeaderScrubbing.Enabled = true
	cfg.HeaderScrubbing.Headers = []string{"Authorization", "x-api-key", "cookie", " "}
	cfg.HeaderScrubbing.PreserveUpstreamAuth = true

	newHeaders := func() http.Header {
		return http.Header{
			"Authorization": {"Bearer sk-123"},
			"X-Api-Key":     {"key-1"},
			"Cookie":        {"session=abc"},
			"Set-Cookie":    {"a=b"},
			"Content-Type":  {"application/json"},
		}
	}

	h := newHeaders()
	scrubbed := newHeaderPolicy(cfg).redact(h)
	assert.Equal(t, []string{"Cookie", "Set-Cookie"}, scrubbed)
	assert.Equal(t, "Bearer sk-123", h.Get("Authorization"))
	assert.Equal(t, "key-1", h.Get("X-Api-Key"))
	assert.Equal(t, redactedHeader, h.Get("Cookie"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))

	t.Run("auth redacted when not preserved", func(t *testing.T) {
		c := cfg
		c.HeaderScrubbing.PreserveUpstreamAuth = false
		h := newHeaders()
		assert.Len(t, newHeaderPolicy(c).redact(h), 4)
		assert.Equal(t, redactedHeader, h.Get("Authorization"))
	})

	t.Run("disabled", func(t *testing.T) {
		for _, mutate := range []func(*config.PrivacyConfig){
			func(c *config.PrivacyConfig) { c.Enabled = false },
			func(c *config.PrivacyConfig) { c.HeaderScrubbing.Enabled = false },
		} {
			c := cfg
			mutate(&c)
			h := newHeaders()
			assert.Empty(t, newHeaderPolicy(c).redact(h))
			assert.Equal(t, newHeaders(), h)
		}
	})
}
