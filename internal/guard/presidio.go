package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// PresidioGuard calls a Presidio analyzer service over HTTP.
type PresidioGuard struct {
	baseURL        string
	language       string
	scoreThreshold float64
	transport      lazyHTTPClient
	limiter        *rate.Limiter
	log            *logger.Logger
}

// NewPresidio creates a Presidio adapter.
func NewPresidio(cfg config.GuardConfig, log *logger.Logger) *PresidioGuard {
	baseURL := cfg.Presidio.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:5002"
	}
	language := cfg.Presidio.Language
	if language == "" {
		language = "en"
	}
	return &PresidioGuard{
		baseURL:        strings.TrimRight(baseURL, "/"),
		language:       language,
		scoreThreshold: cfg.Presidio.ScoreThreshold,
		limiter:        newLimiter(cfg.RateLimit),
		log:            log,
	}
}

func (g *PresidioGuard) Name() string { return "presidio" }

func (g *PresidioGuard) Close() error { return g.transport.Close() }

type presidioRequest struct {
	Text           string  `json:"text"`
	Language       string  `json:"language"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// IsAvailable checks the analyzer health endpoint.
func (g *PresidioGuard) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.transport.get().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Detect implements privacy.Guard.
func (g *PresidioGuard) Detect(ctx context.Context, text string) ([]privacy.Span, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}

	body, err := json.Marshal(presidioRequest{
		Text:           text,
		Language:       g.language,
		ScoreThreshold: g.scoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling presidio request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("creating presidio request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.transport.get().Do(req)
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("presidio api call: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("presidio api call: status %d", resp.StatusCode))
	}

	var results []presidioResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("decoding presidio response: %w", err))
	}

	offsets := codepointOffsets(text)
	spans := make([]privacy.Span, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End <= r.Start || r.End >= len(offsets) {
			g.log.Debug("Dropping out of range presidio result",
				zap.String("entity_type", r.EntityType),
				zap.Int("start", r.Start),
				zap.Int("end", r.End),
			)
			continue
		}
		spans = append(spans, privacy.Span{
			Start:      offsets[r.Start],
			End:        offsets[r.End],
			Type:       mapPresidioType(r.EntityType),
			Source:     "guard:" + g.Name(),
			Confidence: r.Score,
		})
	}
	return spans, nil
}

// codepointOffsets maps each codepoint index of text, plus the end, to its
// byte offset.
func codepointOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
