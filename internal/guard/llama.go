package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

const llamaConfidence = 0.85

// LlamaGuard queries a Llama Guard model served by Ollama.
type LlamaGuard struct {
	baseURL   string
	model     string
	transport lazyHTTPClient
	limiter   *rate.Limiter
	log       *logger.Logger
}

// NewLlama creates a Llama Guard adapter. An empty base URL means the local
// Ollama default.
func NewLlama(cfg config.GuardConfig, log *logger.Logger) *LlamaGuard {
	baseURL := cfg.Llama.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Llama.Model
	if model == "" {
		model = "llama-guard3"
	}
	return &LlamaGuard{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		limiter: newLimiter(cfg.RateLimit),
		log:     log,
	}
}

func (g *LlamaGuard) Name() string { return "llama" }

// Close releases idle connections to Ollama.
func (g *LlamaGuard) Close() error { return g.transport.Close() }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// IsAvailable checks that the Ollama server answers.
func (g *LlamaGuard) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
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
func (g *LlamaGuard) Detect(ctx context.Context, text string) ([]privacy.Span, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.model,
		Prompt: detectionPrompt + "\n\nText to analyze:\n" + text + "\n\nPII found (JSON):",
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("creating ollama request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.transport.get().Do(req)
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("ollama api call: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("ollama api call: status %d", resp.StatusCode))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("decoding ollama response: %w", err))
	}

	findings, err := parseLLMFindings(out.Response)
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}

	spans := locate(text, findings, "guard:"+g.Name(), llamaConfidence)
	g.log.Debug("Llama guard finished",
		zap.String("model", g.model),
		zap.Int("reported", len(findings)),
		zap.Int("located", len(spans)),
	)
	return spans, nil
}
