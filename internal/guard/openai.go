package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

const openAIConfidence = 0.90

// OpenAIGuard asks a chat completion model for PII and locates the values it
// reports. The API key is read from OPENAI_API_KEY.
type OpenAIGuard struct {
	model   string
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	log     *logger.Logger

	once      sync.Once
	client    *openai.Client
	transport lazyHTTPClient
}

// NewOpenAI creates an OpenAI guard. The client is built on first use.
func NewOpenAI(cfg config.GuardConfig, log *logger.Logger) *OpenAIGuard {
	model := cfg.OpenAI.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGuard{
		model:   model,
		baseURL: strings.TrimRight(cfg.OpenAI.BaseURL, "/"),
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		limiter: newLimiter(cfg.RateLimit),
		log:     log,
	}
}

// newOpenAIWithClient creates a guard around a pre-configured client.
func newOpenAIWithClient(client *openai.Client, model string) *OpenAIGuard {
	g := &OpenAIGuard{
		model:   model,
		apiKey:  "test",
		limiter: newLimiter(0),
		log:     logger.NewNop(),
		client:  client,
	}
	g.once.Do(func() {})
	return g
}

func (g *OpenAIGuard) Name() string { return "openai" }

// Close releases idle connections held by the API client.
func (g *OpenAIGuard) Close() error { return g.transport.Close() }

// IsAvailable reports whether an API key is configured.
func (g *OpenAIGuard) IsAvailable(context.Context) bool {
	return g.apiKey != ""
}

func (g *OpenAIGuard) getClient() *openai.Client {
	g.once.Do(func() {
		cfg := openai.DefaultConfig(g.apiKey)
		cfg.HTTPClient = g.transport.get()
		if g.baseURL != "" {
			cfg.BaseURL = g.baseURL + "/v1"
		}
		g.client = openai.NewClientWithConfig(cfg)
	})
	return g.client
}

// Detect implements privacy.Guard.
func (g *OpenAIGuard) Detect(ctx context.Context, text string) ([]privacy.Span, error) {
	if g.apiKey == "" {
		return nil, privacy.NewGuardUnavailable(g.Name(), errors.New("OPENAI_API_KEY is not set"))
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}

	resp, err := g.getClient().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Find ALL PII in this text:\n\n" + text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), fmt.Errorf("openai api call: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, privacy.NewGuardUnavailable(g.Name(), errors.New("openai api call: no choices returned"))
	}

	findings, err := parseLLMFindings(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, privacy.NewGuardUnavailable(g.Name(), err)
	}

	spans := locate(text, findings, "guard:"+g.Name(), openAIConfidence)
	g.log.Debug("OpenAI guard finished",
		zap.String("model", g.model),
		zap.Int("reported", len(findings)),
		zap.Int("located", len(spans)),
	)
	return spans, nil
}
