// Package guard provides privacy.Guard adapters for model-backed PII detectors.
//
// OpenAI, Llama Guard and Bedrock report the sensitive strings themselves, so
// those adapters locate every occurrence in the input instead of trusting model
// offsets. Presidio reports codepoint offsets, which are converted to bytes.
package guard

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// Provider names accepted by New, including aliases.
var providers = map[string]string{
	"":            "regex",
	"regex":       "regex",
	"none":        "regex",
	"openai":      "openai",
	"gpt":         "openai",
	"bedrock":     "bedrock",
	"aws":         "bedrock",
	"llama":       "llama",
	"llama-guard": "llama",
	"presidio":    "presidio",
}

// Providers returns the canonical provider names.
func Providers() []string {
	return []string{"regex", "openai", "bedrock", "llama", "presidio"}
}

// New builds the guard selected by cfg.Provider. Credentials are read from the
// environment after loading cfg.EnvFile, if present.
func New(cfg config.GuardConfig, log *logger.Logger) (privacy.Guard, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("guard")

	name, ok := providers[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	if !ok {
		return nil, &privacy.ConfigurationError{
			Field: "guard.provider",
			Value: cfg.Provider,
			Err:   fmt.Errorf("supported providers: %s", strings.Join(Providers(), ", ")),
		}
	}
	if name == "regex" {
		return privacy.RegexOnlyGuard{}, nil
	}

	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		log.Warn("Failed to load guard env file", zap.String("path", cfg.EnvFile), zap.Error(err))
	}

	var (
		g   privacy.Guard
		err error
	)
	switch name {
	case "openai":
		g = NewOpenAI(cfg, log)
	case "bedrock":
		g, err = NewBedrock(cfg, log)
	case "llama":
		g = NewLlama(cfg, log)
	case "presidio":
		g = NewPresidio(cfg, log)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Guard initialized",
		zap.String("provider", name),
		zap.Duration("timeout", cfg.Timeout),
		zap.Float64("rate_limit", cfg.RateLimit),
	)
	return g, nil
}

// newLimiter returns a limiter allowing rps requests per second. Zero or
// negative means unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// lazyHTTPClient builds an HTTP client with a private transport on first use,
// so closing it never touches http.DefaultTransport.
type lazyHTTPClient struct {
	mu     sync.Mutex
	client *http.Client
}

func (c *lazyHTTPClient) get() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return c.client
}

// Close drops idle connections. The client stays usable.
func (c *lazyHTTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}
