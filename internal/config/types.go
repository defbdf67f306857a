package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Guard     GuardConfig     `yaml:"guard" mapstructure:"guard"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// PrivacyConfig contains PII detection and replacement configuration
type PrivacyConfig struct {
	Enabled                bool            `yaml:"enabled" mapstructure:"enabled"`
	Locale                 string          `yaml:"locale" mapstructure:"locale"`
	ConsistentReplacements bool            `yaml:"consistent_replacements" mapstructure:"consistent_replacements"`
	Seed                   *int64          `yaml:"seed" mapstructure:"seed"`
	Detectors              []string        `yaml:"detectors" mapstructure:"detectors"`
	CustomPatterns         []CustomPattern `yaml:"custom_patterns" mapstructure:"custom_patterns"`
	MergePolicy            string          `yaml:"merge_policy" mapstructure:"merge_policy"` // precedence or positional
	RuleTimeout            time.Duration   `yaml:"rule_timeout" mapstructure:"rule_timeout"`
	HeaderScrubbing        struct {
		Enabled              bool     `yaml:"enabled" mapstructure:"enabled"`
		Headers              []string `yaml:"headers" mapstructure:"headers"`
		PreserveUpstreamAuth bool     `yaml:"preserve_upstream_auth" mapstructure:"preserve_upstream_auth"`
	} `yaml:"header_scrubbing" mapstructure:"header_scrubbing"`
}

// CustomPattern is a user-supplied detection rule. Precedence 0 means default.
type CustomPattern struct {
	Type       string `yaml:"type" mapstructure:"type"`
	Pattern    string `yaml:"pattern" mapstructure:"pattern"`
	Precedence int    `yaml:"precedence" mapstructure:"precedence"`
}

// GuardConfig selects and configures the unstructured PII detector
type GuardConfig struct {
	Provider  string         `yaml:"provider" mapstructure:"provider"` // regex, openai, bedrock, llama, presidio
	Timeout   time.Duration  `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64        `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	EnvFile   string         `yaml:"env_file" mapstructure:"env_file"`
	OpenAI    OpenAIConfig   `yaml:"openai" mapstructure:"openai"`
	Bedrock   BedrockConfig  `yaml:"bedrock" mapstructure:"bedrock"`
	Llama     LlamaConfig    `yaml:"llama" mapstructure:"llama"`
	Presidio  PresidioConfig `yaml:"presidio" mapstructure:"presidio"`
}

// OpenAIConfig configures the OpenAI guard. The API key is read from OPENAI_API_KEY.
type OpenAIConfig struct {
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BedrockConfig configures the AWS Bedrock Guardrails guard
type BedrockConfig struct {
	GuardrailID      string `yaml:"guardrail_id" mapstructure:"guardrail_id"`
	GuardrailVersion string `yaml:"guardrail_version" mapstructure:"guardrail_version"`
	Region           string `yaml:"region" mapstructure:"region"`
}

// LlamaConfig configures the Llama Guard guard served by Ollama
type LlamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PresidioConfig configures the Presidio analyzer guard
type PresidioConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Language       string  `yaml:"language" mapstructure:"language"`
	ScoreThreshold float64 `yaml:"score_threshold" mapstructure:"score_threshold"`
}

// CacheConfig selects the backing store for replacement mappings
type CacheConfig struct {
	Backend   string        `yaml:"backend" mapstructure:"backend"` // memory, redis, bolt
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	BoltPath  string        `yaml:"bolt_path" mapstructure:"bolt_path"`
}

// AuditConfig contains the optional PostgreSQL audit trail configuration
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// BatchConfig contains batch, file and directory processing configuration
type BatchConfig struct {
	Workers      int      `yaml:"workers" mapstructure:"workers"`
	MaxFileBytes int64    `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	Fields       []string `yaml:"fields" mapstructure:"fields"` // structured inputs: fields to anonymize, empty = all strings
	Extensions   []string `yaml:"extensions" mapstructure:"extensions"`
}

// SecurityConfig contains API protection configuration
type SecurityConfig struct {
	RateLimit struct {
		Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
		Burst          int  `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// UpstreamConfig contains upstream LLM endpoints for the anonymizing proxy
type UpstreamConfig struct {
	OpenAI    string        `yaml:"openai" mapstructure:"openai"`
	Anthropic string        `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    string        `yaml:"ollama" mapstructure:"ollama"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Path           string   `yaml:"path" mapstructure:"path"`
	MaxConnections int      `yaml:"max_connections" mapstructure:"max_connections"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username       string   `yaml:"username" mapstructure:"username"`
	Password       string   `yaml:"password" mapstructure:"password"`
	Events         struct {
		BroadcastDetections  bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Privacy: PrivacyConfig{
			Enabled:                true,
			Locale:                 "en_US",
			ConsistentReplacements: true,
			Detectors:              []string{"all"},
			MergePolicy:            "precedence",
			RuleTimeout:            250 * time.Millisecond,
		},
		Guard: GuardConfig{
			Provider:  "regex",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			EnvFile:   ".env",
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Bedrock: BedrockConfig{
				GuardrailVersion: "DRAFT",
				Region:           "us-east-1",
			},
			Llama: LlamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama-guard3",
			},
			Presidio: PresidioConfig{
				BaseURL:        "http://localhost:5002",
				Language:       "en",
				ScoreThreshold: 0.5,
			},
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "pii-guard",
			BoltPath:  "pii-guard-mappings.db",
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Batch: BatchConfig{
			Workers:      4,
			MaxFileBytes: 64 << 20,
			Extensions:   []string{".txt", ".md", ".log", ".csv", ".json", ".jsonl", ".parquet"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			OpenAI:    "https://api.openai.com",
			Anthropic: "https://api.anthropic.com",
			Ollama:    "http://localhost:11434",
			Timeout:   60 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxConnections: 100,
			AllowedOrigins: []string{"*"},
		},
	}

	cfg.Privacy.HeaderScrubbing.Enabled = true
	cfg.Privacy.HeaderScrubbing.Headers = []string{"authorization", "x-api-key", "cookie"}
	cfg.Privacy.HeaderScrubbing.PreserveUpstreamAuth = true

	cfg.Security.RateLimit.Enabled = true
	cfg.Security.RateLimit.RequestsPerMin = 600
	cfg.Security.RateLimit.Burst = 50

	cfg.Logging.File.Path = "logs/pii-guard.log"

	cfg.WebSocket.Events.BroadcastDetections = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
