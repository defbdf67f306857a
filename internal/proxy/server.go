// Package proxy serves the anonymization API and an anonymizing reverse proxy
// in front of LLM providers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/audit"
	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
	"github.com/RoyNativ-AI/pii-guard/internal/security"
	"github.com/RoyNativ-AI/pii-guard/internal/web"
	"github.com/RoyNativ-AI/pii-guard/internal/websocket"
)

// Version is reported by /info and sent as the upstream User-Agent.
const Version = "0.1.0"

// Server represents the main HTTP server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	protector *privacy.Protector
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *security.RateLimiter
	headers   headerPolicy
	audit     audit.Recorder
	upstreams []*upstream
	started   time.Time

	totalRequests   atomic.Int64
	totalDetections atomic.Int64
}

// Option customizes a Server.
type Option func(*Server)

// WithAudit records a summary of every anonymization.
func WithAudit(r audit.Recorder) Option {
	return func(s *Server) { s.audit = r }
}

// New creates a new server around protector
func New(cfg *config.Config, protector *privacy.Protector, log *logger.Logger, opts ...Option) (*Server, error) {
	if protector == nil {
		return nil, errors.New("protector is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("proxy"),
		protector: protector,
		router:    mux.NewRouter(),
		limiter:   security.NewRateLimiter(&cfg.Security),
		headers:   newHeaderPolicy(cfg.Privacy),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(websocket.NewHubConfig(cfg.WebSocket), log.WithComponent("websocket").Logger)
	}

	upstreams, err := s.newUpstreams()
	if err != nil {
		return nil, err
	}
	s.upstreams = upstreams

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	api.HandleFunc("/anonymize/report", s.handleAnonymizeReport).Methods(http.MethodPost)
	api.HandleFunc("/batch", s.handleBatch).Methods(http.MethodPost)
	api.HandleFunc("/patterns", s.handleListPatterns).Methods(http.MethodGet)
	api.HandleFunc("/patterns", s.handleAddPattern).Methods(http.MethodPost)
	api.HandleFunc("/patterns/{type}", s.handleRemovePattern).Methods(http.MethodDelete)
	api.HandleFunc("/patterns/{type}/enable", s.handleEnablePattern).Methods(http.MethodPut)
	api.HandleFunc("/patterns/{type}/disable", s.handleDisablePattern).Methods(http.MethodPut)

	for _, u := range s.upstreams {
		sub := s.router.PathPrefix(u.prefix).Subrouter()
		sub.Use(s.loggingMiddleware)
		sub.Use(s.rateLimitMiddleware)
		sub.Use(s.privacyMiddleware)
		sub.PathPrefix("/").Handler(u)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the server until it is stopped. Background workers stop with ctx.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting pii-guard server",
		zap.Int("port", s.config.Server.Port),
		zap.String("guard", s.protector.GuardName()),
		zap.String("locale", s.protector.Locale()),
		zap.String("upstream_openai", s.config.Upstream.OpenAI),
		zap.String("upstream_ollama", s.config.Upstream.Ollama),
		zap.String("upstream_anthropic", s.config.Upstream.Anthropic),
	)

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
	}
	s.limiter.StartCleanupRoutine(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping pii-guard server")
	return s.server.Shutdown(ctx)
}

// GetWebSocketHub returns the WebSocket hub, or nil when disabled
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

// record publishes a report summary to the hub and the audit trail.
func (s *Server) record(ctx context.Context, requestID, source string, report *privacy.Report) {
	s.totalRequests.Add(1)
	if report == nil {
		return
	}
	s.totalDetections.Add(int64(report.Count))

	if s.wsHub != nil && report.Count > 0 {
		ev := websocket.NewDetectionEvent(requestID, source, report)
		if r, ok := ctx.Value(requestInfoKey).(requestInfo); ok {
			ev.Method, ev.Path, ev.ClientIP = r.method, r.path, r.clientIP
		}
		s.wsHub.BroadcastDetection(ev)
	}

	if s.audit != nil {
		event := audit.EventFromReport(requestID, source, report)
		go func() {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.audit.Record(actx, event); err != nil {
				s.logger.WithRequestID(requestID).Warn("Audit record failed", zap.Error(err))
			}
		}()
	}
}
