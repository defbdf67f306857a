package privacy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
)

// Protector finds PII in text and replaces each value with a consistent,
// format-preserving fake. It combines the pattern registry with an optional
// guard and is safe for concurrent use once configured.
type Protector struct {
	config       config.PrivacyConfig
	logger       *logger.Logger
	registry     *Registry
	generator    *Generator
	cache        *ConsistencyCache
	policy       MergePolicy
	guard        Guard
	guardTimeout time.Duration
	store        MappingStore
	generators   map[PIIType]GeneratorFunc
	workers      int
	now          func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Protector.
type Option func(*Protector)

// WithGuard attaches an unstructured detector. Each Detect call is bounded by
// timeout; zero means only the caller's context bounds it.
func WithGuard(g Guard, timeout time.Duration) Option {
	return func(p *Protector) {
		if g != nil {
			p.guard = g
		}
		p.guardTimeout = timeout
	}
}

// WithStore backs the consistency cache with a shared mapping store.
func WithStore(s MappingStore) Option {
	return func(p *Protector) { p.store = s }
}

// WithGenerator registers a replacement generator for t.
func WithGenerator(t PIIType, fn GeneratorFunc) Option {
	return func(p *Protector) { p.generators[t] = fn }
}

// WithClock overrides the time source used for durations and cache entries.
func WithClock(now func() time.Time) Option {
	return func(p *Protector) { p.now = now }
}

// WithWorkers sets the ProcessBatch concurrency.
func WithWorkers(n int) Option {
	return func(p *Protector) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a Protector from cfg. Invalid locales, merge policies, detector
// names and custom patterns are reported as *ConfigurationError.
func New(cfg config.PrivacyConfig, log *logger.Logger, opts ...Option) (*Protector, error) {
	if log == nil {
		log = logger.NewNop()
	}
	p := &Protector{
		config:     cfg,
		logger:     log.WithComponent("privacy"),
		guard:      RegexOnlyGuard{},
		generators: make(map[PIIType]GeneratorFunc),
		workers:    4,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	policy, err := ParseMergePolicy(cfg.MergePolicy)
	if err != nil {
		return nil, err
	}
	p.policy = policy

	locale := cfg.Locale
	if locale == "" {
		locale = "en_US"
	}
	p.generator, err = NewGenerator(locale)
	if err != nil {
		return nil, err
	}
	for t, fn := range p.generators {
		p.generator.Register(t, fn)
	}

	p.registry = NewRegistry(cfg.RuleTimeout)
	if err := p.registry.Configure(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}
	for _, cp := range cfg.CustomPatterns {
		if err := p.registry.AddPattern(cp.Type, cp.Pattern, cp.Precedence); err != nil {
			return nil, fmt.Errorf("failed to add custom pattern %s: %w", cp.Type, err)
		}
	}

	p.cache = NewConsistencyCache(p.generator, CacheOptions{
		Enabled: cfg.ConsistentReplacements,
		Seed:    cfg.Seed,
		Store:   p.store,
		Clock:   p.now,
	}, p.logger)

	p.logger.Info("Privacy protector initialized",
		zap.String("locale", locale),
		zap.String("guard", p.guard.Name()),
		zap.String("merge_policy", string(policy)),
		zap.Int("total_rules", len(p.registry.Rules())),
		zap.Int("enabled_rules", len(p.registry.GetEnabledRules())),
		zap.Bool("consistent", cfg.ConsistentReplacements),
		zap.Bool("seeded", cfg.Seed != nil),
	)

	return p, nil
}

// Anonymize returns text with every detected PII value replaced.
func (p *Protector) Anonymize(ctx context.Context, text string) (string, error) {
	out, _, err := p.AnonymizeWithReport(ctx, text)
	return out, err
}

// AnonymizeWithReport returns the anonymized text and a report of every
// replacement. Guard failures and rule timeouts are recorded in the report and
// never fail the call; only a context that is already done does.
func (p *Protector) AnonymizeWithReport(ctx context.Context, text string) (string, *Report, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	start := p.now()
	report := &Report{Guard: p.guard.Name(), Findings: []Finding{}}
	if !p.config.Enabled || text == "" {
		report.Duration = p.now().Sub(start)
		return text, report, nil
	}

	candidates, failed := p.registry.MatchAll(ctx, text)
	for _, err := range failed {
		var de *DetectionError
		if errors.As(err, &de) {
			report.SkippedRules = append(report.SkippedRules, de.Rule)
			p.logger.Warn("Detection rule skipped", zap.String("rule", de.Rule), zap.Error(de.Err))
		}
	}

	guardSpans, err := p.detectUnstructured(ctx, text)
	if err != nil {
		report.GuardSkipped = true
		report.GuardError = err.Error()
		p.logger.Warn("Guard unavailable, continuing with pattern rules only",
			zap.String("guard", p.guard.Name()),
			zap.Error(err),
		)
	}
	candidates = append(candidates, p.validGuardSpans(text, guardSpans)...)

	spans := Merge(candidates, p.policy)
	findings := make([]Finding, 0, len(spans))
	for _, s := range spans {
		original := text[s.Start:s.End]
		findings = append(findings, Finding{
			Type:        s.Type,
			Original:    original,
			Replacement: p.cache.GetOrCreate(ctx, s.Type, original),
			Start:       s.Start,
			End:         s.End,
			Source:      s.Source,
			Confidence:  s.Confidence,
		})
	}

	// Substitute from the end so earlier offsets stay valid.
	out := text
	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		out = out[:f.Start] + f.Replacement + out[f.End:]
	}

	report.Findings = findings
	report.Count = len(findings)
	report.Duration = p.now().Sub(start)

	if report.Count > 0 {
		p.logger.Debug("PII detected and replaced",
			zap.Int("count", report.Count),
			zap.Any("types", report.Summary()),
			zap.Duration("duration", report.Duration),
		)
	}

	return out, report, nil
}

type guardResult struct {
	spans []Span
	err   error
}

// detectUnstructured runs the guard under the guard timeout. A guard that
// ignores its context is abandoned once the deadline passes.
func (p *Protector) detectUnstructured(ctx context.Context, text string) ([]Span, error) {
	switch p.guard.(type) {
	case RegexOnlyGuard, *RegexOnlyGuard:
		return nil, nil
	}

	gctx, cancel := ctx, context.CancelFunc(func() {})
	if p.guardTimeout > 0 {
		gctx, cancel = context.WithTimeout(ctx, p.guardTimeout)
	}
	defer cancel()

	name := p.guard.Name()
	ch := make(chan guardResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- guardResult{err: fmt.Errorf("guard panicked: %v", r)}
			}
		}()
		if !p.guard.IsAvailable(gctx) {
			ch <- guardResult{err: errors.New("guard reported unavailable")}
			return
		}
		spans, err := p.guard.Detect(gctx, text)
		ch <- guardResult{spans: spans, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if IsGuardUnavailable(r.err) {
				return nil, r.err
			}
			return nil, NewGuardUnavailable(name, r.err)
		}
		return r.spans, nil
	case <-gctx.Done():
		return nil, NewGuardUnavailable(name, gctx.Err())
	}
}

// validGuardSpans drops spans that fall outside text or split a UTF-8
// sequence and stamps the rest with guard precedence.
func (p *Protector) validGuardSpans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			p.logger.Debug("Dropping out-of-range guard span", zap.Int("start", s.Start), zap.Int("end", s.End))
			continue
		}
		if !utf8.RuneStart(text[s.Start]) || (s.End < len(text) && !utf8.RuneStart(text[s.End])) {
			p.logger.Debug("Dropping misaligned guard span", zap.Int("start", s.Start), zap.Int("end", s.End))
			continue
		}
		s.Precedence = GuardPrecedence
		if s.Type == "" {
			s.Type = TypeCustom
		}
		if s.Source == "" {
			s.Source = "guard:" + p.guard.Name()
		}
		out = append(out, s)
	}
	return out
}

// AddPattern registers or replaces a detection rule. Configuration-time only.
func (p *Protector) AddPattern(typeTag, pattern string, precedence int) error {
	if err := p.registry.AddPattern(typeTag, pattern, precedence); err != nil {
		return err
	}
	p.logger.Info("Detection rule added", zap.String("rule", typeTag), zap.Int("precedence", precedence))
	return nil
}

// RemovePattern deletes a detection rule.
func (p *Protector) RemovePattern(typeTag string) error {
	if err := p.registry.RemovePattern(typeTag); err != nil {
		return err
	}
	p.logger.Info("Detection rule removed", zap.String("rule", typeTag))
	return nil
}

// EnablePattern enables a specific detection rule.
func (p *Protector) EnablePattern(typeTag string) error {
	if err := p.registry.Enable(typeTag); err != nil {
		return err
	}
	p.logger.Info("Detection rule enabled", zap.String("rule", typeTag))
	return nil
}

// DisablePattern disables a specific detection rule.
func (p *Protector) DisablePattern(typeTag string) error {
	if err := p.registry.Disable(typeTag); err != nil {
		return err
	}
	p.logger.Info("Detection rule disabled", zap.String("rule", typeTag))
	return nil
}

// Rules lists the registered detection rules.
func (p *Protector) Rules() []Rule { return p.registry.Rules() }

// GuardName returns the configured guard's name.
func (p *Protector) GuardName() string { return p.guard.Name() }

// Locale returns the generator locale.
func (p *Protector) Locale() string { return p.generator.Locale() }

// CacheLen returns the number of memoized replacements.
func (p *Protector) CacheLen() int { return p.cache.Len() }

// Close releases the guard, if it holds resources, and the mapping store.
func (p *Protector) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if c, ok := p.guard.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		errs = append(errs, p.cache.Close())
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
