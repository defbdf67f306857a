package privacy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

var typeTagPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,64}$`)

// ErrRuleTimeout is the cause of a DetectionError for a rule that exceeded its
// match timeout. The engine's own error quotes the input, so it is not kept.
var ErrRuleTimeout = errors.New("match timeout exceeded")

// Rule is the public view of a registered detection rule.
type Rule struct {
	Type         PIIType `json:"type"`
	Pattern      string  `json:"pattern"`
	Precedence   int     `json:"precedence"`
	Enabled      bool    `json:"enabled"`
	Builtin      bool    `json:"builtin"`
	Backtracking bool    `json:"backtracking"`
}

type compiledRule struct {
	Rule
	re     *regexp.Regexp
	slowRe *regexp2.Regexp
}

// Registry holds the ordered set of detection rules keyed by type tag. Rules keep
// their declaration order; re-registering a tag replaces the rule in place.
type Registry struct {
	mu      sync.RWMutex
	rules   []*compiledRule
	timeout time.Duration
}

// NewRegistry returns a registry preloaded with the built-in rules, all enabled.
// ruleTimeout bounds custom patterns that need the backtracking engine.
func NewRegistry(ruleTimeout time.Duration) *Registry {
	r := &Registry{timeout: ruleTimeout}
	for _, spec := range GetDefaultRules() {
		r.rules = append(r.rules, &compiledRule{
			Rule: Rule{
				Type:       spec.Type,
				Pattern:    spec.Expr,
				Precedence: spec.Precedence,
				Enabled:    true,
				Builtin:    true,
			},
			re: regexp.MustCompile(spec.Expr),
		})
	}
	return r
}

// Configure enables exactly the listed detectors. "all" or an empty list enables
// every rule.
func (r *Registry) Configure(detectors []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(detectors) == 0 {
		detectors = []string{"all"}
	}

	enabled := make(map[PIIType]bool, len(r.rules))
	for _, name := range detectors {
		if name == "all" {
			for _, rule := range r.rules {
				enabled[rule.Type] = true
			}
			continue
		}
		if r.find(PIIType(name)) < 0 {
			return &ConfigurationError{Field: "detector", Value: name, Err: errors.New("unknown detector")}
		}
		enabled[PIIType(name)] = true
	}

	for _, rule := range r.rules {
		rule.Enabled = enabled[rule.Type]
	}
	return nil
}

// AddPattern registers pattern under typeTag. A precedence of 0 selects
// DefaultPrecedence. Patterns are compiled with RE2 when possible and fall back
// to a backtracking engine bounded by the rule timeout, so lookarounds and
// backreferences are accepted.
func (r *Registry) AddPattern(typeTag, pattern string, precedence int) error {
	typeTag = strings.TrimSpace(typeTag)
	if !typeTagPattern.MatchString(typeTag) {
		return &ConfigurationError{Field: "type", Value: typeTag, Err: errors.New("type tag must be 1-64 characters of [A-Za-z0-9_.:-]")}
	}
	if pattern == "" {
		return &ConfigurationError{Field: "pattern", Value: typeTag, Err: errors.New("pattern is empty")}
	}
	if precedence == 0 {
		precedence = DefaultPrecedence
	}
	if precedence < 0 || precedence > MaxPrecedence {
		return &ConfigurationError{Field: "precedence", Value: fmt.Sprint(precedence), Err: fmt.Errorf("must be within 1..%d", MaxPrecedence)}
	}

	rule := &compiledRule{Rule: Rule{
		Type:       PIIType(typeTag),
		Pattern:    pattern,
		Precedence: precedence,
		Enabled:    true,
	}}
	re, err := regexp.Compile(pattern)
	if err != nil {
		slow, slowErr := regexp2.Compile(pattern, regexp2.None)
		if slowErr != nil {
			return &ConfigurationError{Field: "pattern", Value: pattern, Err: err}
		}
		if r.timeout > 0 {
			slow.MatchTimeout = r.timeout
		}
		rule.slowRe = slow
		rule.Backtracking = true
	} else {
		rule.re = re
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.find(rule.Type); i >= 0 {
		r.rules[i] = rule
	} else {
		r.rules = append(r.rules, rule)
	}
	return nil
}

// RemovePattern deletes the rule for typeTag.
func (r *Registry) RemovePattern(typeTag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(PIIType(typeTag))
	if i < 0 {
		return fmt.Errorf("unknown rule: %s", typeTag)
	}
	r.rules = append(r.rules[:i], r.rules[i+1:]...)
	return nil
}

// Enable turns the rule for typeTag on.
func (r *Registry) Enable(typeTag string) error {
	return r.setEnabled(typeTag, true)
}

// Disable turns the rule for typeTag off without forgetting it.
func (r *Registry) Disable(typeTag string) error {
	return r.setEnabled(typeTag, false)
}

func (r *Registry) setEnabled(typeTag string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(PIIType(typeTag))
	if i < 0 {
		return fmt.Errorf("unknown rule: %s", typeTag)
	}
	r.rules[i].Enabled = enabled
	return nil
}

// Rules returns a snapshot of all rules in declaration order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Rule
	}
	return out
}

// GetEnabledRules returns the type tags of enabled rules in declaration order.
func (r *Registry) GetEnabledRules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var enabled []string
	for _, rule := range r.rules {
		if rule.Enabled {
			enabled = append(enabled, string(rule.Type))
		}
	}
	return enabled
}

// MatchAll runs every enabled rule over text and returns candidate spans in rule
// declaration order, then match order. Rules that fail are reported as
// DetectionErrors and contribute no spans.
func (r *Registry) MatchAll(ctx context.Context, text string) ([]Span, []error) {
	r.mu.RLock()
	active := make([]compiledRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			active = append(active, *rule)
		}
	}
	r.mu.RUnlock()

	var (
		spans   []Span
		failed  []error
		offsets []int
	)
	for _, rule := range active {
		if err := ctx.Err(); err != nil {
			failed = append(failed, &DetectionError{Rule: string(rule.Type), Err: err})
			continue
		}

		if rule.re != nil {
			for _, loc := range rule.re.FindAllStringIndex(text, -1) {
				if loc[1] > loc[0] {
					spans = append(spans, rule.span(loc[0], loc[1]))
				}
			}
			continue
		}

		if offsets == nil {
			offsets = runeOffsets(text)
		}
		found, err := matchBacktracking(rule.slowRe, text, offsets)
		if err != nil {
			failed = append(failed, &DetectionError{Rule: string(rule.Type), Err: err})
			continue
		}
		for _, loc := range found {
			spans = append(spans, rule.span(loc[0], loc[1]))
		}
	}
	return spans, failed
}

func (rule compiledRule) span(start, end int) Span {
	return Span{
		Start:      start,
		End:        end,
		Type:       rule.Type,
		Source:     "regex:" + string(rule.Type),
		Confidence: 1.0,
		Precedence: rule.Precedence,
	}
}

// matchBacktracking collects all matches of re as byte ranges. The engine
// reports rune indexes, so offsets maps rune index to byte offset.
func matchBacktracking(re *regexp2.Regexp, text string, offsets []int) ([][2]int, error) {
	var out [][2]int
	m, err := re.FindStringMatch(text)
	for m != nil && err == nil {
		if m.Length > 0 {
			out = append(out, [2]int{offsets[m.Index], offsets[m.Index+m.Length]})
		}
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return nil, ErrRuleTimeout
	}
	return out, nil
}

// runeOffsets returns the byte offset of every rune in text plus a final entry
// for len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

func (r *Registry) find(t PIIType) int {
	for i, rule := range r.rules {
		if rule.Type == t {
			return i
		}
	}
	return -1
}
