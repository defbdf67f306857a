package proxy

import (
	"net/http"
	"slices"
	"strings"

	"github.com/RoyNativ-AI/pii-guard/internal/config"
)

const redactedHeader = "[REDACTED]"

// authMarkers identify credentials the upstream needs to accept the request.
var authMarkers = []string{"authorization", "x-api-key", "x-auth-token", "bearer"}

// headerPolicy redacts request headers before they are forwarded upstream.
// Header names match a configured entry when they contain it, ignoring case.
type headerPolicy struct {
	enabled   bool
	keepAuth  bool
	sensitive []string
}

func newHeaderPolicy(cfg config.PrivacyConfig) headerPolicy {
	hs := cfg.HeaderScrubbing
	p := headerPolicy{
		enabled:  cfg.Enabled && hs.Enabled,
		keepAuth: hs.PreserveUpstreamAuth,
	}
	for _, name := range hs.Headers {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			p.sensitive = append(p.sensitive, name)
		}
	}
	return p
}

// redact replaces sensitive header values in h and returns the affected names
// in sorted order.
func (p headerPolicy) redact(h http.Header) []string {
	if !p.enabled || len(p.sensitive) == 0 {
		return nil
	}
	var scrubbed []string
	for name := range h {
		lower := strings.ToLower(name)
		if !containsAny(lower, p.sensitive) {
			continue
		}
		if p.keepAuth && containsAny(lower, authMarkers) {
			continue
		}
		h[name] = []string{redactedHeader}
		scrubbed = append(scrubbed, name)
	}
	slices.Sort(scrubbed)
	return scrubbed
}

func containsAny(s string, parts []string) bool {
	return slices.ContainsFunc(parts, func(part string) bool {
		return strings.Contains(s, part)
	})
}
