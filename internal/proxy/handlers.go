package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// upstream forwards a path prefix to one LLM provider.
type upstream struct {
	name   string
	prefix string
	target *url.URL
	proxy  *httputil.ReverseProxy
	server *Server
}

func (s *Server) newUpstreams() ([]*upstream, error) {
	providers := []struct{ name, target string }{
		{"openai", s.config.Upstream.OpenAI},
		{"ollama", s.config.Upstream.Ollama},
		{"anthropic", s.config.Upstream.Anthropic},
	}

	var upstreams []*upstream
	for _, p := range providers {
		if p.target == "" {
			continue
		}
		target, err := url.Parse(p.target)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid %s upstream URL %q", p.name, p.target)
		}
		upstreams = append(upstreams, s.newUpstream(p.name, target))
	}
	return upstreams, nil
}

func (s *Server) newUpstream(name string, target *url.URL) *upstream {
	u := &upstream{name: name, prefix: "/" + name, target: target, server: s}
	u.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, u.prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			if pr.Out.Header.Get("User-Agent") == "" {
				pr.Out.Header.Set("User-Agent", "pii-guard/"+Version)
			}
		},
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: s.config.Upstream.Timeout,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WithRequestID(getRequestID(r.Context())).Error("Proxy error",
				zap.String("provider", name),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "upstream request failed")
		},
	}
	return u
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := u.server.logger.WithRequestID(getRequestID(r.Context()))
	log.Debug("Proxying request",
		zap.String("provider", u.name),
		zap.String("target", u.target.Host),
		zap.String("method", r.Method),
	)

	start := time.Now()
	u.proxy.ServeHTTP(w, r)

	log.Info("Request proxied",
		zap.String("provider", u.name),
		zap.Duration("upstream_duration", time.Since(start)),
	)
}
