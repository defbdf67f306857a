package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

const maxBatchItems = 1000

type anonymizeRequest struct {
	Text string `json:"text"`
}

type anonymizeResponse struct {
	RequestID string          `json:"request_id"`
	Text      string          `json:"text"`
	Report    *privacy.Report `json:"report,omitempty"`
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type batchItem struct {
	Index  int             `json:"index"`
	Text   string          `json:"text,omitempty"`
	Report *privacy.Report `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type batchResponse struct {
	RequestID string      `json:"request_id"`
	Results   []batchItem `json:"results"`
	Failed    int         `json:"failed"`
}

type patternRequest struct {
	Type       string `json:"type"`
	Pattern    string `json:"pattern"`
	Precedence int    `json:"precedence"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":             "pii-guard",
		"version":          Version,
		"privacy_enabled":  s.config.Privacy.Enabled,
		"guard":            s.protector.GuardName(),
		"locale":           s.protector.Locale(),
		"merge_policy":     s.config.Privacy.MergePolicy,
		"rules":            len(s.protector.Rules()),
		"cache_entries":    s.protector.CacheLen(),
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"total_requests":   s.totalRequests.Load(),
		"total_detections": s.totalDetections.Load(),
		"audit_enabled":    s.audit != nil,
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	s.anonymize(w, r, false)
}

func (s *Server) handleAnonymizeReport(w http.ResponseWriter, r *http.Request) {
	s.anonymize(w, r, true)
}

func (s *Server) anonymize(w http.ResponseWriter, r *http.Request, withReport bool) {
	requestID := getRequestID(r.Context())

	var req anonymizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, report, err := s.protector.AnonymizeWithReport(r.Context(), req.Text)
	if err != nil {
		s.writeProtectorError(w, r, err)
		return
	}
	s.record(r.Context(), requestID, "api", report)

	resp := anonymizeResponse{RequestID: requestID, Text: out}
	if withReport {
		resp.Report = maskReport(report)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())

	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Texts) > maxBatchItems {
		writeError(w, http.StatusBadRequest, "too many items in batch")
		return
	}

	results := s.protector.ProcessBatch(r.Context(), req.Texts)
	resp := batchResponse{RequestID: requestID, Results: make([]batchItem, len(results))}
	for i, res := range results {
		item := batchItem{Index: res.Index, Text: res.Output, Report: maskReport(res.Report)}
		if res.Err != nil {
			item.Error = res.Err.Error()
			resp.Failed++
		} else {
			s.record(r.Context(), requestID, "batch", res.Report)
		}
		resp.Results[i] = item
	}
	writeJSON(w, http.StatusOK, resp)
}

// maskReport copies r without original values. HTTP responses never carry
// originals.
func maskReport(r *privacy.Report) *privacy.Report {
	if r == nil {
		return nil
	}
	masked := *r
	masked.Findings = make([]privacy.Finding, len(r.Findings))
	for i, f := range r.Findings {
		f.Original = ""
		masked.Findings[i] = f
	}
	return &masked
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"patterns": s.protector.Rules()})
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.protector.AddPattern(req.Type, req.Pattern, req.Precedence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.WithRequestID(getRequestID(r.Context())).Info("Pattern added",
		zap.String("type", req.Type),
		zap.Int("precedence", req.Precedence),
	)
	writeJSON(w, http.StatusCreated, map[string]string{"type": req.Type})
}

func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	s.patternAction(w, r, s.protector.RemovePattern)
}

func (s *Server) handleEnablePattern(w http.ResponseWriter, r *http.Request) {
	s.patternAction(w, r, s.protector.EnablePattern)
}

func (s *Server) handleDisablePattern(w http.ResponseWriter, r *http.Request) {
	s.patternAction(w, r, s.protector.DisablePattern)
}

func (s *Server) patternAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	typeTag := mux.Vars(r)["type"]
	if err := action(typeTag); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body, writing the error response itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeProtectorError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := getRequestID(r.Context())
	switch {
	case privacy.IsConfigurationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case r.Context().Err() != nil:
		s.logger.WithRequestID(requestID).Debug("Request cancelled", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.WithRequestID(requestID).Error("Anonymization failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "anonymization failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get(requestIDHeader)})
}
