package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypePIIDetection is sent after every anonymization that found something
	EventTypePIIDetection EventType = "pii_detection"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	eventTypePong       EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// PIIDetectionEvent carries per-type counts. Original and replacement values
// never leave the process through the hub.
type PIIDetectionEvent struct {
	RequestID     string         `json:"request_id"`
	Method        string         `json:"method,omitempty"`
	Path          string         `json:"path,omitempty"`
	Source        string         `json:"source"`
	ClientIP      string         `json:"client_ip,omitempty"`
	Counts        map[string]int `json:"counts"`
	TotalFindings int            `json:"total_findings"`
	Guard         string         `json:"guard"`
	GuardSkipped  bool           `json:"guard_skipped"`
	ProcessingMS  float64        `json:"processing_ms"`
}

// NewDetectionEvent summarizes a report for broadcasting.
func NewDetectionEvent(requestID, source string, report *privacy.Report) PIIDetectionEvent {
	ev := PIIDetectionEvent{RequestID: requestID, Source: source, Counts: map[string]int{}}
	if report == nil {
		return ev
	}
	for t, n := range report.Summary() {
		ev.Counts[string(t)] = n
	}
	ev.TotalFindings = report.Count
	ev.Guard = report.Guard
	ev.GuardSkipped = report.GuardSkipped
	ev.ProcessingMS = float64(report.Duration.Microseconds()) / 1000
	return ev
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID  string        `json:"request_id"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	ClientIP   string        `json:"client_ip"`
	UserAgent  string        `json:"user_agent,omitempty"`
	Duration   time.Duration `json:"duration"`
	Findings   int           `json:"findings"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalDetections  int64  `json:"total_detections"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
	Guard            string `json:"guard"`
	CacheEntries     int    `json:"cache_entries"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type         string               `json:"type"`
	Subscription *SubscriptionRequest `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows detection and request events.
type EventFilter struct {
	PIITypes      []string `json:"pii_types,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	ExcludeHealth bool     `json:"exclude_health,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
