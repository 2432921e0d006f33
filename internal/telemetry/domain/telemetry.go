package domain

import (
	"encoding/json"
	"time"
)

// Event is one telemetry record. It is the Kafka message payload (JSON) and the
// source of OTel log records. Desktop and user ids are optional.
type Event struct {
	EventType    string          `json:"eventType"`
	Source       string          `json:"source"`
	DesktopAppID string          `json:"desktopAppId,omitempty"`
	AppType      string          `json:"appType,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	SessionID    string          `json:"sessionId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Event sources.
const (
	SourceHTTP  = "http"
	SourceAudit = "audit"
)
