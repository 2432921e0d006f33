package domain

import "time"

// Action is a governance audit action.
type Action string

const (
	ActionRegistered       Action = "REGISTERED"
	ActionHeartbeat        Action = "HEARTBEAT"
	ActionSessionCreated   Action = "SESSION_CREATED"
	ActionSessionExpired   Action = "SESSION_EXPIRED"
	ActionApproved         Action = "APPROVED"
	ActionUnlocked         Action = "UNLOCKED"
	ActionSessionCancelled Action = "SESSION_CANCELLED"
	ActionDesktopUpdated   Action = "DESKTOP_UPDATED"
	ActionDesktopDeleted   Action = "DESKTOP_DELETED"
	ActionAssignmentsSet   Action = "ASSIGNMENTS_SET"
)

// AuditLog is one append-only governance audit entry. Details is JSON text.
type AuditLog struct {
	ID           string
	At           time.Time
	Action       Action
	ActorUserID  string
	DesktopAppID string
	AppType      string
	SessionID    string
	Details      string
}

// AuthEventType categorizes a desktop authentication attempt.
type AuthEventType string

const (
	AuthRegistration     AuthEventType = "Registration"
	AuthSuccess          AuthEventType = "AuthSuccess"
	AuthFailure          AuthEventType = "AuthFailure"
	AuthKeyRotation      AuthEventType = "KeyRotation"
	AuthInvalidSignature AuthEventType = "InvalidSignature"
	AuthTimestampInvalid AuthEventType = "TimestampInvalid"
	AuthDesktopNotFound  AuthEventType = "DesktopNotFound"
	AuthKeyNotConfigured AuthEventType = "KeyNotConfigured"
)

// AuthLog is one append-only desktop authentication log entry.
type AuthLog struct {
	ID                  string
	DesktopAppID        string
	AppType             string
	EventType           AuthEventType
	Success             bool
	Endpoint            string
	IPAddress           string
	UserAgent           string
	ErrorMessage        string
	At                  time.Time
	MachineName         string
	OSUser              string
	TokenControlVersion string
}

// ListFilter narrows audit listings. Empty strings match everything.
type ListFilter struct {
	DesktopAppID string
	Action       string
	Limit        int32
	Offset       int32
}
