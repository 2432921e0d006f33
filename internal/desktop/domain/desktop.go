package domain

import "time"

// AppType is the client application a desktop record belongs to. A machine running
// both TokenControl and Mint has two independent desktop records.
type AppType string

const (
	AppTypeTokenControl AppType = "TokenControl"
	AppTypeMint         AppType = "Mint"
)

// ParseAppType maps a header or query value to an AppType. Empty selects TokenControl.
func ParseAppType(s string) (AppType, bool) {
	switch AppType(s) {
	case "":
		return AppTypeTokenControl, true
	case AppTypeTokenControl, AppTypeMint:
		return AppType(s), true
	}
	return "", false
}

// Status is the administrative state of a desktop.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusActive   Status = "Active"
	StatusDisabled Status = "Disabled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDisabled:
		return true
	}
	return false
}

// Desktop is a registered client agent identified by (DesktopAppID, AppType).
// SecretKey is base64 text and must never be logged.
type Desktop struct {
	DesktopAppID        string
	AppType             AppType
	NameLabel           string
	Status              Status
	RequiredApprovalsN  int
	UnlockMinutes       int
	SecretKey           string
	SecretKeyRotatedAt  *time.Time
	MachineName         string
	OSUser              string
	TokenControlVersion string
	CreatedAt           time.Time
	LastSeenAt          *time.Time
}

// HasKey reports whether a secret key is configured.
func (d *Desktop) HasKey() bool { return d != nil && d.SecretKey != "" }

// MachineContext is what a desktop reports about its host on register and heartbeat.
// Empty fields leave the stored value unchanged.
type MachineContext struct {
	MachineName         string
	OSUser              string
	TokenControlVersion string
	NameLabel           string
}
