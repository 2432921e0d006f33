package domain

import "time"

// Assignment links a governance authority to a desktop they watch.
type Assignment struct {
	ID           string
	UserID       string
	DesktopAppID string
	AppType      string
	CreatedAt    time.Time
}
