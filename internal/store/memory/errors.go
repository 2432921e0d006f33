package memory

import "errors"

var (
	errPendingExists  = errors.New("memory: a pending session already exists for this desktop")
	errSessionMissing = errors.New("memory: approval references an unknown session")
)
