package repository

import (
	"context"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
)

// Tx is one unit of work over a desktop and its sessions. Lookups return (nil, nil) when missing.
type Tx interface {
	// LockDesktop reads the desktop and holds a row lock until the unit of work ends.
	LockDesktop(ctx context.Context, desktopAppID, appType string) (*desktopdomain.Desktop, error)
	LatestSession(ctx context.Context, desktopAppID, appType string) (*domain.Session, error)
	CreateSession(ctx context.Context, s *domain.Session) error
	// ExpireSession moves an Unlocked session whose window closed by now to Expired.
	ExpireSession(ctx context.Context, sessionID string, now time.Time) (bool, error)
	// UnlockSession moves a Pending session to Unlocked. False means it was no longer Pending.
	UnlockSession(ctx context.Context, sessionID string, at, until time.Time) (bool, error)
	// CancelSession moves a Pending session to Cancelled. False means it was no longer Pending.
	CancelSession(ctx context.Context, sessionID string) (bool, error)
	// InsertApproval records a vote. False means the approver already voted in this session.
	InsertApproval(ctx context.Context, a *domain.Approval) (bool, error)
	CountApprovals(ctx context.Context, sessionID string) (int, error)
	ListApprovals(ctx context.Context, sessionID string) ([]*domain.Approval, error)
}

// Store runs fn in one atomic unit. Any error from fn rolls back every write made through tx.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
