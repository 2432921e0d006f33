package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	"github.com/commentors-net/Aegis-Mint/internal/db/sqlc/gen"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	desktoprepo "github.com/commentors-net/Aegis-Mint/internal/desktop/repository"
)

// PostgresStore runs approval units of work in database transactions.
type PostgresStore struct {
	db      *sql.DB
	queries *gen.Queries
}

// NewPostgresStore returns an approval store that uses the given db for persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, queries: gen.New(db)}
}

// WithTx begins a transaction, runs fn and commits. fn's error or a panic rolls back.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	if err := fn(&postgresTx{q: s.queries.WithTx(sqlTx)}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type postgresTx struct {
	q *gen.Queries
}

func (t *postgresTx) LockDesktop(ctx context.Context, desktopAppID, appType string) (*desktopdomain.Desktop, error) {
	d, err := t.q.LockDesktop(ctx, gen.LockDesktopParams{DesktopAppID: desktopAppID, AppType: appType})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return desktoprepo.GenDesktopToDomain(&d), nil
}

func (t *postgresTx) LatestSession(ctx context.Context, desktopAppID, appType string) (*domain.Session, error) {
	s, err := t.q.GetLatestApprovalSession(ctx, gen.GetLatestApprovalSessionParams{DesktopAppID: desktopAppID, AppType: appType})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genSessionToDomain(&s), nil
}

func (t *postgresTx) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := t.q.CreateApprovalSession(ctx, gen.CreateApprovalSessionParams{
		ID:                        s.ID,
		DesktopAppID:              s.DesktopAppID,
		AppType:                   s.AppType,
		RequiredApprovalsSnapshot: int32(s.RequiredApprovalsSnapshot),
		CreatedAtUtc:              s.CreatedAt,
	})
	return err
}

func (t *postgresTx) ExpireSession(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	n, err := t.q.ExpireApprovalSession(ctx, gen.ExpireApprovalSessionParams{
		ID:  sessionID,
		Now: sql.NullTime{Time: now, Valid: true},
	})
	return n == 1, err
}

func (t *postgresTx) UnlockSession(ctx context.Context, sessionID string, at, until time.Time) (bool, error) {
	n, err := t.q.UnlockApprovalSession(ctx, gen.UnlockApprovalSessionParams{
		ID:               sessionID,
		UnlockedAtUtc:    sql.NullTime{Time: at, Valid: true},
		UnlockedUntilUtc: sql.NullTime{Time: until, Valid: true},
	})
	return n == 1, err
}

func (t *postgresTx) CancelSession(ctx context.Context, sessionID string) (bool, error) {
	n, err := t.q.CancelApprovalSession(ctx, sessionID)
	return n == 1, err
}

func (t *postgresTx) InsertApproval(ctx context.Context, a *domain.Approval) (bool, error) {
	_, err := t.q.InsertApproval(ctx, gen.InsertApprovalParams{
		ID:             a.ID,
		SessionID:      a.SessionID,
		ApproverUserID: a.ApproverUserID,
		ApprovedAtUtc:  a.ApprovedAt,
	})
	if err != nil {
		// ON CONFLICT DO NOTHING returns no row for a duplicate vote.
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *postgresTx) CountApprovals(ctx context.Context, sessionID string) (int, error) {
	n, err := t.q.CountApprovalsBySession(ctx, sessionID)
	return int(n), err
}

func (t *postgresTx) ListApprovals(ctx context.Context, sessionID string) ([]*domain.Approval, error) {
	rows, err := t.q.ListApprovalsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Approval, len(rows))
	for i := range rows {
		r := &rows[i]
		out[i] = &domain.Approval{
			ID:             r.ID,
			SessionID:      r.SessionID,
			ApproverUserID: r.ApproverUserID,
			ApprovedAt:     r.ApprovedAtUtc,
			ApproverEmail:  r.ApproverEmail.String,
		}
	}
	return out, nil
}

func genSessionToDomain(s *gen.ApprovalSession) *domain.Session {
	out := &domain.Session{
		ID:                        s.ID,
		DesktopAppID:              s.DesktopAppID,
		AppType:                   s.AppType,
		Status:                    domain.Status(s.Status),
		RequiredApprovalsSnapshot: int(s.RequiredApprovalsSnapshot),
		CreatedAt:                 s.CreatedAtUtc,
	}
	if s.UnlockedAtUtc.Valid {
		t := s.UnlockedAtUtc.Time
		out.UnlockedAt = &t
	}
	if s.UnlockedUntilUtc.Valid {
		t := s.UnlockedUntilUtc.Time
		out.UnlockedUntil = &t
	}
	return out
}
