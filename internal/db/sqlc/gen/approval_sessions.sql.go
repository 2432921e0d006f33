// Queries from ../queries/approval_sessions.sql.

package gen

import (
	"context"
	"database/sql"
	"time"
)

const cancelApprovalSession = `-- name: CancelApprovalSession :execrows
UPDATE approval_sessions SET status = 'Cancelled'
WHERE id = $1 AND status = 'Pending'
`

func (q *Queries) CancelApprovalSession(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, cancelApprovalSession, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createApprovalSession = `-- name: CreateApprovalSession :one
INSERT INTO approval_sessions (id, desktop_app_id, app_type, status, required_approvals_snapshot, created_at_utc)
VALUES ($1, $2, $3, 'Pending', $4, $5)
RETURNING id, desktop_app_id, app_type, status, required_approvals_snapshot, created_at_utc, unlocked_at_utc, unlocked_until_utc
`

type CreateApprovalSessionParams struct {
	ID                        string
	DesktopAppID              string
	AppType                   string
	RequiredApprovalsSnapshot int32
	CreatedAtUtc              time.Time
}

func (q *Queries) CreateApprovalSession(ctx context.Context, arg CreateApprovalSessionParams) (ApprovalSession, error) {
	row := q.db.QueryRowContext(ctx, createApprovalSession,
		arg.ID,
		arg.DesktopAppID,
		arg.AppType,
		arg.RequiredApprovalsSnapshot,
		arg.CreatedAtUtc,
	)
	var i ApprovalSession
	err := row.Scan(
		&i.ID,
		&i.DesktopAppID,
		&i.AppType,
		&i.Status,
		&i.RequiredApprovalsSnapshot,
		&i.CreatedAtUtc,
		&i.UnlockedAtUtc,
		&i.UnlockedUntilUtc,
	)
	return i, err
}

const expireApprovalSession = `-- name: ExpireApprovalSession :execrows
UPDATE approval_sessions SET status = 'Expired'
WHERE id = $1 AND status = 'Unlocked' AND unlocked_until_utc <= $2
`

type ExpireApprovalSessionParams struct {
	ID  string
	Now sql.NullTime
}

func (q *Queries) ExpireApprovalSession(ctx context.Context, arg ExpireApprovalSessionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, expireApprovalSession, arg.ID, arg.Now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getLatestApprovalSession = `-- name: GetLatestApprovalSession :one
SELECT id, desktop_app_id, app_type, status, required_approvals_snapshot, created_at_utc, unlocked_at_utc, unlocked_until_utc FROM approval_sessions
WHERE desktop_app_id = $1 AND app_type = $2
ORDER BY created_at_utc DESC, id DESC
LIMIT 1
`

type GetLatestApprovalSessionParams struct {
	DesktopAppID string
	AppType      string
}

func (q *Queries) GetLatestApprovalSession(ctx context.Context, arg GetLatestApprovalSessionParams) (ApprovalSession, error) {
	row := q.db.QueryRowContext(ctx, getLatestApprovalSession, arg.DesktopAppID, arg.AppType)
	var i ApprovalSession
	err := row.Scan(
		&i.ID,
		&i.DesktopAppID,
		&i.AppType,
		&i.Status,
		&i.RequiredApprovalsSnapshot,
		&i.CreatedAtUtc,
		&i.UnlockedAtUtc,
		&i.UnlockedUntilUtc,
	)
	return i, err
}

const unlockApprovalSession = `-- name: UnlockApprovalSession :execrows
UPDATE approval_sessions
SET status = 'Unlocked', unlocked_at_utc = $2, unlocked_until_utc = $3
WHERE id = $1 AND status = 'Pending'
`

type UnlockApprovalSessionParams struct {
	ID               string
	UnlockedAtUtc    sql.NullTime
	UnlockedUntilUtc sql.NullTime
}

func (q *Queries) UnlockApprovalSession(ctx context.Context, arg UnlockApprovalSessionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, unlockApprovalSession, arg.ID, arg.UnlockedAtUtc, arg.UnlockedUntilUtc)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
