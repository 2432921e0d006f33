// Queries from ../queries/approvals.sql.

package gen

import (
	"context"
	"database/sql"
	"time"
)

const countApprovalsBySession = `-- name: CountApprovalsBySession :one
SELECT COUNT(*) FROM approvals WHERE session_id = $1
`

func (q *Queries) CountApprovalsBySession(ctx context.Context, sessionID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countApprovalsBySession, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const insertApproval = `-- name: InsertApproval :one
INSERT INTO approvals (id, session_id, approver_user_id, approved_at_utc)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, approver_user_id) DO NOTHING
RETURNING id, session_id, approver_user_id, approved_at_utc
`

type InsertApprovalParams struct {
	ID             string
	SessionID      string
	ApproverUserID string
	ApprovedAtUtc  time.Time
}

func (q *Queries) InsertApproval(ctx context.Context, arg InsertApprovalParams) (Approval, error) {
	row := q.db.QueryRowContext(ctx, insertApproval,
		arg.ID,
		arg.SessionID,
		arg.ApproverUserID,
		arg.ApprovedAtUtc,
	)
	var i Approval
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.ApproverUserID,
		&i.ApprovedAtUtc,
	)
	return i, err
}

const listApprovalsBySession = `-- name: ListApprovalsBySession :many
SELECT a.id, a.session_id, a.approver_user_id, a.approved_at_utc, u.email AS approver_email
FROM approvals a
LEFT JOIN users u ON u.id = a.approver_user_id
WHERE a.session_id = $1
ORDER BY a.approved_at_utc, a.seq
`

type ListApprovalsBySessionRow struct {
	ID             string
	SessionID      string
	ApproverUserID string
	ApprovedAtUtc  time.Time
	ApproverEmail  sql.NullString
}

func (q *Queries) ListApprovalsBySession(ctx context.Context, sessionID string) ([]ListApprovalsBySessionRow, error) {
	rows, err := q.db.QueryContext(ctx, listApprovalsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListApprovalsBySessionRow
	for rows.Next() {
		var i ListApprovalsBySessionRow
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.ApproverUserID,
			&i.ApprovedAtUtc,
			&i.ApproverEmail,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
