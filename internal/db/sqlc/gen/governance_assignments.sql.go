// Queries from ../queries/governance_assignments.sql.

package gen

import (
	"context"
	"time"
)

const createGovernanceAssignment = `-- name: CreateGovernanceAssignment :exec
INSERT INTO governance_assignments (id, user_id, desktop_app_id, app_type, created_at_utc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, desktop_app_id, app_type) DO NOTHING
`

type CreateGovernanceAssignmentParams struct {
	ID           string
	UserID       string
	DesktopAppID string
	AppType      string
	CreatedAtUtc time.Time
}

func (q *Queries) CreateGovernanceAssignment(ctx context.Context, arg CreateGovernanceAssignmentParams) error {
	_, err := q.db.ExecContext(ctx, createGovernanceAssignment,
		arg.ID,
		arg.UserID,
		arg.DesktopAppID,
		arg.AppType,
		arg.CreatedAtUtc,
	)
	return err
}

const deleteGovernanceAssignmentsByDesktop = `-- name: DeleteGovernanceAssignmentsByDesktop :exec
DELETE FROM governance_assignments WHERE desktop_app_id = $1 AND app_type = $2
`

type DeleteGovernanceAssignmentsByDesktopParams struct {
	DesktopAppID string
	AppType      string
}

func (q *Queries) DeleteGovernanceAssignmentsByDesktop(ctx context.Context, arg DeleteGovernanceAssignmentsByDesktopParams) error {
	_, err := q.db.ExecContext(ctx, deleteGovernanceAssignmentsByDesktop, arg.DesktopAppID, arg.AppType)
	return err
}

const listGovernanceAssignmentsByDesktop = `-- name: ListGovernanceAssignmentsByDesktop :many
SELECT id, user_id, desktop_app_id, app_type, created_at_utc FROM governance_assignments
WHERE desktop_app_id = $1 AND app_type = $2
ORDER BY created_at_utc, user_id
`

type ListGovernanceAssignmentsByDesktopParams struct {
	DesktopAppID string
	AppType      string
}

func (q *Queries) ListGovernanceAssignmentsByDesktop(ctx context.Context, arg ListGovernanceAssignmentsByDesktopParams) ([]GovernanceAssignment, error) {
	rows, err := q.db.QueryContext(ctx, listGovernanceAssignmentsByDesktop, arg.DesktopAppID, arg.AppType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GovernanceAssignment
	for rows.Next() {
		var i GovernanceAssignment
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.DesktopAppID,
			&i.AppType,
			&i.CreatedAtUtc,
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
