// Queries from ../queries/desktops.sql.

package gen

import (
	"context"
	"database/sql"
	"time"
)

const createDesktop = `-- name: CreateDesktop :one
INSERT INTO desktops (
    desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes,
    secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version,
    created_at_utc, last_seen_at_utc
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (desktop_app_id, app_type) DO NOTHING
RETURNING desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes, secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version, created_at_utc, last_seen_at_utc
`

type CreateDesktopParams struct {
	DesktopAppID        string
	AppType             string
	NameLabel           sql.NullString
	Status              string
	RequiredApprovalsN  int32
	UnlockMinutes       int32
	SecretKey           sql.NullString
	SecretKeyRotatedAt  sql.NullTime
	MachineName         sql.NullString
	OsUser              sql.NullString
	TokenControlVersion sql.NullString
	CreatedAtUtc        time.Time
	LastSeenAtUtc       sql.NullTime
}

func (q *Queries) CreateDesktop(ctx context.Context, arg CreateDesktopParams) (Desktop, error) {
	row := q.db.QueryRowContext(ctx, createDesktop,
		arg.DesktopAppID,
		arg.AppType,
		arg.NameLabel,
		arg.Status,
		arg.RequiredApprovalsN,
		arg.UnlockMinutes,
		arg.SecretKey,
		arg.SecretKeyRotatedAt,
		arg.MachineName,
		arg.OsUser,
		arg.TokenControlVersion,
		arg.CreatedAtUtc,
		arg.LastSeenAtUtc,
	)
	var i Desktop
	err := scanDesktop(row, &i)
	return i, err
}

const deleteDesktop = `-- name: DeleteDesktop :execrows
DELETE FROM desktops WHERE desktop_app_id = $1 AND app_type = $2
`

type DeleteDesktopParams struct {
	DesktopAppID string
	AppType      string
}

func (q *Queries) DeleteDesktop(ctx context.Context, arg DeleteDesktopParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteDesktop, arg.DesktopAppID, arg.AppType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getDesktop = `-- name: GetDesktop :one
SELECT desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes, secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version, created_at_utc, last_seen_at_utc FROM desktops
WHERE desktop_app_id = $1 AND app_type = $2
`

type GetDesktopParams struct {
	DesktopAppID string
	AppType      string
}

func (q *Queries) GetDesktop(ctx context.Context, arg GetDesktopParams) (Desktop, error) {
	row := q.db.QueryRowContext(ctx, getDesktop, arg.DesktopAppID, arg.AppType)
	var i Desktop
	err := scanDesktop(row, &i)
	return i, err
}

const listDesktops = `-- name: ListDesktops :many
SELECT desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes, secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version, created_at_utc, last_seen_at_utc FROM desktops
ORDER BY created_at_utc DESC
LIMIT $1 OFFSET $2
`

type ListDesktopsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListDesktops(ctx context.Context, arg ListDesktopsParams) ([]Desktop, error) {
	rows, err := q.db.QueryContext(ctx, listDesktops, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectDesktops(rows)
}

const listDesktopsByAssignee = `-- name: ListDesktopsByAssignee :many
SELECT d.desktop_app_id, d.app_type, d.name_label, d.status, d.required_approvals_n, d.unlock_minutes, d.secret_key, d.secret_key_rotated_at, d.machine_name, d.os_user, d.token_control_version, d.created_at_utc, d.last_seen_at_utc
FROM desktops d
JOIN governance_assignments ga
  ON ga.desktop_app_id = d.desktop_app_id AND ga.app_type = d.app_type
WHERE ga.user_id = $1
ORDER BY d.desktop_app_id, d.app_type
`

func (q *Queries) ListDesktopsByAssignee(ctx context.Context, userID string) ([]Desktop, error) {
	rows, err := q.db.QueryContext(ctx, listDesktopsByAssignee, userID)
	if err != nil {
		return nil, err
	}
	return collectDesktops(rows)
}

const lockDesktop = `-- name: LockDesktop :one
SELECT desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes, secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version, created_at_utc, last_seen_at_utc FROM desktops
WHERE desktop_app_id = $1 AND app_type = $2
FOR UPDATE
`

type LockDesktopParams struct {
	DesktopAppID string
	AppType      string
}

func (q *Queries) LockDesktop(ctx context.Context, arg LockDesktopParams) (Desktop, error) {
	row := q.db.QueryRowContext(ctx, lockDesktop, arg.DesktopAppID, arg.AppType)
	var i Desktop
	err := scanDesktop(row, &i)
	return i, err
}

const rotateDesktopSecretKey = `-- name: RotateDesktopSecretKey :execrows
UPDATE desktops
SET secret_key = $3, secret_key_rotated_at = $4
WHERE desktop_app_id = $1 AND app_type = $2
  AND secret_key IS NOT DISTINCT FROM $5::text
`

type RotateDesktopSecretKeyParams struct {
	DesktopAppID       string
	AppType            string
	SecretKey          sql.NullString
	SecretKeyRotatedAt sql.NullTime
	OldSecretKey       sql.NullString
}

func (q *Queries) RotateDesktopSecretKey(ctx context.Context, arg RotateDesktopSecretKeyParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, rotateDesktopSecretKey,
		arg.DesktopAppID,
		arg.AppType,
		arg.SecretKey,
		arg.SecretKeyRotatedAt,
		arg.OldSecretKey,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const touchDesktop = `-- name: TouchDesktop :one
UPDATE desktops
SET machine_name = COALESCE($3, machine_name),
    os_user = COALESCE($4, os_user),
    token_control_version = COALESCE($5, token_control_version),
    name_label = COALESCE($6, name_label),
    last_seen_at_utc = $7
WHERE desktop_app_id = $1 AND app_type = $2
RETURNING desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes, secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version, created_at_utc, last_seen_at_utc
`

type TouchDesktopParams struct {
	DesktopAppID        string
	AppType             string
	MachineName         sql.NullString
	OsUser              sql.NullString
	TokenControlVersion sql.NullString
	NameLabel           sql.NullString
	LastSeenAtUtc       sql.NullTime
}

func (q *Queries) TouchDesktop(ctx context.Context, arg TouchDesktopParams) (Desktop, error) {
	row := q.db.QueryRowContext(ctx, touchDesktop,
		arg.DesktopAppID,
		arg.AppType,
		arg.MachineName,
		arg.OsUser,
		arg.TokenControlVersion,
		arg.NameLabel,
		arg.LastSeenAtUtc,
	)
	var i Desktop
	err := scanDesktop(row, &i)
	return i, err
}

const updateDesktopPolicy = `-- name: UpdateDesktopPolicy :one
UPDATE desktops
SET status = $3, required_approvals_n = $4, unlock_minutes = $5, name_label = $6
WHERE desktop_app_id = $1 AND app_type = $2
RETURNING desktop_app_id, app_type, name_label, status, required_approvals_n, unlock_minutes, secret_key, secret_key_rotated_at, machine_name, os_user, token_control_version, created_at_utc, last_seen_at_utc
`

type UpdateDesktopPolicyParams struct {
	DesktopAppID       string
	AppType            string
	Status             string
	RequiredApprovalsN int32
	UnlockMinutes      int32
	NameLabel          sql.NullString
}

func (q *Queries) UpdateDesktopPolicy(ctx context.Context, arg UpdateDesktopPolicyParams) (Desktop, error) {
	row := q.db.QueryRowContext(ctx, updateDesktopPolicy,
		arg.DesktopAppID,
		arg.AppType,
		arg.Status,
		arg.RequiredApprovalsN,
		arg.UnlockMinutes,
		arg.NameLabel,
	)
	var i Desktop
	err := scanDesktop(row, &i)
	return i, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDesktop(row rowScanner, i *Desktop) error {
	return row.Scan(
		&i.DesktopAppID,
		&i.AppType,
		&i.NameLabel,
		&i.Status,
		&i.RequiredApprovalsN,
		&i.UnlockMinutes,
		&i.SecretKey,
		&i.SecretKeyRotatedAt,
		&i.MachineName,
		&i.OsUser,
		&i.TokenControlVersion,
		&i.CreatedAtUtc,
		&i.LastSeenAtUtc,
	)
}

func collectDesktops(rows *sql.Rows) ([]Desktop, error) {
	defer rows.Close()
	var items []Desktop
	for rows.Next() {
		var i Desktop
		if err := scanDesktop(rows, &i); err != nil {
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
