// Queries from ../queries/audit_logs.sql.

package gen

import (
	"context"
	"database/sql"
	"time"
)

const createAuditLog = `-- name: CreateAuditLog :exec
INSERT INTO audit_logs (id, at_utc, action, actor_user_id, desktop_app_id, app_type, session_id, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

type CreateAuditLogParams struct {
	ID           string
	AtUtc        time.Time
	Action       string
	ActorUserID  sql.NullString
	DesktopAppID sql.NullString
	AppType      sql.NullString
	SessionID    sql.NullString
	Details      sql.NullString
}

func (q *Queries) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error {
	_, err := q.db.ExecContext(ctx, createAuditLog,
		arg.ID,
		arg.AtUtc,
		arg.Action,
		arg.ActorUserID,
		arg.DesktopAppID,
		arg.AppType,
		arg.SessionID,
		arg.Details,
	)
	return err
}

const listAuditLogs = `-- name: ListAuditLogs :many
SELECT id, at_utc, action, actor_user_id, desktop_app_id, app_type, session_id, details FROM audit_logs
WHERE ($1::text IS NULL OR desktop_app_id = $1::text)
  AND ($2::text IS NULL OR action = $2::text)
ORDER BY at_utc DESC, id DESC
LIMIT $3 OFFSET $4
`

type ListAuditLogsParams struct {
	DesktopAppID sql.NullString
	Action       sql.NullString
	Limit        int32
	Offset       int32
}

func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.QueryContext(ctx, listAuditLogs,
		arg.DesktopAppID,
		arg.Action,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		var i AuditLog
		if err := rows.Scan(
			&i.ID,
			&i.AtUtc,
			&i.Action,
			&i.ActorUserID,
			&i.DesktopAppID,
			&i.AppType,
			&i.SessionID,
			&i.Details,
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

const createAuthenticationLog = `-- name: CreateAuthenticationLog :exec
INSERT INTO authentication_logs (
    id, desktop_app_id, app_type, event_type, success, endpoint, ip_address, user_agent,
    error_message, timestamp_utc, machine_name, os_user, token_control_version
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

type CreateAuthenticationLogParams struct {
	ID                  string
	DesktopAppID        string
	AppType             string
	EventType           string
	Success             bool
	Endpoint            sql.NullString
	IpAddress           sql.NullString
	UserAgent           sql.NullString
	ErrorMessage        sql.NullString
	TimestampUtc        time.Time
	MachineName         sql.NullString
	OsUser              sql.NullString
	TokenControlVersion sql.NullString
}

func (q *Queries) CreateAuthenticationLog(ctx context.Context, arg CreateAuthenticationLogParams) error {
	_, err := q.db.ExecContext(ctx, createAuthenticationLog,
		arg.ID,
		arg.DesktopAppID,
		arg.AppType,
		arg.EventType,
		arg.Success,
		arg.Endpoint,
		arg.IpAddress,
		arg.UserAgent,
		arg.ErrorMessage,
		arg.TimestampUtc,
		arg.MachineName,
		arg.OsUser,
		arg.TokenControlVersion,
	)
	return err
}

const listAuthenticationLogs = `-- name: ListAuthenticationLogs :many
SELECT id, desktop_app_id, app_type, event_type, success, endpoint, ip_address, user_agent, error_message, timestamp_utc, machine_name, os_user, token_control_version FROM authentication_logs
WHERE ($1::text IS NULL OR desktop_app_id = $1::text)
ORDER BY timestamp_utc DESC, id DESC
LIMIT $2
`

type ListAuthenticationLogsParams struct {
	DesktopAppID sql.NullString
	Limit        int32
}

func (q *Queries) ListAuthenticationLogs(ctx context.Context, arg ListAuthenticationLogsParams) ([]AuthenticationLog, error) {
	rows, err := q.db.QueryContext(ctx, listAuthenticationLogs, arg.DesktopAppID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuthenticationLog
	for rows.Next() {
		var i AuthenticationLog
		if err := rows.Scan(
			&i.ID,
			&i.DesktopAppID,
			&i.AppType,
			&i.EventType,
			&i.Success,
			&i.Endpoint,
			&i.IpAddress,
			&i.UserAgent,
			&i.ErrorMessage,
			&i.TimestampUtc,
			&i.MachineName,
			&i.OsUser,
			&i.TokenControlVersion,
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
