package repository

import (
	"context"
	"database/sql"

	"github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	"github.com/commentors-net/Aegis-Mint/internal/db/sqlc/gen"
)

type PostgresRepository struct {
	queries *gen.Queries
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{queries: gen.New(db)}
}

// Create persists the audit log. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	return r.queries.CreateAuditLog(ctx, gen.CreateAuditLogParams{
		ID:           a.ID,
		AtUtc:        a.At,
		Action:       string(a.Action),
		ActorUserID:  nullString(a.ActorUserID),
		DesktopAppID: nullString(a.DesktopAppID),
		AppType:      nullString(a.AppType),
		SessionID:    nullString(a.SessionID),
		Details:      nullString(a.Details),
	})
}

// List returns audit logs newest first, filtered by desktop and action when set.
func (r *PostgresRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.AuditLog, error) {
	list, err := r.queries.ListAuditLogs(ctx, gen.ListAuditLogsParams{
		DesktopAppID: nullString(f.DesktopAppID),
		Action:       nullString(f.Action),
		Limit:        f.Limit,
		Offset:       f.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(list))
	for i := range list {
		a := &list[i]
		out[i] = &domain.AuditLog{
			ID:           a.ID,
			At:           a.AtUtc,
			Action:       domain.Action(a.Action),
			ActorUserID:  a.ActorUserID.String,
			DesktopAppID: a.DesktopAppID.String,
			AppType:      a.AppType.String,
			SessionID:    a.SessionID.String,
			Details:      a.Details.String,
		}
	}
	return out, nil
}

// CreateAuthLog persists one authentication attempt.
func (r *PostgresRepository) CreateAuthLog(ctx context.Context, a *domain.AuthLog) error {
	return r.queries.CreateAuthenticationLog(ctx, gen.CreateAuthenticationLogParams{
		ID:                  a.ID,
		DesktopAppID:        a.DesktopAppID,
		AppType:             a.AppType,
		EventType:           string(a.EventType),
		Success:             a.Success,
		Endpoint:            nullString(a.Endpoint),
		IpAddress:           nullString(a.IPAddress),
		UserAgent:           nullString(a.UserAgent),
		ErrorMessage:        nullString(a.ErrorMessage),
		TimestampUtc:        a.At,
		MachineName:         nullString(a.MachineName),
		OsUser:              nullString(a.OSUser),
		TokenControlVersion: nullString(a.TokenControlVersion),
	})
}

// ListAuthLogs returns authentication attempts newest first.
func (r *PostgresRepository) ListAuthLogs(ctx context.Context, desktopAppID string, limit int32) ([]*domain.AuthLog, error) {
	list, err := r.queries.ListAuthenticationLogs(ctx, gen.ListAuthenticationLogsParams{
		DesktopAppID: nullString(desktopAppID),
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuthLog, len(list))
	for i := range list {
		a := &list[i]
		out[i] = &domain.AuthLog{
			ID:                  a.ID,
			DesktopAppID:        a.DesktopAppID,
			AppType:             a.AppType,
			EventType:           domain.AuthEventType(a.EventType),
			Success:             a.Success,
			Endpoint:            a.Endpoint.String,
			IPAddress:           a.IpAddress.String,
			UserAgent:           a.UserAgent.String,
			ErrorMessage:        a.ErrorMessage.String,
			At:                  a.TimestampUtc,
			MachineName:         a.MachineName.String,
			OSUser:              a.OsUser.String,
			TokenControlVersion: a.TokenControlVersion.String,
		}
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
