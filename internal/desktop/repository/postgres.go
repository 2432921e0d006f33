package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/db/sqlc/gen"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
)

type PostgresRepository struct {
	queries *gen.Queries
}

// NewPostgresRepository returns a desktop repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{queries: gen.New(db)}
}

// Get returns the desktop for (desktopAppID, appType), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, desktopAppID string, appType domain.AppType) (*domain.Desktop, error) {
	d, err := r.queries.GetDesktop(ctx, gen.GetDesktopParams{DesktopAppID: desktopAppID, AppType: string(appType)})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return GenDesktopToDomain(&d), nil
}

// Create inserts the desktop. A concurrent first registration that loses the insert reports false.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.Desktop) (bool, error) {
	_, err := r.queries.CreateDesktop(ctx, gen.CreateDesktopParams{
		DesktopAppID:        d.DesktopAppID,
		AppType:             string(d.AppType),
		NameLabel:           nullString(d.NameLabel),
		Status:              string(d.Status),
		RequiredApprovalsN:  int32(d.RequiredApprovalsN),
		UnlockMinutes:       int32(d.UnlockMinutes),
		SecretKey:           nullString(d.SecretKey),
		SecretKeyRotatedAt:  nullTime(d.SecretKeyRotatedAt),
		MachineName:         nullString(d.MachineName),
		OsUser:              nullString(d.OSUser),
		TokenControlVersion: nullString(d.TokenControlVersion),
		CreatedAtUtc:        d.CreatedAt,
		LastSeenAtUtc:       nullTime(d.LastSeenAt),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Touch records machine context and last-seen. Returns nil if the desktop does not exist.
func (r *PostgresRepository) Touch(ctx context.Context, desktopAppID string, appType domain.AppType, mc domain.MachineContext, at time.Time) (*domain.Desktop, error) {
	d, err := r.queries.TouchDesktop(ctx, gen.TouchDesktopParams{
		DesktopAppID:        desktopAppID,
		AppType:             string(appType),
		MachineName:         nullString(mc.MachineName),
		OsUser:              nullString(mc.OSUser),
		TokenControlVersion: nullString(mc.TokenControlVersion),
		NameLabel:           nullString(mc.NameLabel),
		LastSeenAtUtc:       sql.NullTime{Time: at, Valid: true},
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return GenDesktopToDomain(&d), nil
}

// UpdatePolicy writes status, thresholds and label. Returns nil if the desktop does not exist.
func (r *PostgresRepository) UpdatePolicy(ctx context.Context, d *domain.Desktop) (*domain.Desktop, error) {
	out, err := r.queries.UpdateDesktopPolicy(ctx, gen.UpdateDesktopPolicyParams{
		DesktopAppID:       d.DesktopAppID,
		AppType:            string(d.AppType),
		Status:             string(d.Status),
		RequiredApprovalsN: int32(d.RequiredApprovalsN),
		UnlockMinutes:      int32(d.UnlockMinutes),
		NameLabel:          nullString(d.NameLabel),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return GenDesktopToDomain(&out), nil
}

// RotateSecretKey is a compare-and-swap on secret_key.
func (r *PostgresRepository) RotateSecretKey(ctx context.Context, desktopAppID string, appType domain.AppType, oldKey, newKey string, at time.Time) (bool, error) {
	n, err := r.queries.RotateDesktopSecretKey(ctx, gen.RotateDesktopSecretKeyParams{
		DesktopAppID:       desktopAppID,
		AppType:            string(appType),
		SecretKey:          sql.NullString{String: newKey, Valid: true},
		SecretKeyRotatedAt: sql.NullTime{Time: at, Valid: true},
		OldSecretKey:       nullString(oldKey),
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes the desktop; sessions, approvals and assignments cascade.
func (r *PostgresRepository) Delete(ctx context.Context, desktopAppID string, appType domain.AppType) (bool, error) {
	n, err := r.queries.DeleteDesktop(ctx, gen.DeleteDesktopParams{DesktopAppID: desktopAppID, AppType: string(appType)})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns desktops newest first.
func (r *PostgresRepository) List(ctx context.Context, limit, offset int32) ([]*domain.Desktop, error) {
	list, err := r.queries.ListDesktops(ctx, gen.ListDesktopsParams{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return genDesktopsToDomain(list), nil
}

// ListByAssignee returns the desktops the given approver is assigned to.
func (r *PostgresRepository) ListByAssignee(ctx context.Context, userID string) ([]*domain.Desktop, error) {
	list, err := r.queries.ListDesktopsByAssignee(ctx, userID)
	if err != nil {
		return nil, err
	}
	return genDesktopsToDomain(list), nil
}

func genDesktopsToDomain(list []gen.Desktop) []*domain.Desktop {
	out := make([]*domain.Desktop, len(list))
	for i := range list {
		out[i] = GenDesktopToDomain(&list[i])
	}
	return out
}

// GenDesktopToDomain converts a gen row. Exported for the approval store, which locks desktop rows inside its own transaction.
func GenDesktopToDomain(d *gen.Desktop) *domain.Desktop {
	if d == nil {
		return nil
	}
	return &domain.Desktop{
		DesktopAppID:        d.DesktopAppID,
		AppType:             domain.AppType(d.AppType),
		NameLabel:           d.NameLabel.String,
		Status:              domain.Status(d.Status),
		RequiredApprovalsN:  int(d.RequiredApprovalsN),
		UnlockMinutes:       int(d.UnlockMinutes),
		SecretKey:           d.SecretKey.String,
		SecretKeyRotatedAt:  nullTimeToPtr(d.SecretKeyRotatedAt),
		MachineName:         d.MachineName.String,
		OSUser:              d.OsUser.String,
		TokenControlVersion: d.TokenControlVersion.String,
		CreatedAt:           d.CreatedAtUtc,
		LastSeenAt:          nullTimeToPtr(d.LastSeenAtUtc),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
