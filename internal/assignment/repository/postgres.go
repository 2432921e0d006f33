package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commentors-net/Aegis-Mint/internal/assignment/domain"
	"github.com/commentors-net/Aegis-Mint/internal/db/sqlc/gen"
)

type PostgresRepository struct {
	db      *sql.DB
	queries *gen.Queries
}

// NewPostgresRepository returns an assignment repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, queries: gen.New(db)}
}

// ListByDesktop returns the desktop's assignments oldest first.
func (r *PostgresRepository) ListByDesktop(ctx context.Context, desktopAppID, appType string) ([]*domain.Assignment, error) {
	list, err := r.queries.ListGovernanceAssignmentsByDesktop(ctx, gen.ListGovernanceAssignmentsByDesktopParams{
		DesktopAppID: desktopAppID,
		AppType:      appType,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Assignment, len(list))
	for i := range list {
		a := &list[i]
		out[i] = &domain.Assignment{
			ID:           a.ID,
			UserID:       a.UserID,
			DesktopAppID: a.DesktopAppID,
			AppType:      a.AppType,
			CreatedAt:    a.CreatedAtUtc,
		}
	}
	return out, nil
}

// Replace deletes the desktop's assignments and inserts one per user id in a single transaction.
func (r *PostgresRepository) Replace(ctx context.Context, desktopAppID, appType string, userIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := r.queries.WithTx(tx)
	if err := q.DeleteGovernanceAssignmentsByDesktop(ctx, gen.DeleteGovernanceAssignmentsByDesktopParams{
		DesktopAppID: desktopAppID,
		AppType:      appType,
	}); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, uid := range userIDs {
		if err := q.CreateGovernanceAssignment(ctx, gen.CreateGovernanceAssignmentParams{
			ID:           uuid.New().String(),
			UserID:       uid,
			DesktopAppID: desktopAppID,
			AppType:      appType,
			CreatedAtUtc: now,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}
