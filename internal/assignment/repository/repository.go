package repository

import (
	"context"

	"github.com/commentors-net/Aegis-Mint/internal/assignment/domain"
)

// Repository defines persistence for governance assignments.
type Repository interface {
	ListByDesktop(ctx context.Context, desktopAppID, appType string) ([]*domain.Assignment, error)
	// Replace atomically swaps the desktop's assignment set for userIDs. Duplicate ids collapse.
	Replace(ctx context.Context, desktopAppID, appType string, userIDs []string) error
}
