package repository

import (
	"context"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
)

// Repository defines persistence for desktops. Lookups return (nil, nil) when the row does not exist.
type Repository interface {
	Get(ctx context.Context, desktopAppID string, appType domain.AppType) (*domain.Desktop, error)
	// Create inserts d. It reports false without error when the desktop already exists.
	Create(ctx context.Context, d *domain.Desktop) (bool, error)
	// Touch records machine context and last-seen time. Returns nil when the desktop does not exist.
	Touch(ctx context.Context, desktopAppID string, appType domain.AppType, mc domain.MachineContext, at time.Time) (*domain.Desktop, error)
	// UpdatePolicy persists status, thresholds and label from d.
	UpdatePolicy(ctx context.Context, d *domain.Desktop) (*domain.Desktop, error)
	// RotateSecretKey replaces the key only if it still equals oldKey ("" meaning none).
	// It reports false when another writer changed the key first.
	RotateSecretKey(ctx context.Context, desktopAppID string, appType domain.AppType, oldKey, newKey string, at time.Time) (bool, error)
	Delete(ctx context.Context, desktopAppID string, appType domain.AppType) (bool, error)
	List(ctx context.Context, limit, offset int32) ([]*domain.Desktop, error)
	ListByAssignee(ctx context.Context, userID string) ([]*domain.Desktop, error)
}
