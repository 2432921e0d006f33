package repository

import (
	"context"

	"github.com/commentors-net/Aegis-Mint/internal/audit/domain"
)

// Repository defines persistence for audit and authentication logs. Both are append-only.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	List(ctx context.Context, f domain.ListFilter) ([]*domain.AuditLog, error)
	CreateAuthLog(ctx context.Context, a *domain.AuthLog) error
	ListAuthLogs(ctx context.Context, desktopAppID string, limit int32) ([]*domain.AuthLog, error)
}
