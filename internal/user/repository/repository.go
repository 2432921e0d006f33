package repository

import (
	"context"

	"github.com/commentors-net/Aegis-Mint/internal/user/domain"
)

// Repository defines persistence for users. Upsert exists for seeding; the service itself only reads.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Upsert(ctx context.Context, u *domain.User) error
}
