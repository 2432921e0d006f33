package engine

import (
	"context"

	"github.com/commentors-net/Aegis-Mint/internal/policy/domain"
)

// Evaluator decides whether a subject may perform an action.
type Evaluator interface {
	Allow(ctx context.Context, subject domain.Subject, action domain.Action) (bool, error)
}
