// Package rbac resolves the authenticated caller and checks their role against the policy engine.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
	policydomain "github.com/commentors-net/Aegis-Mint/internal/policy/domain"
	"github.com/commentors-net/Aegis-Mint/internal/policy/engine"
	"github.com/commentors-net/Aegis-Mint/internal/server/middleware"
	userdomain "github.com/commentors-net/Aegis-Mint/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when no user id is in context or the user is unknown.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the policy denies the action.
	ErrForbidden = errors.New("forbidden")
)

// UserGetter resolves the caller's directory entry.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Gate checks governed actions for the user in context.
type Gate struct {
	users  UserGetter
	policy engine.Evaluator
}

// NewGate returns a Gate.
func NewGate(users UserGetter, policy engine.Evaluator) *Gate {
	return &Gate{users: users, policy: policy}
}

// Require returns the caller when the policy allows action. An unknown user is ErrUnauthenticated;
// a disabled user or the wrong role is ErrForbidden.
func (g *Gate) Require(ctx context.Context, action policydomain.Action) (*userdomain.User, error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	allowed, err := g.policy.Allow(ctx, policydomain.Subject{
		UserID: u.ID,
		Role:   string(u.Role),
		Status: string(u.Status),
	}, action)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return u, nil
}

type userKey struct{}

// UserFromContext returns the user stored by Middleware, or nil.
func UserFromContext(ctx context.Context) *userdomain.User {
	u, _ := ctx.Value(userKey{}).(*userdomain.User)
	return u
}

// Middleware enforces action for every request: 401 without a known caller, 403 when denied.
// The resolved user is stored for UserFromContext.
func (g *Gate) Middleware(action policydomain.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := g.Require(r.Context(), action)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
			case errors.Is(err, ErrUnauthenticated):
				httpjson.Unauthorized(w)
			case errors.Is(err, ErrForbidden):
				httpjson.Error(w, http.StatusForbidden, "forbidden")
			default:
				slog.Error("rbac: policy check failed", "action", action, "err", err)
				httpjson.Error(w, http.StatusInternalServerError, "internal error")
			}
		})
	}
}
