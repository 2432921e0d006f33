package middleware

import (
	"context"

	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
)

type contextKey struct{ name string }

var (
	userIDKey  = contextKey{"user_id"}
	desktopKey = contextKey{"desktop"}
	infoKey    = contextKey{"request_info"}
)

// requestInfo lets outer middleware see identities resolved further down the chain.
type requestInfo struct {
	userID  string
	desktop *domain.Desktop
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, infoKey, info), info
}

// WithUserID returns a context carrying the authenticated approver or admin id.
func WithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(infoKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// WithDesktop returns a context carrying the HMAC-authenticated desktop.
func WithDesktop(ctx context.Context, d *domain.Desktop) context.Context {
	if info, ok := ctx.Value(infoKey).(*requestInfo); ok {
		info.desktop = d
	}
	return context.WithValue(ctx, desktopKey, d)
}

// GetDesktop returns the authenticated desktop from context, or nil.
func GetDesktop(ctx context.Context) *domain.Desktop {
	d, _ := ctx.Value(desktopKey).(*domain.Desktop)
	return d
}
