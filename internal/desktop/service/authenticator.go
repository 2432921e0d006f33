package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/commentors-net/Aegis-Mint/internal/audit"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/security"
)

// DesktopLookup reads the desktop record an incoming request claims to be.
type DesktopLookup interface {
	Get(ctx context.Context, desktopAppID string, appType domain.AppType) (*domain.Desktop, error)
}

// AuthRequest is the authentication material and caller context of one desktop request.
type AuthRequest struct {
	DesktopID string
	AppType   string
	Timestamp string
	Signature string
	Body      []byte
	Endpoint  string
	IPAddress string
	UserAgent string
	// PathDesktopID is the desktop id taken from the route, if any. It must match DesktopID.
	PathDesktopID string
}

// Authenticator verifies HMAC-signed desktop requests and records every attempt.
type Authenticator struct {
	desktops DesktopLookup
	sink     audit.Sink
	maxDrift time.Duration
	now      func() time.Time
	attempts metric.Int64Counter
}

// NewAuthenticator returns an Authenticator. maxDrift <= 0 uses security.DefaultMaxDrift; sink may be nil.
func NewAuthenticator(desktops DesktopLookup, sink audit.Sink, maxDrift time.Duration) *Authenticator {
	if sink == nil {
		sink = audit.Nop{}
	}
	if maxDrift <= 0 {
		maxDrift = security.DefaultMaxDrift
	}
	counter, _ := otel.Meter("github.com/commentors-net/Aegis-Mint/internal/desktop/service").Int64Counter(
		"aegis.desktop.auth_attempts",
		metric.WithDescription("Desktop HMAC authentication attempts by outcome"),
	)
	return &Authenticator{
		desktops: desktops,
		sink:     sink,
		maxDrift: maxDrift,
		now:      func() time.Time { return time.Now().UTC() },
		attempts: counter,
	}
}

// SetClock replaces the time source. Intended for tests.
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

// Authenticate resolves the desktop named by req and verifies its signature. The desktop lookup
// happens before any signature work. The returned error carries the precise reason; callers
// must not reveal it to the client.
func (a *Authenticator) Authenticate(ctx context.Context, req AuthRequest) (*domain.Desktop, error) {
	id := strings.TrimSpace(req.DesktopID)
	if id == "" {
		a.record(ctx, req, nil, "unknown", auditdomain.AuthFailure, "missing desktop id header")
		return nil, security.ErrMissingHeader
	}
	appType, ok := domain.ParseAppType(req.AppType)
	if !ok {
		a.record(ctx, req, nil, id, auditdomain.AuthDesktopNotFound, "unknown app type")
		return nil, ErrDesktopNotFound
	}
	d, err := a.desktops.Get(ctx, id, appType)
	if err != nil {
		a.record(ctx, req, nil, id, auditdomain.AuthFailure, "desktop lookup failed")
		return nil, err
	}
	if d == nil {
		a.record(ctx, req, nil, id, auditdomain.AuthDesktopNotFound, "desktop not registered")
		return nil, ErrDesktopNotFound
	}
	if !d.HasKey() {
		a.record(ctx, req, d, id, auditdomain.AuthKeyNotConfigured, "desktop has no secret key")
		return nil, ErrDesktopKeyNotConfigured
	}

	err = security.VerifyDesktopSignature(security.SignedRequest{
		DesktopID: id,
		Timestamp: req.Timestamp,
		Signature: req.Signature,
		Body:      req.Body,
	}, d.SecretKey, a.now(), a.maxDrift)
	switch {
	case err == nil:
		if req.PathDesktopID != "" && req.PathDesktopID != d.DesktopAppID {
			a.record(ctx, req, d, id, auditdomain.AuthFailure, "route desktop id mismatch")
			return nil, ErrDesktopPathMismatch
		}
		a.record(ctx, req, d, id, auditdomain.AuthSuccess, "")
		return d, nil
	case errors.Is(err, security.ErrTimestampOutOfRange):
		a.record(ctx, req, d, id, auditdomain.AuthTimestampInvalid, err.Error())
	case errors.Is(err, security.ErrSignatureMismatch):
		a.record(ctx, req, d, id, auditdomain.AuthInvalidSignature, err.Error())
	default:
		a.record(ctx, req, d, id, auditdomain.AuthFailure, err.Error())
	}
	return nil, err
}

func (a *Authenticator) record(ctx context.Context, req AuthRequest, d *domain.Desktop, id string, ev auditdomain.AuthEventType, msg string) {
	attempt := audit.AuthAttempt{
		DesktopAppID: id,
		AppType:      req.AppType,
		EventType:    ev,
		Success:      ev == auditdomain.AuthSuccess,
		Endpoint:     req.Endpoint,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		ErrorMessage: msg,
	}
	if attempt.AppType == "" {
		attempt.AppType = string(domain.AppTypeTokenControl)
	}
	if d != nil {
		attempt.AppType = string(d.AppType)
		attempt.MachineName = d.MachineName
		attempt.OSUser = d.OSUser
		attempt.TokenControlVersion = d.TokenControlVersion
	}
	a.sink.LogAuth(ctx, attempt)
	if a.attempts != nil {
		a.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", string(ev)),
			attribute.Bool("success", attempt.Success),
		))
	}
}
