package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	auditrepo "github.com/commentors-net/Aegis-Mint/internal/audit/repository"
	"github.com/commentors-net/Aegis-Mint/internal/telemetry"
	telemetrydomain "github.com/commentors-net/Aegis-Mint/internal/telemetry/domain"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

type clientIPKey struct{}

// WithClientIP stores the caller IP on ctx for ClientIPFromContext.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext is the default IPExtractor. Returns "" when no IP was stored.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// Event is one governance audit event. Details is serialized to JSON.
type Event struct {
	Action       domain.Action
	ActorUserID  string
	DesktopAppID string
	AppType      string
	SessionID    string
	Details      map[string]any
}

// AuthAttempt is one desktop authentication attempt. IPAddress falls back to the IPExtractor.
type AuthAttempt struct {
	DesktopAppID        string
	AppType             string
	EventType           domain.AuthEventType
	Success             bool
	Endpoint            string
	IPAddress           string
	UserAgent           string
	ErrorMessage        string
	MachineName         string
	OSUser              string
	TokenControlVersion string
}

// Sink receives audit and authentication events. Implementations are best-effort:
// failures are logged and never reach the caller.
type Sink interface {
	LogEvent(ctx context.Context, e Event)
	LogAuth(ctx context.Context, a AuthAttempt)
}

// Logger implements Sink using the audit repository, an optional IP extractor and an optional
// telemetry emitter that mirrors every entry.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
	now         func() time.Time
}

// NewLogger returns a Logger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, now: func() time.Time { return time.Now().UTC() }}
}

// WithEmitter mirrors every persisted entry to emitter as a telemetry event. Returns l.
func (l *Logger) WithEmitter(emitter telemetry.EventEmitter) *Logger {
	l.emitter = emitter
	return l
}

// LogEvent writes one audit log entry.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		At:           l.now(),
		Action:       e.Action,
		ActorUserID:  e.ActorUserID,
		DesktopAppID: e.DesktopAppID,
		AppType:      e.AppType,
		SessionID:    e.SessionID,
	}
	var raw json.RawMessage
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			slog.Warn("audit: details not serializable", "action", e.Action, "err", err)
		} else {
			raw = b
			entry.Details = string(b)
		}
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		slog.Error("audit: failed to log event", "action", e.Action, "desktop_app_id", e.DesktopAppID, "err", err)
		return
	}
	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.Event{
		EventType:    "audit." + string(e.Action),
		Source:       telemetrydomain.SourceAudit,
		DesktopAppID: e.DesktopAppID,
		AppType:      e.AppType,
		UserID:       e.ActorUserID,
		SessionID:    e.SessionID,
		Metadata:     raw,
		CreatedAt:    entry.At,
	})
}

// LogAuth writes one authentication log entry.
func (l *Logger) LogAuth(ctx context.Context, a AuthAttempt) {
	if l == nil || l.repo == nil {
		return
	}
	ip := a.IPAddress
	if ip == "" && l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuthLog{
		ID:                  uuid.New().String(),
		DesktopAppID:        a.DesktopAppID,
		AppType:             a.AppType,
		EventType:           a.EventType,
		Success:             a.Success,
		Endpoint:            a.Endpoint,
		IPAddress:           ip,
		UserAgent:           a.UserAgent,
		ErrorMessage:        a.ErrorMessage,
		At:                  l.now(),
		MachineName:         a.MachineName,
		OSUser:              a.OSUser,
		TokenControlVersion: a.TokenControlVersion,
	}
	if err := l.repo.CreateAuthLog(ctx, entry); err != nil {
		slog.Error("audit: failed to log auth attempt", "event_type", a.EventType, "desktop_app_id", a.DesktopAppID, "err", err)
		return
	}
	meta, _ := json.Marshal(map[string]any{"success": a.Success, "endpoint": a.Endpoint})
	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.Event{
		EventType:    "auth." + string(a.EventType),
		Source:       telemetrydomain.SourceAudit,
		DesktopAppID: a.DesktopAppID,
		AppType:      a.AppType,
		Metadata:     meta,
		CreatedAt:    entry.At,
	})
}

// Nop is a Sink that drops everything.
type Nop struct{}

func (Nop) LogEvent(context.Context, Event)      {}
func (Nop) LogAuth(context.Context, AuthAttempt) {}
