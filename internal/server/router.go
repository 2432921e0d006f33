package server

import (
	"log/slog"
	"net/http"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	adminhandler "github.com/commentors-net/Aegis-Mint/internal/admin/handler"
	approvalhandler "github.com/commentors-net/Aegis-Mint/internal/approval/handler"
	audithandler "github.com/commentors-net/Aegis-Mint/internal/audit/handler"
	desktophandler "github.com/commentors-net/Aegis-Mint/internal/desktop/handler"
	healthhandler "github.com/commentors-net/Aegis-Mint/internal/health/handler"
	"github.com/commentors-net/Aegis-Mint/internal/platform/rbac"
	policydomain "github.com/commentors-net/Aegis-Mint/internal/policy/domain"
	"github.com/commentors-net/Aegis-Mint/internal/server/middleware"
	"github.com/commentors-net/Aegis-Mint/internal/telemetry"
)

// RouterDeps holds the handlers and middleware dependencies of the HTTP API.
type RouterDeps struct {
	Log *slog.Logger

	Desktop       *desktophandler.Handler
	Authenticator middleware.DesktopAuthenticator

	Governance *approvalhandler.Handler
	Admin      *adminhandler.Handler
	Audit      *audithandler.Handler
	Tokens     middleware.TokenValidator
	Gate       *rbac.Gate

	Health *healthhandler.Checker
	// Telemetry receives one event per request. If nil, request telemetry is off.
	Telemetry telemetry.EventEmitter
}

// skipTelemetry lists probe routes that are not emitted as request events.
var skipTelemetry = map[string]bool{
	"/livez":   true,
	"/readyz":  true,
	"/drain":   true,
	"/undrain": true,
}

// NewRouter builds the chi router for the HTTP API.
func NewRouter(deps RouterDeps, extra func(chi.Router)) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return httplogger.LoggingMiddlewareSlog(log, next) })
	r.Use(middleware.WithClientIP)
	r.Use(middleware.Telemetry(deps.Telemetry, skipTelemetry))

	if deps.Health != nil {
		r.Get("/livez", deps.Health.Livez)
		r.Get("/readyz", deps.Health.Readyz)
	}
	if extra != nil {
		extra(r)
	}

	r.Route("/api", func(api chi.Router) {
		if deps.Desktop != nil {
			api.Post("/desktop/register", deps.Desktop.Register)
			api.Method(http.MethodPost, "/desktop/{desktopAppId}/heartbeat",
				middleware.DesktopAuth(deps.Authenticator, "heartbeat").ThenFunc(deps.Desktop.Heartbeat))
			api.Method(http.MethodGet, "/desktop/{desktopAppId}/unlock-status",
				middleware.DesktopAuth(deps.Authenticator, "unlock-status").ThenFunc(deps.Desktop.UnlockStatus))
		}

		api.Group(func(authed chi.Router) {
			authed.Use(middleware.BearerAuth(deps.Tokens))

			if deps.Governance != nil {
				authed.With(deps.Gate.Middleware(policydomain.ActionGovernanceView)).
					Get("/governance/desktops", deps.Governance.ListAssigned)
				authed.With(deps.Gate.Middleware(policydomain.ActionGovernanceView)).
					Get("/governance/desktops/{desktopAppId}/history", deps.Governance.History)
				authed.With(deps.Gate.Middleware(policydomain.ActionGovernanceApprove)).
					Post("/governance/desktops/{desktopAppId}/approve", deps.Governance.Approve)
			}

			authed.Route("/admin", func(admin chi.Router) {
				admin.Use(deps.Gate.Middleware(policydomain.ActionAdminManage))
				if deps.Admin != nil {
					admin.Get("/desktops", deps.Admin.List)
					admin.Patch("/desktops/{desktopAppId}", deps.Admin.Update)
					admin.Delete("/desktops/{desktopAppId}", deps.Admin.Delete)
					admin.Put("/desktops/{desktopAppId}/assign", deps.Admin.Assign)
				}
				if deps.Governance != nil {
					admin.Post("/desktops/{desktopAppId}/cancel-session", deps.Governance.CancelSession)
				}
				if deps.Audit != nil {
					admin.With(deps.Gate.Middleware(policydomain.ActionAdminAudit)).Get("/audit-logs", deps.Audit.AuditLogs)
					admin.With(deps.Gate.Middleware(policydomain.ActionAdminAudit)).Get("/auth-logs", deps.Audit.AuthLogs)
				}
			})
		})
	})
	return r
}
