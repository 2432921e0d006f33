package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/commentors-net/Aegis-Mint/internal/telemetry"
	"github.com/commentors-net/Aegis-Mint/internal/telemetry/domain"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	Scope      string `json:"scope"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// Telemetry emits one event per request after the handler returns. Best-effort: emit failures are
// logged and never affect the response. A nil emitter disables it. skipRoutes holds route patterns
// (e.g. "/livez") that are not emitted.
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if emitter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, info := withRequestInfo(r.Context())
			r = r.WithContext(ctx)
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					pattern = p
				}
			}
			if skipRoutes[pattern] {
				return
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ra := ParseRoute(r.Method, pattern)
			meta, _ := json.Marshal(httpRequestMetadata{
				Method:     r.Method,
				Route:      pattern,
				Scope:      ra.Scope,
				StatusCode: status,
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   ClientIP(r),
			})
			ev := &domain.Event{
				EventType: ra.EventType(),
				Source:    domain.SourceHTTP,
				Metadata:  meta,
			}
			if d := info.desktop; d != nil {
				ev.DesktopAppID, ev.AppType = d.DesktopAppID, string(d.AppType)
			} else if id := chi.URLParam(r, DesktopIDParam); id != "" {
				ev.DesktopAppID = id
			}
			ev.UserID = info.userID
			telemetry.EmitAsync(emitter, r.Context(), ev)
		})
	}
}
