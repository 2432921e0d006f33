package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/justinas/alice"

	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/service"
	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
	"github.com/commentors-net/Aegis-Mint/internal/security"
)

// DesktopAuthenticator verifies a signed desktop request.
type DesktopAuthenticator interface {
	Authenticate(ctx context.Context, req service.AuthRequest) (*domain.Desktop, error)
}

// DesktopIDParam is the route parameter that must match the authenticated desktop.
const DesktopIDParam = "desktopAppId"

// DesktopAuth returns the middleware chain for HMAC-authenticated desktop routes. The raw body is
// buffered (at most httpjson.MaxBodyBytes) so the signature covers exactly what the handler reads.
// Every failure answers the same 401 body; the reason is only recorded in the authentication log.
func DesktopAuth(auth DesktopAuthenticator, endpoint string) alice.Chain {
	return alice.New(limitBody, desktopAuth(auth, endpoint))
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, httpjson.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func desktopAuth(auth DesktopAuthenticator, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				b, err := io.ReadAll(r.Body)
				if err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						httpjson.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
						return
					}
					httpjson.Error(w, http.StatusBadRequest, "could not read request body")
					return
				}
				body = b
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			d, err := auth.Authenticate(r.Context(), service.AuthRequest{
				DesktopID:     r.Header.Get(security.HeaderDesktopID),
				AppType:       r.Header.Get(security.HeaderAppType),
				Timestamp:     r.Header.Get(security.HeaderDesktopTimestamp),
				Signature:     r.Header.Get(security.HeaderDesktopSignature),
				Body:          body,
				Endpoint:      endpoint,
				IPAddress:     ClientIP(r),
				UserAgent:     r.UserAgent(),
				PathDesktopID: chi.URLParam(r, DesktopIDParam),
			})
			if err != nil {
				slog.Debug("desktop auth rejected", "endpoint", endpoint, "err", err)
				httpjson.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDesktop(r.Context(), d)))
		})
	}
}
