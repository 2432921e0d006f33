package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	telemetrydomain "github.com/commentors-net/Aegis-Mint/internal/telemetry/domain"
)

type chanEmitter chan *telemetrydomain.Event

func (c chanEmitter) Emit(ctx context.Context, e *telemetrydomain.Event) error {
	c <- e
	return nil
}

func TestTelemetry_EmitsRequestEvent(t *testing.T) {
	events := make(chanEmitter, 4)
	r := chi.NewRouter()
	r.Use(Telemetry(events, map[string]bool{"/livez": true}))
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {})
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithDesktop(r.Context(), &domain.Desktop{DesktopAppID: "desk-1", AppType: domain.AppTypeMint})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}).Get("/api/desktop/{desktopAppId}/unlock-status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/desktop/desk-1/unlock-status", nil))

	var ev *telemetrydomain.Event
	select {
	case ev = <-events:
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
	assert.Equal(t, "http.desktop.unlock-status", ev.EventType)
	assert.Equal(t, telemetrydomain.SourceHTTP, ev.Source)
	assert.Equal(t, "desk-1", ev.DesktopAppID)
	assert.Equal(t, "Mint", ev.AppType)

	var meta httpRequestMetadata
	require.NoError(t, json.Unmarshal(ev.Metadata, &meta))
	assert.Equal(t, http.StatusAccepted, meta.StatusCode)
	assert.Equal(t, "/api/desktop/{desktopAppId}/unlock-status", meta.Route)

	select {
	case extra := <-events:
		t.Fatalf("unexpected event %q", extra.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTelemetry_NilEmitterPassesThrough(t *testing.T) {
	called := false
	h := Telemetry(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
