package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureServer(t *testing.T, status int) (*httptest.Server, *PushRequest) {
	t.Helper()
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient("  ", "")
	require.Error(t, err)
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, err := NewClient(srv.URL+"/", "")
	require.NoError(t, err)

	raw := []byte(`{"eventType":"audit.UNLOCKED","source":"audit","appType":"TokenControl","desktopAppId":"desk 1","createdAt":"2026-03-01T12:00:00Z"}`)
	require.NoError(t, c.PushEventJSON(context.Background(), raw))

	require.Len(t, got.Streams, 1)
	s := got.Streams[0]
	assert.Equal(t, "aegis", s.Stream["job"])
	assert.Equal(t, "audit.UNLOCKED", s.Stream["event_type"])
	assert.Equal(t, "TokenControl", s.Stream["app_type"])
	assert.NotContains(t, s.Stream, "desktop_app_id")
	require.Len(t, s.Values, 1)
	assert.Equal(t, "1772366400000000000", s.Values[0][0])
	assert.Equal(t, string(raw), s.Values[0][1])
}

func TestPushEventJSON_NotJSON(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, _ := NewClient(srv.URL, "worker")
	require.NoError(t, c.PushEventJSON(context.Background(), []byte("plain line")))
	require.Len(t, got.Streams, 1)
	assert.Equal(t, map[string]string{"job": "worker"}, got.Streams[0].Stream)
	assert.Equal(t, "plain line", got.Streams[0].Values[0][1])
}

func TestPush_SanitizesLabels(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, _ := NewClient(srv.URL, "")
	require.NoError(t, c.Push(context.Background(), time.Unix(0, 5), "x", map[string]string{"source": "a b/c", "empty": "  "}))
	assert.Equal(t, "a_b_c", got.Streams[0].Stream["source"])
	assert.NotContains(t, got.Streams[0].Stream, "empty")
	assert.Equal(t, "5", got.Streams[0].Values[0][0])
}

func TestPush_Non2xx(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest)
	c, _ := NewClient(srv.URL, "")
	err := c.Push(context.Background(), time.Now(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
