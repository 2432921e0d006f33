package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adminhandler "github.com/commentors-net/Aegis-Mint/internal/admin/handler"
	approvalhandler "github.com/commentors-net/Aegis-Mint/internal/approval/handler"
	approvalservice "github.com/commentors-net/Aegis-Mint/internal/approval/service"
	"github.com/commentors-net/Aegis-Mint/internal/audit"
	audithandler "github.com/commentors-net/Aegis-Mint/internal/audit/handler"
	desktophandler "github.com/commentors-net/Aegis-Mint/internal/desktop/handler"
	desktopservice "github.com/commentors-net/Aegis-Mint/internal/desktop/service"
	healthhandler "github.com/commentors-net/Aegis-Mint/internal/health/handler"
	"github.com/commentors-net/Aegis-Mint/internal/keyrotation"
	"github.com/commentors-net/Aegis-Mint/internal/platform/rbac"
	"github.com/commentors-net/Aegis-Mint/internal/policy/engine"
	"github.com/commentors-net/Aegis-Mint/internal/security"
	"github.com/commentors-net/Aegis-Mint/internal/store/memory"
	userdomain "github.com/commentors-net/Aegis-Mint/internal/user/domain"
)

type apiFixture struct {
	t      *testing.T
	srv    *Server
	tokens *security.TokenProvider
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, u := range []*userdomain.User{
		{ID: "admin-1", Email: "admin@example.com", Role: userdomain.RoleAdmin, Status: userdomain.UserStatusActive},
		{ID: "gov-1", Email: "gov1@example.com", Role: userdomain.RoleGovernanceAuthority, Status: userdomain.UserStatusActive},
		{ID: "gov-2", Email: "gov2@example.com", Role: userdomain.RoleGovernanceAuthority, Status: userdomain.UserStatusActive},
	} {
		require.NoError(t, store.Users().Upsert(ctx, u))
	}

	sink := audit.NewLogger(store.Audit(), audit.ClientIPFromContext)
	manager := approvalservice.NewManager(store, sink)
	rotation := keyrotation.NewPolicy(keyrotation.DefaultInterval, store.Desktops(), sink)
	desktops := desktopservice.NewService(store.Desktops(), store.Assignments(), store.Users(), manager, rotation, sink,
		desktopservice.Defaults{RequiredApprovalsN: 2, UnlockMinutes: 15})
	eval, err := engine.NewOPAEvaluator(ctx)
	require.NoError(t, err)
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)

	deps := RouterDeps{
		Desktop:       desktophandler.NewHandler(desktops),
		Authenticator: desktopservice.NewAuthenticator(store.Desktops(), sink, 0),
		Governance:    approvalhandler.NewHandler(manager, desktops),
		Admin:         adminhandler.NewHandler(desktops),
		Audit:         audithandler.NewHandler(store.Audit()),
		Tokens:        tokens,
		Gate:          rbac.NewGate(store.Users(), eval),
	}
	srv := New(&HTTPServerConfig{
		ListenAddr: ":0",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, deps, Probes{Pinger: healthhandler.PingFunc(store.Ping), Policy: eval})
	return &apiFixture{t: t, srv: srv, tokens: tokens}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) bearer(method, path, userID string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != "" {
		token, _, err := f.tokens.IssueAccess(userID, userID+"@example.com")
		require.NoError(f.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return f.do(req)
}

func (f *apiFixture) signed(method, path, desktopID, key, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := security.SignDesktopRequest(desktopID, ts, []byte(body), key)
	require.NoError(f.t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set(security.HeaderDesktopID, desktopID)
	req.Header.Set(security.HeaderDesktopTimestamp, ts)
	req.Header.Set(security.HeaderDesktopSignature, sig)
	return f.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAPI_GovernanceUnlockFlow(t *testing.T) {
	f := newAPIFixture(t)

	reg := f.do(httptest.NewRequest(http.MethodPost, "/api/desktop/register",
		bytes.NewReader([]byte(`{"desktopAppId":"desk-1","machineName":"HOST-1","nameLabel":"Treasury"}`))))
	require.Equal(t, http.StatusOK, reg.Code, reg.Body.String())
	body := decode(t, reg)
	assert.Equal(t, "Pending", body["desktopStatus"])
	key, _ := body["secretKey"].(string)
	require.NotEmpty(t, key)

	again := f.do(httptest.NewRequest(http.MethodPost, "/api/desktop/register",
		bytes.NewReader([]byte(`{"desktopAppId":"desk-1"}`))))
	require.Equal(t, http.StatusOK, again.Code)
	_, hasKey := decode(t, again)["secretKey"]
	assert.False(t, hasKey, "key is returned only on creation")

	hb := f.signed(http.MethodPost, "/api/desktop/desk-1/heartbeat", "desk-1", key, `{"osUser":"alice"}`)
	require.Equal(t, http.StatusOK, hb.Code, hb.Body.String())

	bad := f.signed(http.MethodPost, "/api/desktop/desk-1/heartbeat", "desk-1", "d3Jvbmcta2V5", `{}`)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, bad.Body.String())

	// Pending desktops cannot be approved.
	rec := f.bearer(http.MethodPost, "/api/governance/desktops/desk-1/approve", "gov-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.bearer(http.MethodPatch, "/api/admin/desktops/desk-1", "admin-1", map[string]any{"status": "Active"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Active", decode(t, rec)["status"])

	rec = f.bearer(http.MethodPut, "/api/admin/desktops/desk-1/assign", "admin-1", map[string]any{"authorityIds": []string{"gov-1", "gov-2"}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.bearer(http.MethodPost, "/api/governance/desktops/desk-1/approve", "gov-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Pending", decode(t, rec)["status"])

	rec = f.bearer(http.MethodPost, "/api/governance/desktops/desk-1/approve", "gov-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"already approved in this session"}`, rec.Body.String())

	rec = f.bearer(http.MethodGet, "/api/governance/desktops", "gov-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assigned []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assigned))
	require.Len(t, assigned, 1)
	assert.Equal(t, float64(1), assigned[0]["approvalsSoFar"])
	assert.Equal(t, false, assigned[0]["alreadyApproved"])

	rec = f.bearer(http.MethodPost, "/api/governance/desktops/desk-1/approve", "gov-2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode(t, rec)
	assert.Equal(t, "Unlocked", summary["status"])
	assert.NotNil(t, summary["unlockedUntilUtc"])
	assert.Len(t, summary["approvals"], 2)

	st := f.signed(http.MethodGet, "/api/desktop/desk-1/unlock-status", "desk-1", key, "")
	require.Equal(t, http.StatusOK, st.Code, st.Body.String())
	status := decode(t, st)
	assert.Equal(t, true, status["isUnlocked"])
	assert.Equal(t, float64(2), status["approvalsSoFar"])
	assert.Equal(t, "Unlocked", status["sessionStatus"])
	_, rotated := status["newSecretKey"]
	assert.False(t, rotated)

	rec = f.bearer(http.MethodGet, "/api/governance/desktops/desk-1/history", "gov-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Unlocked", decode(t, rec)["status"])

	rec = f.bearer(http.MethodGet, "/api/admin/audit-logs?desktopAppId=desk-1", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	actions := map[string]bool{}
	for _, l := range logs {
		actions[l["action"].(string)] = true
	}
	for _, want := range []string{"REGISTERED", "HEARTBEAT", "DESKTOP_UPDATED", "ASSIGNMENTS_SET", "SESSION_CREATED", "APPROVED", "UNLOCKED"} {
		assert.True(t, actions[want], "missing audit action %s", want)
	}

	rec = f.bearer(http.MethodGet, "/api/admin/auth-logs?desktopAppId=desk-1", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var authLogs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authLogs))
	events := map[string]bool{}
	for _, l := range authLogs {
		events[l["eventType"].(string)] = true
	}
	assert.True(t, events["Registration"])
	assert.True(t, events["AuthSuccess"])
	assert.True(t, events["InvalidSignature"])
}

func TestAPI_AccessControl(t *testing.T) {
	f := newAPIFixture(t)
	cases := []struct {
		method, path, user string
		want               int
	}{
		{http.MethodGet, "/api/governance/desktops", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/governance/desktops", "admin-1", http.StatusForbidden},
		{http.MethodGet, "/api/governance/desktops", "nobody", http.StatusUnauthorized},
		{http.MethodGet, "/api/admin/desktops", "gov-1", http.StatusForbidden},
		{http.MethodGet, "/api/admin/desktops", "admin-1", http.StatusOK},
		{http.MethodGet, "/api/admin/audit-logs", "gov-1", http.StatusForbidden},
		{http.MethodDelete, "/api/admin/desktops/missing", "admin-1", http.StatusNotFound},
		{http.MethodPost, "/api/admin/desktops/missing/cancel-session", "admin-1", http.StatusNotFound},
		{http.MethodPost, "/api/governance/desktops/missing/approve?appType=Other", "gov-1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := f.bearer(tc.method, tc.path, tc.user, nil)
		assert.Equal(t, tc.want, rec.Code, "%s %s as %q: %s", tc.method, tc.path, tc.user, rec.Body.String())
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/desktop/desk-1/unlock-status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_DrainAndReadiness(t *testing.T) {
	f := newAPIFixture(t)
	get := func(path string) *httptest.ResponseRecorder {
		return f.do(httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, http.StatusOK, get("/livez").Code)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	assert.Equal(t, http.StatusOK, get("/drain").Code)
	assert.False(t, f.srv.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	assert.Equal(t, http.StatusOK, get("/livez").Code)

	assert.Equal(t, http.StatusOK, get("/undrain").Code)
	assert.True(t, f.srv.Ready())
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
}
