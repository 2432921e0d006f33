// Package handler exposes the audit and authentication logs to admins over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	"github.com/commentors-net/Aegis-Mint/internal/audit/repository"
	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
)

type auditLogView struct {
	ID           string `json:"id"`
	AtUtc        string `json:"atUtc"`
	Action       string `json:"action"`
	ActorUserID  string `json:"actorUserId,omitempty"`
	DesktopAppID string `json:"desktopAppId,omitempty"`
	AppType      string `json:"appType,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	Details      string `json:"details,omitempty"`
}

type authLogView struct {
	ID                  string `json:"id"`
	DesktopAppID        string `json:"desktopAppId"`
	AppType             string `json:"appType"`
	EventType           string `json:"eventType"`
	Success             bool   `json:"success"`
	Endpoint            string `json:"endpoint,omitempty"`
	IPAddress           string `json:"ipAddress,omitempty"`
	UserAgent           string `json:"userAgent,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`
	TimestampUtc        string `json:"timestampUtc"`
	MachineName         string `json:"machineName,omitempty"`
	OSUser              string `json:"osUser,omitempty"`
	TokenControlVersion string `json:"tokenControlVersion,omitempty"`
}

// Handler serves /api/admin/audit-logs and /api/admin/auth-logs.
type Handler struct {
	repo repository.Repository
}

// NewHandler returns a Handler over repo.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// AuditLogs handles GET /api/admin/audit-logs?desktopAppId=&action=&limit=&offset=. Newest first.
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpjson.Page(r, 100, 1000)
	q := r.URL.Query()
	list, err := h.repo.List(r.Context(), domain.ListFilter{
		DesktopAppID: q.Get("desktopAppId"),
		Action:       q.Get("action"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		slog.Error("audit: list audit logs failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]auditLogView, 0, len(list))
	for _, a := range list {
		out = append(out, auditLogView{
			ID:           a.ID,
			AtUtc:        a.At.UTC().Format(time.RFC3339),
			Action:       string(a.Action),
			ActorUserID:  a.ActorUserID,
			DesktopAppID: a.DesktopAppID,
			AppType:      a.AppType,
			SessionID:    a.SessionID,
			Details:      a.Details,
		})
	}
	httpjson.Write(w, http.StatusOK, out)
}

// AuthLogs handles GET /api/admin/auth-logs?desktopAppId=&limit=. Newest first.
func (h *Handler) AuthLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := httpjson.Page(r, 100, 1000)
	list, err := h.repo.ListAuthLogs(r.Context(), r.URL.Query().Get("desktopAppId"), limit)
	if err != nil {
		slog.Error("audit: list auth logs failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]authLogView, 0, len(list))
	for _, a := range list {
		out = append(out, authLogView{
			ID:                  a.ID,
			DesktopAppID:        a.DesktopAppID,
			AppType:             a.AppType,
			EventType:           string(a.EventType),
			Success:             a.Success,
			Endpoint:            a.Endpoint,
			IPAddress:           a.IPAddress,
			UserAgent:           a.UserAgent,
			ErrorMessage:        a.ErrorMessage,
			TimestampUtc:        a.At.UTC().Format(time.RFC3339),
			MachineName:         a.MachineName,
			OSUser:              a.OSUser,
			TokenControlVersion: a.TokenControlVersion,
		})
	}
	httpjson.Write(w, http.StatusOK, out)
}
