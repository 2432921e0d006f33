// Package handler exposes admin desktop management over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	approvalhandler "github.com/commentors-net/Aegis-Mint/internal/approval/handler"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/service"
	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
	"github.com/commentors-net/Aegis-Mint/internal/platform/rbac"
	"github.com/commentors-net/Aegis-Mint/internal/server/middleware"
)

// DesktopAdmin is the desktop service surface used by admins.
type DesktopAdmin interface {
	List(ctx context.Context, limit, offset int32) ([]*domain.Desktop, error)
	Update(ctx context.Context, desktopAppID string, appType domain.AppType, in service.UpdateInput, actorID string) (*domain.Desktop, error)
	Delete(ctx context.Context, desktopAppID string, appType domain.AppType, actorID string) error
	AssignAuthorities(ctx context.Context, desktopAppID string, appType domain.AppType, userIDs []string, actorID string) error
}

// DesktopView is the admin JSON view of a desktop. The secret key is never included.
type DesktopView struct {
	DesktopAppID          string        `json:"desktopAppId"`
	AppType               string        `json:"appType"`
	NameLabel             string        `json:"nameLabel"`
	Status                domain.Status `json:"status"`
	RequiredApprovalsN    int           `json:"requiredApprovalsN"`
	UnlockMinutes         int           `json:"unlockMinutes"`
	HasSecretKey          bool          `json:"hasSecretKey"`
	SecretKeyRotatedAtUtc *string       `json:"secretKeyRotatedAtUtc"`
	MachineName           string        `json:"machineName"`
	OSUser                string        `json:"osUser"`
	TokenControlVersion   string        `json:"tokenControlVersion"`
	CreatedAtUtc          *string       `json:"createdAtUtc"`
	LastSeenAtUtc         *string       `json:"lastSeenAtUtc"`
}

type updateRequest struct {
	RequiredApprovalsN *int           `json:"requiredApprovalsN"`
	UnlockMinutes      *int           `json:"unlockMinutes"`
	NameLabel          *string        `json:"nameLabel"`
	Status             *domain.Status `json:"status"`
}

type assignRequest struct {
	AuthorityIDs []string `json:"authorityIds"`
}

// Handler serves /api/admin/desktops routes.
type Handler struct {
	desktops DesktopAdmin
}

// NewHandler returns a Handler.
func NewHandler(desktops DesktopAdmin) *Handler {
	return &Handler{desktops: desktops}
}

// List handles GET /api/admin/desktops?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpjson.Page(r, 100, 500)
	list, err := h.desktops.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]DesktopView, 0, len(list))
	for _, d := range list {
		out = append(out, NewDesktopView(d))
	}
	httpjson.Write(w, http.StatusOK, out)
}

// Update handles PATCH /api/admin/desktops/{desktopAppId}?appType=.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	appType, ok := approvalhandler.AppTypeParam(r)
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown appType")
		return
	}
	var req updateRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.desktops.Update(r.Context(), chi.URLParam(r, middleware.DesktopIDParam), appType, service.UpdateInput{
		RequiredApprovalsN: req.RequiredApprovalsN,
		UnlockMinutes:      req.UnlockMinutes,
		NameLabel:          req.NameLabel,
		Status:             req.Status,
	}, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, NewDesktopView(d))
}

// Delete handles DELETE /api/admin/desktops/{desktopAppId}?appType=.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	appType, ok := approvalhandler.AppTypeParam(r)
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown appType")
		return
	}
	if err := h.desktops.Delete(r.Context(), chi.URLParam(r, middleware.DesktopIDParam), appType, actorID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assign handles PUT /api/admin/desktops/{desktopAppId}/assign?appType=.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	appType, ok := approvalhandler.AppTypeParam(r)
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown appType")
		return
	}
	var req assignRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.desktops.AssignAuthorities(r.Context(), chi.URLParam(r, middleware.DesktopIDParam), appType, req.AuthorityIDs, actorID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NewDesktopView converts a desktop to its admin view.
func NewDesktopView(d *domain.Desktop) DesktopView {
	created := d.CreatedAt
	return DesktopView{
		DesktopAppID:          d.DesktopAppID,
		AppType:               string(d.AppType),
		NameLabel:             d.NameLabel,
		Status:                d.Status,
		RequiredApprovalsN:    d.RequiredApprovalsN,
		UnlockMinutes:         d.UnlockMinutes,
		HasSecretKey:          d.HasKey(),
		SecretKeyRotatedAtUtc: httpjson.Time(d.SecretKeyRotatedAt),
		MachineName:           d.MachineName,
		OSUser:                d.OSUser,
		TokenControlVersion:   d.TokenControlVersion,
		CreatedAtUtc:          httpjson.Time(&created),
		LastSeenAtUtc:         httpjson.Time(d.LastSeenAt),
	}
}

func actorID(r *http.Request) string {
	if u := rbac.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	id, _ := middleware.GetUserID(r.Context())
	return id
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDesktopNotFound):
		httpjson.Error(w, http.StatusNotFound, "desktop not found")
	default:
		slog.Error("admin handler failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
