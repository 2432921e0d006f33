// Package handler exposes desktop registration, heartbeat and unlock-status over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	approvalservice "github.com/commentors-net/Aegis-Mint/internal/approval/service"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/service"
	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
	"github.com/commentors-net/Aegis-Mint/internal/security"
	"github.com/commentors-net/Aegis-Mint/internal/server/middleware"
)

type registerRequest struct {
	DesktopAppID        string `json:"desktopAppId"`
	AppType             string `json:"appType"`
	MachineName         string `json:"machineName"`
	OSUser              string `json:"osUser"`
	NameLabel           string `json:"nameLabel"`
	TokenControlVersion string `json:"tokenControlVersion"`
}

type registerResponse struct {
	DesktopStatus      domain.Status `json:"desktopStatus"`
	RequiredApprovalsN int           `json:"requiredApprovalsN"`
	UnlockMinutes      int           `json:"unlockMinutes"`
	SecretKey          string        `json:"secretKey,omitempty"`
}

type heartbeatRequest struct {
	MachineName         string `json:"machineName"`
	OSUser              string `json:"osUser"`
	TokenControlVersion string `json:"tokenControlVersion"`
}

type heartbeatResponse struct {
	DesktopStatus      domain.Status `json:"desktopStatus"`
	RequiredApprovalsN int           `json:"requiredApprovalsN"`
	UnlockMinutes      int           `json:"unlockMinutes"`
}

type unlockStatusResponse struct {
	DesktopStatus      domain.Status `json:"desktopStatus"`
	IsUnlocked         bool          `json:"isUnlocked"`
	UnlockedUntilUtc   *string       `json:"unlockedUntilUtc"`
	RemainingSeconds   int           `json:"remainingSeconds"`
	RequiredApprovalsN int           `json:"requiredApprovalsN"`
	ApprovalsSoFar     int           `json:"approvalsSoFar"`
	SessionStatus      string        `json:"sessionStatus"`
	NewSecretKey       string        `json:"newSecretKey,omitempty"`
}

// Handler serves the desktop-facing routes.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register handles POST /api/desktop/register. The secret key is in the response only when this
// call issued it. The app type comes from the body, then X-App-Type.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	appType := req.AppType
	if appType == "" {
		appType = r.Header.Get(security.HeaderAppType)
	}
	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		DesktopAppID: req.DesktopAppID,
		AppType:      appType,
		Machine: domain.MachineContext{
			MachineName:         req.MachineName,
			OSUser:              req.OSUser,
			TokenControlVersion: req.TokenControlVersion,
			NameLabel:           req.NameLabel,
		},
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, registerResponse{
		DesktopStatus:      res.Desktop.Status,
		RequiredApprovalsN: res.Desktop.RequiredApprovalsN,
		UnlockMinutes:      res.Desktop.UnlockMinutes,
		SecretKey:          res.SecretKey,
	})
}

// Heartbeat handles POST /api/desktop/{desktopAppId}/heartbeat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.svc.Heartbeat(r.Context(), middleware.GetDesktop(r.Context()), domain.MachineContext{
		MachineName:         req.MachineName,
		OSUser:              req.OSUser,
		TokenControlVersion: req.TokenControlVersion,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, heartbeatResponse{
		DesktopStatus:      d.Status,
		RequiredApprovalsN: d.RequiredApprovalsN,
		UnlockMinutes:      d.UnlockMinutes,
	})
}

// UnlockStatus handles GET /api/desktop/{desktopAppId}/unlock-status.
func (h *Handler) UnlockStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.UnlockStatus(r.Context(), middleware.GetDesktop(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, unlockStatusResponse{
		DesktopStatus:      st.Desktop.Status,
		IsUnlocked:         st.IsUnlocked,
		UnlockedUntilUtc:   httpjson.Time(st.UnlockedUntil),
		RemainingSeconds:   st.RemainingSeconds,
		RequiredApprovalsN: st.Desktop.RequiredApprovalsN,
		ApprovalsSoFar:     st.ApprovalsSoFar,
		SessionStatus:      string(st.SessionStatus),
		NewSecretKey:       st.NewSecretKey,
	})
}

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDesktopNotFound), errors.Is(err, approvalservice.ErrDesktopNotFound):
		httpjson.Error(w, http.StatusNotFound, "desktop not found")
	default:
		slog.Error("desktop handler failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
