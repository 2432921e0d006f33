// Package handler exposes the governance approval routes over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	"github.com/commentors-net/Aegis-Mint/internal/approval/service"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	desktopservice "github.com/commentors-net/Aegis-Mint/internal/desktop/service"
	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
	"github.com/commentors-net/Aegis-Mint/internal/platform/rbac"
	"github.com/commentors-net/Aegis-Mint/internal/server/middleware"
)

// Approvals is the approval session manager used by the handler.
type Approvals interface {
	AddApproval(ctx context.Context, desktopAppID string, appType desktopdomain.AppType, approverID string) (*domain.Summary, error)
	LatestSession(ctx context.Context, desktopAppID string, appType desktopdomain.AppType) (*domain.Summary, error)
	CancelActiveSession(ctx context.Context, desktopAppID string, appType desktopdomain.AppType, actorID string) (*domain.Summary, error)
}

// AssignedLister lists the desktops an approver watches.
type AssignedLister interface {
	ListAssigned(ctx context.Context, userID string) ([]desktopservice.AssignedDesktop, error)
}

type approvalItem struct {
	ApproverUserID string  `json:"approverUserId"`
	ApprovedAtUtc  string  `json:"approvedAtUtc"`
	ApproverEmail  *string `json:"approverEmail"`
}

// SummaryResponse is the JSON view of a session and its approvals.
type SummaryResponse struct {
	SessionID                 string         `json:"sessionId"`
	DesktopAppID              string         `json:"desktopAppId"`
	Status                    domain.Status  `json:"status"`
	RequiredApprovalsSnapshot int            `json:"requiredApprovalsSnapshot"`
	UnlockedUntilUtc          *string        `json:"unlockedUntilUtc"`
	RemainingSeconds          int            `json:"remainingSeconds"`
	Approvals                 []approvalItem `json:"approvals"`
}

type assignedDesktop struct {
	DesktopAppID       string               `json:"desktopAppId"`
	NameLabel          string               `json:"nameLabel"`
	AppType            string               `json:"appType"`
	LastSeenAtUtc      *string              `json:"lastSeenAtUtc"`
	RequiredApprovalsN int                  `json:"requiredApprovalsN"`
	ApprovalsSoFar     int                  `json:"approvalsSoFar"`
	Status             desktopdomain.Status `json:"status"`
	SessionStatus      domain.Status        `json:"sessionStatus"`
	UnlockedUntilUtc   *string              `json:"unlockedUntilUtc"`
	AlreadyApproved    bool                 `json:"alreadyApproved"`
	RemainingSeconds   int                  `json:"remainingSeconds"`
}

// Handler serves /api/governance routes. Callers must already have passed the policy gate.
type Handler struct {
	approvals Approvals
	desktops  AssignedLister
	now       func() time.Time
}

// NewHandler returns a Handler.
func NewHandler(approvals Approvals, desktops AssignedLister) *Handler {
	return &Handler{
		approvals: approvals,
		desktops:  desktops,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Approve handles POST /api/governance/desktops/{desktopAppId}/approve?appType=.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	u := rbac.UserFromContext(r.Context())
	if u == nil {
		httpjson.Unauthorized(w)
		return
	}
	appType, ok := AppTypeParam(r)
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown appType")
		return
	}
	summary, err := h.approvals.AddApproval(r.Context(), chi.URLParam(r, middleware.DesktopIDParam), appType, u.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, NewSummaryResponse(summary, h.now()))
}

// History handles GET /api/governance/desktops/{desktopAppId}/history?appType=.
// The body is null when the desktop never had a session.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	appType, ok := AppTypeParam(r)
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown appType")
		return
	}
	summary, err := h.approvals.LatestSession(r.Context(), chi.URLParam(r, middleware.DesktopIDParam), appType)
	if err != nil {
		WriteError(w, err)
		return
	}
	if summary == nil {
		httpjson.Write(w, http.StatusOK, json.RawMessage("null"))
		return
	}
	httpjson.Write(w, http.StatusOK, NewSummaryResponse(summary, h.now()))
}

// ListAssigned handles GET /api/governance/desktops.
func (h *Handler) ListAssigned(w http.ResponseWriter, r *http.Request) {
	u := rbac.UserFromContext(r.Context())
	if u == nil {
		httpjson.Unauthorized(w)
		return
	}
	list, err := h.desktops.ListAssigned(r.Context(), u.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	now := h.now()
	out := make([]assignedDesktop, 0, len(list))
	for _, a := range list {
		item := assignedDesktop{
			DesktopAppID:       a.Desktop.DesktopAppID,
			NameLabel:          a.Desktop.NameLabel,
			AppType:            string(a.Desktop.AppType),
			LastSeenAtUtc:      httpjson.Time(a.Desktop.LastSeenAt),
			RequiredApprovalsN: a.Desktop.RequiredApprovalsN,
			Status:             a.Desktop.Status,
			SessionStatus:      a.Latest.Status(),
		}
		if a.Latest != nil && a.Latest.Session.Reusable(now) {
			item.ApprovalsSoFar = a.Latest.Count()
			item.AlreadyApproved = a.Latest.HasApprover(u.ID)
			item.UnlockedUntilUtc = httpjson.Time(a.Latest.Session.UnlockedUntil)
			if a.Latest.Session.InWindow(now) {
				item.RemainingSeconds = a.Latest.RemainingSeconds(now)
			}
		}
		out = append(out, item)
	}
	httpjson.Write(w, http.StatusOK, out)
}

// CancelSession handles POST /api/admin/desktops/{desktopAppId}/cancel-session?appType=.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	u := rbac.UserFromContext(r.Context())
	if u == nil {
		httpjson.Unauthorized(w)
		return
	}
	appType, ok := AppTypeParam(r)
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown appType")
		return
	}
	summary, err := h.approvals.CancelActiveSession(r.Context(), chi.URLParam(r, middleware.DesktopIDParam), appType, u.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, NewSummaryResponse(summary, h.now()))
}

// AppTypeParam reads ?appType=, defaulting to TokenControl.
func AppTypeParam(r *http.Request) (desktopdomain.AppType, bool) {
	return desktopdomain.ParseAppType(r.URL.Query().Get("appType"))
}

// NewSummaryResponse converts a session summary to its JSON view.
func NewSummaryResponse(s *domain.Summary, now time.Time) SummaryResponse {
	out := SummaryResponse{
		SessionID:                 s.Session.ID,
		DesktopAppID:              s.Session.DesktopAppID,
		Status:                    s.Session.Status,
		RequiredApprovalsSnapshot: s.Session.RequiredApprovalsSnapshot,
		UnlockedUntilUtc:          httpjson.Time(s.Session.UnlockedUntil),
		Approvals:                 make([]approvalItem, 0, len(s.Approvals)),
	}
	if s.Session.InWindow(now) {
		out.RemainingSeconds = s.RemainingSeconds(now)
	}
	for _, a := range s.Approvals {
		item := approvalItem{
			ApproverUserID: a.ApproverUserID,
			ApprovedAtUtc:  a.ApprovedAt.UTC().Format(time.RFC3339),
		}
		if a.ApproverEmail != "" {
			email := a.ApproverEmail
			item.ApproverEmail = &email
		}
		out.Approvals = append(out.Approvals, item)
	}
	return out
}

// WriteError maps approval errors to HTTP status codes. Messages are shown to the approver as-is.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateApproval):
		httpjson.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDesktopNotActive):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDesktopNotFound), errors.Is(err, service.ErrSessionNotFound):
		httpjson.Error(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("approval handler failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
