package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	approvaldomain "github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	assignmentdomain "github.com/commentors-net/Aegis-Mint/internal/assignment/domain"
	"github.com/commentors-net/Aegis-Mint/internal/audit"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/security"
	userdomain "github.com/commentors-net/Aegis-Mint/internal/user/domain"
)

// Sentinel errors for the desktop service; handlers map them to HTTP status codes.
var (
	ErrDesktopNotFound         = errors.New("desktop not found")
	ErrDesktopKeyNotConfigured = errors.New("desktop secret key not configured")
	ErrDesktopPathMismatch     = errors.New("route desktop id does not match signed desktop id")
	ErrInvalidInput            = errors.New("invalid input")
)

// DesktopRepo is the desktop repository needed by the service.
type DesktopRepo interface {
	Get(ctx context.Context, desktopAppID string, appType domain.AppType) (*domain.Desktop, error)
	Create(ctx context.Context, d *domain.Desktop) (bool, error)
	Touch(ctx context.Context, desktopAppID string, appType domain.AppType, mc domain.MachineContext, at time.Time) (*domain.Desktop, error)
	UpdatePolicy(ctx context.Context, d *domain.Desktop) (*domain.Desktop, error)
	RotateSecretKey(ctx context.Context, desktopAppID string, appType domain.AppType, oldKey, newKey string, at time.Time) (bool, error)
	Delete(ctx context.Context, desktopAppID string, appType domain.AppType) (bool, error)
	List(ctx context.Context, limit, offset int32) ([]*domain.Desktop, error)
	ListByAssignee(ctx context.Context, userID string) ([]*domain.Desktop, error)
}

// AssignmentRepo is the assignment repository needed by the service.
type AssignmentRepo interface {
	ListByDesktop(ctx context.Context, desktopAppID, appType string) ([]*assignmentdomain.Assignment, error)
	Replace(ctx context.Context, desktopAppID, appType string, userIDs []string) error
}

// UserRepo resolves approvers when assigning them.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// SessionReader returns a desktop's latest approval session, expiring it lazily.
type SessionReader interface {
	LatestSession(ctx context.Context, desktopAppID string, appType domain.AppType) (*approvaldomain.Summary, error)
}

// KeyRotator rotates a desktop's key when due.
type KeyRotator interface {
	RotateIfDue(ctx context.Context, d *domain.Desktop) (newKey string, rotated bool, err error)
}

// Defaults are the governance settings given to newly registered desktops.
type Defaults struct {
	RequiredApprovalsN int
	UnlockMinutes      int
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	DesktopAppID string
	AppType      string
	Machine      domain.MachineContext
	IPAddress    string
	UserAgent    string
}

// RegisterResult carries the desktop and, only when a key was issued by this call, the secret key.
type RegisterResult struct {
	Desktop   *domain.Desktop
	SecretKey string
	Created   bool
}

// UnlockStatus is what a polling desktop learns about its approval state.
type UnlockStatus struct {
	Desktop          *domain.Desktop
	IsUnlocked       bool
	UnlockedUntil    *time.Time
	RemainingSeconds int
	ApprovalsSoFar   int
	SessionStatus    approvaldomain.Status
	// NewSecretKey is set only when this call rotated the key.
	NewSecretKey string
}

// UpdateInput holds the optional admin changes to a desktop. Nil fields are left unchanged.
type UpdateInput struct {
	RequiredApprovalsN *int
	UnlockMinutes      *int
	NameLabel          *string
	Status             *domain.Status
}

// AssignedDesktop pairs a desktop with its latest session for an approver's dashboard.
type AssignedDesktop struct {
	Desktop *domain.Desktop
	Latest  *approvaldomain.Summary
}

// Service implements desktop registration, heartbeat, unlock-status and admin management.
type Service struct {
	desktops    DesktopRepo
	assignments AssignmentRepo
	users       UserRepo
	sessions    SessionReader
	rotator     KeyRotator
	sink        audit.Sink
	defaults    Defaults
	now         func() time.Time
}

// NewService returns a Service with the given dependencies. sink may be nil.
func NewService(
	desktops DesktopRepo,
	assignments AssignmentRepo,
	users UserRepo,
	sessions SessionReader,
	rotator KeyRotator,
	sink audit.Sink,
	defaults Defaults,
) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if defaults.RequiredApprovalsN < 1 {
		defaults.RequiredApprovalsN = 2
	}
	if defaults.UnlockMinutes < 1 {
		defaults.UnlockMinutes = 15
	}
	return &Service{
		desktops:    desktops,
		assignments: assignments,
		users:       users,
		sessions:    sessions,
		rotator:     rotator,
		sink:        sink,
		defaults:    defaults,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates a Pending desktop with a fresh key on first contact and returns the key once.
// Later calls refresh machine context and last-seen; they return a key only if the desktop had none.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	id := strings.TrimSpace(in.DesktopAppID)
	if id == "" {
		return nil, fmt.Errorf("%w: desktopAppId is required", ErrInvalidInput)
	}
	appType, ok := domain.ParseAppType(in.AppType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown appType %q", ErrInvalidInput, in.AppType)
	}
	now := s.now()

	existing, err := s.desktops.Get(ctx, id, appType)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		key, err := security.GenerateSecretKey()
		if err != nil {
			return nil, err
		}
		rotatedAt, seen := now, now
		d := &domain.Desktop{
			DesktopAppID:        id,
			AppType:             appType,
			NameLabel:           in.Machine.NameLabel,
			Status:              domain.StatusPending,
			RequiredApprovalsN:  s.defaults.RequiredApprovalsN,
			UnlockMinutes:       s.defaults.UnlockMinutes,
			SecretKey:           key,
			SecretKeyRotatedAt:  &rotatedAt,
			MachineName:         in.Machine.MachineName,
			OSUser:              in.Machine.OSUser,
			TokenControlVersion: in.Machine.TokenControlVersion,
			CreatedAt:           now,
			LastSeenAt:          &seen,
		}
		created, err := s.desktops.Create(ctx, d)
		if err != nil {
			return nil, err
		}
		if created {
			s.sink.LogEvent(ctx, audit.Event{
				Action:       auditdomain.ActionRegistered,
				DesktopAppID: id,
				AppType:      string(appType),
				Details:      map[string]any{"nameLabel": d.NameLabel},
			})
			s.logRegistration(ctx, d, in)
			return &RegisterResult{Desktop: d, SecretKey: key, Created: true}, nil
		}
		// A concurrent first registration won; continue as a repeat registration without a key.
	}

	// The label is admin-owned once the desktop exists.
	mc := in.Machine
	mc.NameLabel = ""
	d, err := s.desktops.Touch(ctx, id, appType, mc, now)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDesktopNotFound
	}
	res := &RegisterResult{Desktop: d}
	if !d.HasKey() {
		key, err := security.GenerateSecretKey()
		if err != nil {
			return nil, err
		}
		ok, err := s.desktops.RotateSecretKey(ctx, id, appType, "", key, now)
		if err != nil {
			return nil, err
		}
		if ok {
			rotatedAt := now
			d.SecretKey, d.SecretKeyRotatedAt = key, &rotatedAt
			res.SecretKey = key
		}
	}
	s.sink.LogEvent(ctx, audit.Event{
		Action:       auditdomain.ActionHeartbeat,
		DesktopAppID: id,
		AppType:      string(appType),
		Details: map[string]any{
			"machineName":         d.MachineName,
			"osUser":              d.OSUser,
			"tokenControlVersion": d.TokenControlVersion,
		},
	})
	s.logRegistration(ctx, d, in)
	return res, nil
}

func (s *Service) logRegistration(ctx context.Context, d *domain.Desktop, in RegisterInput) {
	s.sink.LogAuth(ctx, audit.AuthAttempt{
		DesktopAppID:        d.DesktopAppID,
		AppType:             string(d.AppType),
		EventType:           auditdomain.AuthRegistration,
		Success:             true,
		Endpoint:            "register",
		IPAddress:           in.IPAddress,
		UserAgent:           in.UserAgent,
		MachineName:         d.MachineName,
		OSUser:              d.OSUser,
		TokenControlVersion: d.TokenControlVersion,
	})
}

// Heartbeat records machine context and last-seen for an authenticated desktop.
// The label is admin-owned after registration, so heartbeats cannot change it.
func (s *Service) Heartbeat(ctx context.Context, d *domain.Desktop, mc domain.MachineContext) (*domain.Desktop, error) {
	mc.NameLabel = ""
	out, err := s.desktops.Touch(ctx, d.DesktopAppID, d.AppType, mc, s.now())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrDesktopNotFound
	}
	return out, nil
}

// UnlockStatus summarizes the desktop's latest session and rotates its key when due.
// A failed rotation is logged and the status is still served; the next poll retries.
func (s *Service) UnlockStatus(ctx context.Context, d *domain.Desktop) (*UnlockStatus, error) {
	latest, err := s.sessions.LatestSession(ctx, d.DesktopAppID, d.AppType)
	if err != nil {
		return nil, err
	}
	now := s.now()
	st := &UnlockStatus{
		Desktop:        d,
		SessionStatus:  latest.Status(),
		ApprovalsSoFar: latest.Count(),
	}
	if latest != nil && latest.Session != nil {
		st.UnlockedUntil = latest.Session.UnlockedUntil
		if latest.Session.InWindow(now) {
			st.IsUnlocked = true
			st.RemainingSeconds = latest.RemainingSeconds(now)
		}
	}
	if s.rotator != nil {
		key, rotated, err := s.rotator.RotateIfDue(ctx, d)
		if err != nil {
			slog.Error("desktop: key rotation failed", "desktop_app_id", d.DesktopAppID, "app_type", d.AppType, "err", err)
		} else if rotated {
			st.NewSecretKey = key
		}
	}
	return st, nil
}

// Get returns the desktop or ErrDesktopNotFound.
func (s *Service) Get(ctx context.Context, desktopAppID string, appType domain.AppType) (*domain.Desktop, error) {
	d, err := s.desktops.Get(ctx, desktopAppID, appType)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDesktopNotFound
	}
	return d, nil
}

// Update applies an admin change to status, thresholds or label.
// A desktop without a key cannot leave Pending.
func (s *Service) Update(ctx context.Context, desktopAppID string, appType domain.AppType, in UpdateInput, actorID string) (*domain.Desktop, error) {
	d, err := s.Get(ctx, desktopAppID, appType)
	if err != nil {
		return nil, err
	}
	if in.RequiredApprovalsN != nil {
		if *in.RequiredApprovalsN < 1 {
			return nil, fmt.Errorf("%w: requiredApprovalsN must be at least 1", ErrInvalidInput)
		}
		d.RequiredApprovalsN = *in.RequiredApprovalsN
	}
	if in.UnlockMinutes != nil {
		if *in.UnlockMinutes < 1 {
			return nil, fmt.Errorf("%w: unlockMinutes must be at least 1", ErrInvalidInput)
		}
		d.UnlockMinutes = *in.UnlockMinutes
	}
	if in.NameLabel != nil {
		d.NameLabel = strings.TrimSpace(*in.NameLabel)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		if *in.Status != domain.StatusPending && !d.HasKey() {
			return nil, fmt.Errorf("%w: desktop has no secret key; it must register first", ErrInvalidInput)
		}
		d.Status = *in.Status
	}
	out, err := s.desktops.UpdatePolicy(ctx, d)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrDesktopNotFound
	}
	s.sink.LogEvent(ctx, audit.Event{
		Action:       auditdomain.ActionDesktopUpdated,
		ActorUserID:  actorID,
		DesktopAppID: out.DesktopAppID,
		AppType:      string(out.AppType),
		Details: map[string]any{
			"requiredApprovalsN": out.RequiredApprovalsN,
			"unlockMinutes":      out.UnlockMinutes,
			"nameLabel":          out.NameLabel,
			"status":             string(out.Status),
		},
	})
	return out, nil
}

// Delete removes the desktop with its sessions, approvals and assignments.
func (s *Service) Delete(ctx context.Context, desktopAppID string, appType domain.AppType, actorID string) error {
	ok, err := s.desktops.Delete(ctx, desktopAppID, appType)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDesktopNotFound
	}
	s.sink.LogEvent(ctx, audit.Event{
		Action:       auditdomain.ActionDesktopDeleted,
		ActorUserID:  actorID,
		DesktopAppID: desktopAppID,
		AppType:      string(appType),
	})
	return nil
}

// List returns desktops newest first.
func (s *Service) List(ctx context.Context, limit, offset int32) ([]*domain.Desktop, error) {
	return s.desktops.List(ctx, limit, offset)
}

// ListAssigned returns the desktops assigned to userID with their latest session.
func (s *Service) ListAssigned(ctx context.Context, userID string) ([]AssignedDesktop, error) {
	desktops, err := s.desktops.ListByAssignee(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AssignedDesktop, 0, len(desktops))
	for _, d := range desktops {
		latest, err := s.sessions.LatestSession(ctx, d.DesktopAppID, d.AppType)
		if err != nil {
			return nil, fmt.Errorf("latest session for %s: %w", d.DesktopAppID, err)
		}
		out = append(out, AssignedDesktop{Desktop: d, Latest: latest})
	}
	return out, nil
}

// AssignAuthorities replaces the desktop's governance assignments. Every id must be an active
// GovernanceAuthority.
func (s *Service) AssignAuthorities(ctx context.Context, desktopAppID string, appType domain.AppType, userIDs []string, actorID string) error {
	if _, err := s.Get(ctx, desktopAppID, appType); err != nil {
		return err
	}
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]bool, len(userIDs))
	for _, raw := range userIDs {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !u.Active() || u.Role != userdomain.RoleGovernanceAuthority {
			return fmt.Errorf("%w: %s is not an active governance authority", ErrInvalidInput, id)
		}
		ids = append(ids, id)
	}
	if err := s.assignments.Replace(ctx, desktopAppID, string(appType), ids); err != nil {
		return err
	}
	s.sink.LogEvent(ctx, audit.Event{
		Action:       auditdomain.ActionAssignmentsSet,
		ActorUserID:  actorID,
		DesktopAppID: desktopAppID,
		AppType:      string(appType),
		Details:      map[string]any{"authorityIds": ids},
	})
	return nil
}

// Assignments returns the user ids assigned to the desktop.
func (s *Service) Assignments(ctx context.Context, desktopAppID string, appType domain.AppType) ([]string, error) {
	list, err := s.assignments.ListByDesktop(ctx, desktopAppID, string(appType))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.UserID
	}
	return out, nil
}
