// Package service implements the threshold approval state machine.
//
// Sessions move Pending -> Unlocked -> Expired, or Pending -> Cancelled. There is no timer: an
// Unlocked session whose window has closed is moved to Expired by whichever read or write touches
// it next. Every operation runs in one store transaction that first locks the desktop row, so at
// most one Pending session exists per desktop and exactly one approval crosses the threshold.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	"github.com/commentors-net/Aegis-Mint/internal/approval/repository"
	"github.com/commentors-net/Aegis-Mint/internal/audit"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
)

const instrumentationName = "github.com/commentors-net/Aegis-Mint/internal/approval"

var (
	ErrDesktopNotFound   = errors.New("desktop not found")
	ErrDesktopNotActive  = errors.New("desktop is not active")
	ErrDuplicateApproval = errors.New("already approved in this session")
	ErrSessionNotFound   = errors.New("no pending session")
)

// Manager drives approval sessions. Audit events are emitted only after the unit of work commits.
type Manager struct {
	store   repository.Store
	sink    audit.Sink
	now     func() time.Time
	tracer  trace.Tracer
	unlocks metric.Int64Counter
}

// NewManager returns a Manager over store. sink may be nil.
func NewManager(store repository.Store, sink audit.Sink) *Manager {
	if sink == nil {
		sink = audit.Nop{}
	}
	unlocks, _ := otel.Meter(instrumentationName).Int64Counter("aegis.approval.unlocks",
		metric.WithDescription("Approval sessions that reached their threshold"))
	return &Manager{
		store:   store,
		sink:    sink,
		now:     func() time.Time { return time.Now().UTC() },
		tracer:  otel.Tracer(instrumentationName),
		unlocks: unlocks,
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// GetOrCreateActiveSession returns the desktop's Pending or in-window Unlocked session, opening a
// new Pending session with the desktop's current threshold when there is none.
func (m *Manager) GetOrCreateActiveSession(ctx context.Context, desktopAppID string, appType desktopdomain.AppType) (*domain.Session, error) {
	ctx, span := m.tracer.Start(ctx, "approval.GetOrCreateActiveSession", trace.WithAttributes(desktopAttrs(desktopAppID, appType)...))
	defer span.End()

	now := m.now()
	var (
		session *domain.Session
		events  []audit.Event
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		d, err := tx.LockDesktop(ctx, desktopAppID, string(appType))
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDesktopNotFound
		}
		session, err = m.resolveActive(ctx, tx, d, now, &events)
		return err
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	m.emit(ctx, events)
	return session, nil
}

// AddApproval records approverID's vote on the desktop's active session and unlocks the session
// when the vote meets its threshold. A vote after the window lazily expired opens a new round.
func (m *Manager) AddApproval(ctx context.Context, desktopAppID string, appType desktopdomain.AppType, approverID string) (*domain.Summary, error) {
	ctx, span := m.tracer.Start(ctx, "approval.AddApproval", trace.WithAttributes(desktopAttrs(desktopAppID, appType)...))
	defer span.End()

	now := m.now()
	var (
		summary  *domain.Summary
		events   []audit.Event
		unlocked bool
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		events = events[:0]
		d, err := tx.LockDesktop(ctx, desktopAppID, string(appType))
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDesktopNotFound
		}
		if d.Status != desktopdomain.StatusActive {
			return ErrDesktopNotActive
		}
		s, err := m.resolveActive(ctx, tx, d, now, &events)
		if err != nil {
			return err
		}

		inserted, err := tx.InsertApproval(ctx, &domain.Approval{
			ID:             uuid.New().String(),
			SessionID:      s.ID,
			ApproverUserID: approverID,
			ApprovedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		if !inserted {
			return ErrDuplicateApproval
		}
		count, err := tx.CountApprovals(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("count approvals: %w", err)
		}
		events = append(events, audit.Event{
			Action:       auditdomain.ActionApproved,
			ActorUserID:  approverID,
			DesktopAppID: d.DesktopAppID,
			AppType:      string(d.AppType),
			SessionID:    s.ID,
			Details:      map[string]any{"approvalsSoFar": count, "required": s.RequiredApprovalsSnapshot},
		})

		if count >= s.RequiredApprovalsSnapshot && s.Status == domain.StatusPending {
			until := now.Add(time.Duration(d.UnlockMinutes) * time.Minute)
			ok, err := tx.UnlockSession(ctx, s.ID, now, until)
			if err != nil {
				return fmt.Errorf("unlock session: %w", err)
			}
			if ok {
				at := now
				s.Status = domain.StatusUnlocked
				s.UnlockedAt = &at
				s.UnlockedUntil = &until
				unlocked = true
				events = append(events, audit.Event{
					Action:       auditdomain.ActionUnlocked,
					ActorUserID:  approverID,
					DesktopAppID: d.DesktopAppID,
					AppType:      string(d.AppType),
					SessionID:    s.ID,
					Details:      map[string]any{"unlockedUntilUtc": until.Format(time.RFC3339), "approvals": count},
				})
			}
		}

		approvals, err := tx.ListApprovals(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		summary = &domain.Summary{Session: s, Approvals: approvals}
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	if unlocked && m.unlocks != nil {
		m.unlocks.Add(ctx, 1, metric.WithAttributes(attribute.String("app_type", string(appType))))
	}
	span.SetAttributes(attribute.String("approval.session_status", string(summary.Session.Status)))
	m.emit(ctx, events)
	return summary, nil
}

// LatestSession returns the desktop's most recent session with its approvals, expiring it first
// if its window has closed. Returns (nil, nil) when the desktop never had a session.
func (m *Manager) LatestSession(ctx context.Context, desktopAppID string, appType desktopdomain.AppType) (*domain.Summary, error) {
	ctx, span := m.tracer.Start(ctx, "approval.LatestSession", trace.WithAttributes(desktopAttrs(desktopAppID, appType)...))
	defer span.End()

	now := m.now()
	var (
		summary *domain.Summary
		events  []audit.Event
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		d, err := tx.LockDesktop(ctx, desktopAppID, string(appType))
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDesktopNotFound
		}
		s, err := tx.LatestSession(ctx, desktopAppID, string(appType))
		if err != nil {
			return err
		}
		if s == nil {
			return nil
		}
		if err := m.expireIfElapsed(ctx, tx, s, now, &events); err != nil {
			return err
		}
		approvals, err := tx.ListApprovals(ctx, s.ID)
		if err != nil {
			return err
		}
		summary = &domain.Summary{Session: s, Approvals: approvals}
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	m.emit(ctx, events)
	return summary, nil
}

// CancelActiveSession moves the desktop's Pending session to Cancelled.
// Returns ErrSessionNotFound when no session is Pending.
func (m *Manager) CancelActiveSession(ctx context.Context, desktopAppID string, appType desktopdomain.AppType, actorID string) (*domain.Summary, error) {
	ctx, span := m.tracer.Start(ctx, "approval.CancelActiveSession", trace.WithAttributes(desktopAttrs(desktopAppID, appType)...))
	defer span.End()

	var (
		summary *domain.Summary
		events  []audit.Event
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		d, err := tx.LockDesktop(ctx, desktopAppID, string(appType))
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDesktopNotFound
		}
		s, err := tx.LatestSession(ctx, desktopAppID, string(appType))
		if err != nil {
			return err
		}
		if s == nil || s.Status != domain.StatusPending {
			return ErrSessionNotFound
		}
		ok, err := tx.CancelSession(ctx, s.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSessionNotFound
		}
		s.Status = domain.StatusCancelled
		approvals, err := tx.ListApprovals(ctx, s.ID)
		if err != nil {
			return err
		}
		summary = &domain.Summary{Session: s, Approvals: approvals}
		events = append(events, audit.Event{
			Action:       auditdomain.ActionSessionCancelled,
			ActorUserID:  actorID,
			DesktopAppID: d.DesktopAppID,
			AppType:      string(d.AppType),
			SessionID:    s.ID,
			Details:      map[string]any{"approvalsSoFar": len(approvals)},
		})
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	m.emit(ctx, events)
	return summary, nil
}

func (m *Manager) resolveActive(ctx context.Context, tx repository.Tx, d *desktopdomain.Desktop, now time.Time, events *[]audit.Event) (*domain.Session, error) {
	s, err := tx.LatestSession(ctx, d.DesktopAppID, string(d.AppType))
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	if s != nil {
		if err := m.expireIfElapsed(ctx, tx, s, now, events); err != nil {
			return nil, err
		}
		if s.Reusable(now) {
			return s, nil
		}
	}
	s = &domain.Session{
		ID:                        uuid.New().String(),
		DesktopAppID:              d.DesktopAppID,
		AppType:                   string(d.AppType),
		Status:                    domain.StatusPending,
		RequiredApprovalsSnapshot: d.RequiredApprovalsN,
		CreatedAt:                 now,
	}
	if err := tx.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	*events = append(*events, audit.Event{
		Action:       auditdomain.ActionSessionCreated,
		DesktopAppID: d.DesktopAppID,
		AppType:      string(d.AppType),
		SessionID:    s.ID,
		Details:      map[string]any{"requiredApprovalsSnapshot": s.RequiredApprovalsSnapshot},
	})
	return s, nil
}

func (m *Manager) expireIfElapsed(ctx context.Context, tx repository.Tx, s *domain.Session, now time.Time, events *[]audit.Event) error {
	if !s.WindowElapsed(now) {
		return nil
	}
	ok, err := tx.ExpireSession(ctx, s.ID, now)
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	if ok {
		s.Status = domain.StatusExpired
		*events = append(*events, audit.Event{
			Action:       auditdomain.ActionSessionExpired,
			DesktopAppID: s.DesktopAppID,
			AppType:      s.AppType,
			SessionID:    s.ID,
		})
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, events []audit.Event) {
	for _, e := range events {
		m.sink.LogEvent(ctx, e)
	}
}

func desktopAttrs(desktopAppID string, appType desktopdomain.AppType) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("desktop.app_id", desktopAppID),
		attribute.String("desktop.app_type", string(appType)),
	}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
