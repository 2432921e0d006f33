package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	"github.com/commentors-net/Aegis-Mint/internal/approval/repository"
	"github.com/commentors-net/Aegis-Mint/internal/audit"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/store/memory"
)

const tc = desktopdomain.AppTypeTokenControl

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) LogEvent(ctx context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) LogAuth(ctx context.Context, a audit.AuthAttempt) {}

func (s *recordingSink) count(action auditdomain.Action) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *memory.Store
	sink    *recordingSink
	clock   *clock
	manager *Manager
}

func newFixture(t *testing.T, status desktopdomain.Status, required, unlockMinutes int) *fixture {
	t.Helper()
	store := memory.New()
	ok, err := store.Desktops().Create(context.Background(), &desktopdomain.Desktop{
		DesktopAppID:       "desk-1",
		AppType:            tc,
		Status:             status,
		RequiredApprovalsN: required,
		UnlockMinutes:      unlockMinutes,
		SecretKey:          "key",
		CreatedAt:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil || !ok {
		t.Fatalf("seed desktop: (%v, %v)", ok, err)
	}
	sink := &recordingSink{}
	c := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := NewManager(store, sink)
	m.SetClock(c.Now)
	return &fixture{store: store, sink: sink, clock: c, manager: m}
}

func TestAddApproval_UnlocksAtThreshold(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 15)
	ctx := context.Background()

	sum, err := f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	if err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if sum.Session.Status != domain.StatusPending || sum.Count() != 1 || sum.Session.RequiredApprovalsSnapshot != 2 {
		t.Fatalf("after first vote: status=%s count=%d", sum.Session.Status, sum.Count())
	}

	sum, err = f.manager.AddApproval(ctx, "desk-1", tc, "bob")
	if err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if sum.Session.Status != domain.StatusUnlocked {
		t.Fatalf("status = %s, want Unlocked", sum.Session.Status)
	}
	wantUntil := f.clock.Now().Add(15 * time.Minute)
	if sum.Session.UnlockedUntil == nil || !sum.Session.UnlockedUntil.Equal(wantUntil) {
		t.Errorf("UnlockedUntil = %v, want %v", sum.Session.UnlockedUntil, wantUntil)
	}
	if got := sum.RemainingSeconds(f.clock.Now()); got != 900 {
		t.Errorf("RemainingSeconds = %d, want 900", got)
	}
	if f.sink.count(auditdomain.ActionSessionCreated) != 1 || f.sink.count(auditdomain.ActionApproved) != 2 || f.sink.count(auditdomain.ActionUnlocked) != 1 {
		t.Errorf("audit events = %+v", f.sink.events)
	}
}

func TestAddApproval_IdempotentUnlock(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 15)
	ctx := context.Background()
	_, _ = f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	first, _ := f.manager.AddApproval(ctx, "desk-1", tc, "bob")
	until := *first.Session.UnlockedUntil

	f.clock.Advance(5 * time.Minute)
	late, err := f.manager.AddApproval(ctx, "desk-1", tc, "carol")
	if err != nil {
		t.Fatalf("late approval in window: %v", err)
	}
	if late.Session.ID != first.Session.ID {
		t.Error("approval inside the window joins the unlocked session")
	}
	if !late.Session.UnlockedUntil.Equal(until) {
		t.Errorf("window extended to %v, want %v", late.Session.UnlockedUntil, until)
	}
	if late.Count() != 3 {
		t.Errorf("count = %d, want 3", late.Count())
	}
	if n := f.sink.count(auditdomain.ActionUnlocked); n != 1 {
		t.Errorf("UNLOCKED events = %d, want 1", n)
	}
}

func TestAddApproval_DuplicateRejected(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 3, 15)
	ctx := context.Background()
	if _, err := f.manager.AddApproval(ctx, "desk-1", tc, "alice"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	_, err := f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	if !errors.Is(err, ErrDuplicateApproval) {
		t.Fatalf("err = %v, want ErrDuplicateApproval", err)
	}
	sum, _ := f.manager.LatestSession(ctx, "desk-1", tc)
	if sum.Count() != 1 {
		t.Errorf("count = %d, want 1", sum.Count())
	}
	if n := f.sink.count(auditdomain.ActionApproved); n != 1 {
		t.Errorf("APPROVED events = %d, want 1", n)
	}
}

func TestAddApproval_DesktopNotActive(t *testing.T) {
	for _, status := range []desktopdomain.Status{desktopdomain.StatusPending, desktopdomain.StatusDisabled} {
		f := newFixture(t, status, 1, 15)
		_, err := f.manager.AddApproval(context.Background(), "desk-1", tc, "alice")
		if !errors.Is(err, ErrDesktopNotActive) {
			t.Errorf("%s: err = %v, want ErrDesktopNotActive", status, err)
		}
		if sum, _ := f.manager.LatestSession(context.Background(), "desk-1", tc); sum != nil {
			t.Errorf("%s: no session should be created", status)
		}
	}
}

func TestAddApproval_DesktopNotFound(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 1, 15)
	if _, err := f.manager.AddApproval(context.Background(), "nope", tc, "alice"); !errors.Is(err, ErrDesktopNotFound) {
		t.Fatalf("err = %v, want ErrDesktopNotFound", err)
	}
	if _, err := f.manager.AddApproval(context.Background(), "desk-1", desktopdomain.AppTypeMint, "alice"); !errors.Is(err, ErrDesktopNotFound) {
		t.Fatalf("app type mismatch: err = %v, want ErrDesktopNotFound", err)
	}
}

func TestLatestSession_LazyExpiry(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 1, 10)
	ctx := context.Background()
	unlocked, _ := f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	if unlocked.Session.Status != domain.StatusUnlocked {
		t.Fatalf("status = %s", unlocked.Session.Status)
	}

	f.clock.Advance(10*time.Minute - time.Second)
	sum, _ := f.manager.LatestSession(ctx, "desk-1", tc)
	if sum.Session.Status != domain.StatusUnlocked {
		t.Errorf("one second before the end: status = %s", sum.Session.Status)
	}

	f.clock.Advance(time.Second)
	sum, err := f.manager.LatestSession(ctx, "desk-1", tc)
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if sum.Session.Status != domain.StatusExpired {
		t.Errorf("at window end: status = %s, want Expired", sum.Session.Status)
	}
	if sum.RemainingSeconds(f.clock.Now()) != 0 {
		t.Error("expired session has no remaining time")
	}
	if n := f.sink.count(auditdomain.ActionSessionExpired); n != 1 {
		t.Errorf("SESSION_EXPIRED events = %d, want 1", n)
	}
	_, _ = f.manager.LatestSession(ctx, "desk-1", tc)
	if n := f.sink.count(auditdomain.ActionSessionExpired); n != 1 {
		t.Errorf("expiry must be recorded once, got %d", n)
	}
}

func TestLatestSession_PendingNeverExpires(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 10)
	ctx := context.Background()
	_, _ = f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	f.clock.Advance(30 * 24 * time.Hour)
	sum, _ := f.manager.LatestSession(ctx, "desk-1", tc)
	if sum.Session.Status != domain.StatusPending {
		t.Errorf("status = %s, want Pending", sum.Session.Status)
	}
}

func TestAddApproval_NewRoundAfterExpiry(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 5)
	ctx := context.Background()
	_, _ = f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	first, _ := f.manager.AddApproval(ctx, "desk-1", tc, "bob")

	f.clock.Advance(6 * time.Minute)
	next, err := f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	if err != nil {
		t.Fatalf("late approval: %v", err)
	}
	if next.Session.ID == first.Session.ID {
		t.Fatal("late approval must open a new session")
	}
	if next.Session.Status != domain.StatusPending || next.Count() != 1 || next.Approvals[0].ApproverUserID != "alice" {
		t.Errorf("new round = status %s, %d approvals", next.Session.Status, next.Count())
	}
	if n := f.sink.count(auditdomain.ActionSessionCreated); n != 2 {
		t.Errorf("SESSION_CREATED events = %d, want 2", n)
	}
}

func TestGetOrCreateActiveSession_SnapshotsThreshold(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 15)
	ctx := context.Background()
	s, err := f.manager.GetOrCreateActiveSession(ctx, "desk-1", tc)
	if err != nil {
		t.Fatalf("GetOrCreateActiveSession: %v", err)
	}
	if s.RequiredApprovalsSnapshot != 2 {
		t.Fatalf("snapshot = %d", s.RequiredApprovalsSnapshot)
	}

	d, _ := f.store.Desktops().Get(ctx, "desk-1", tc)
	d.RequiredApprovalsN = 5
	_, _ = f.store.Desktops().UpdatePolicy(ctx, d)

	again, _ := f.manager.GetOrCreateActiveSession(ctx, "desk-1", tc)
	if again.ID != s.ID || again.RequiredApprovalsSnapshot != 2 {
		t.Errorf("pending session must be reused with its snapshot, got %+v", again)
	}
	_, _ = f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	sum, _ := f.manager.AddApproval(ctx, "desk-1", tc, "bob")
	if sum.Session.Status != domain.StatusUnlocked {
		t.Errorf("threshold change mid-round must not apply, status = %s", sum.Session.Status)
	}
}

func TestCancelActiveSession(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 15)
	ctx := context.Background()
	if _, err := f.manager.CancelActiveSession(ctx, "desk-1", tc, "admin"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("no session: err = %v", err)
	}
	_, _ = f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	sum, err := f.manager.CancelActiveSession(ctx, "desk-1", tc, "admin")
	if err != nil {
		t.Fatalf("CancelActiveSession: %v", err)
	}
	if sum.Session.Status != domain.StatusCancelled {
		t.Errorf("status = %s", sum.Session.Status)
	}
	if f.sink.count(auditdomain.ActionSessionCancelled) != 1 {
		t.Error("SESSION_CANCELLED should be audited")
	}
	next, _ := f.manager.AddApproval(ctx, "desk-1", tc, "alice")
	if next.Session.ID == sum.Session.ID || next.Count() != 1 {
		t.Error("a vote after cancel opens a new round")
	}
}

func TestAddApproval_ConcurrentThresholdRace(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 2, 15)
	ctx := context.Background()

	const approvers = 6
	var wg sync.WaitGroup
	errs := make(chan error, approvers)
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.manager.AddApproval(ctx, "desk-1", tc, fmt.Sprintf("approver-%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AddApproval: %v", err)
	}

	if n := f.sink.count(auditdomain.ActionUnlocked); n != 1 {
		t.Fatalf("UNLOCKED events = %d, want exactly 1", n)
	}
	if n := f.sink.count(auditdomain.ActionSessionCreated); n != 1 {
		t.Fatalf("SESSION_CREATED events = %d, want 1", n)
	}
	sum, _ := f.manager.LatestSession(ctx, "desk-1", tc)
	if sum.Count() != approvers || sum.Session.Status != domain.StatusUnlocked {
		t.Errorf("final session: status %s with %d approvals", sum.Session.Status, sum.Count())
	}
}

func TestAddApproval_ConcurrentSameApprover(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 5, 15)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, dup := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.AddApproval(ctx, "desk-1", tc, "alice")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDuplicateApproval):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || dup != attempts-1 {
		t.Errorf("ok=%d dup=%d, want 1 and %d", ok, dup, attempts-1)
	}
}

// failingStore wraps a store and fails UnlockSession to check that the approval rolls back with it.
type failingStore struct {
	inner repository.Store
}

type failingTx struct {
	repository.Tx
}

func (f failingTx) UnlockSession(ctx context.Context, id string, at, until time.Time) (bool, error) {
	return false, errors.New("disk full")
}

func (s failingStore) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.inner.WithTx(ctx, func(tx repository.Tx) error { return fn(failingTx{tx}) })
}

func TestAddApproval_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t, desktopdomain.StatusActive, 1, 15)
	m := NewManager(failingStore{inner: f.store}, f.sink)
	m.SetClock(f.clock.Now)

	if _, err := m.AddApproval(context.Background(), "desk-1", tc, "alice"); err == nil {
		t.Fatal("expected storage error")
	}
	if sum, _ := f.manager.LatestSession(context.Background(), "desk-1", tc); sum != nil {
		t.Errorf("no session or approval may survive a failed unit, got %+v", sum)
	}
	if len(f.sink.events) != 0 {
		t.Errorf("no audit events for a rolled back unit, got %+v", f.sink.events)
	}
}
