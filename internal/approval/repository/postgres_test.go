package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	"github.com/commentors-net/Aegis-Mint/internal/approval/repository"
	approvalservice "github.com/commentors-net/Aegis-Mint/internal/approval/service"
	"github.com/commentors-net/Aegis-Mint/internal/audit"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	"github.com/commentors-net/Aegis-Mint/internal/db"
	"github.com/commentors-net/Aegis-Mint/internal/db/migrate"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	desktoprepo "github.com/commentors-net/Aegis-Mint/internal/desktop/repository"
	"github.com/google/uuid"
)

const tc = desktopdomain.AppTypeTokenControl

type countingSink struct {
	mu     sync.Mutex
	counts map[auditdomain.Action]int
}

func (s *countingSink) LogEvent(ctx context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[auditdomain.Action]int{}
	}
	s.counts[e.Action]++
}

func (s *countingSink) LogAuth(ctx context.Context, a audit.AuthAttempt) {}

func (s *countingSink) count(action auditdomain.Action) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[action]
}

// openTestDB is skipped unless DATABASE_URL points at a reachable Postgres.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, migrate.Up, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// seedDesktop registers a fresh Active desktop and removes it, with its sessions, when the test ends.
func seedDesktop(t *testing.T, conn *sql.DB, required int) string {
	t.Helper()
	id := "it-" + uuid.New().String()
	repo := desktoprepo.NewPostgresRepository(conn)
	created, err := repo.Create(context.Background(), &desktopdomain.Desktop{
		DesktopAppID:       id,
		AppType:            tc,
		NameLabel:          "integration",
		Status:             desktopdomain.StatusActive,
		RequiredApprovalsN: required,
		UnlockMinutes:      15,
		SecretKey:          "c2VjcmV0LWtleS1mb3ItaW50ZWdyYXRpb24tdGVzdHM=",
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil || !created {
		t.Fatalf("create desktop: created=%v err=%v", created, err)
	}
	t.Cleanup(func() { _, _ = repo.Delete(context.Background(), id, tc) })
	return id
}

func newSession(desktopID string) *domain.Session {
	return &domain.Session{
		ID:                        uuid.New().String(),
		DesktopAppID:              desktopID,
		AppType:                   string(tc),
		Status:                    domain.StatusPending,
		RequiredApprovalsSnapshot: 2,
		CreatedAt:                 time.Now().UTC(),
	}
}

func TestPostgresStore_SessionTransitions(t *testing.T) {
	conn := openTestDB(t)
	store := repository.NewPostgresStore(conn)
	ctx := context.Background()
	desktopID := seedDesktop(t, conn, 2)

	s := newSession(desktopID)
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		d, err := tx.LockDesktop(ctx, desktopID, string(tc))
		if err != nil || d == nil {
			return fmt.Errorf("lock desktop: %v %v", d, err)
		}
		return tx.CreateSession(ctx, s)
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// A second Pending session for the same desktop violates the partial unique index.
	err = store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateSession(ctx, newSession(desktopID))
	})
	if err == nil {
		t.Fatal("second Pending session should be rejected")
	}

	at := time.Now().UTC()
	for i, want := range []bool{true, false} {
		var ok bool
		err := store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			ok, err = tx.UnlockSession(ctx, s.ID, at, at.Add(15*time.Minute))
			return err
		})
		if err != nil {
			t.Fatalf("unlock #%d: %v", i+1, err)
		}
		if ok != want {
			t.Errorf("unlock #%d = %v, want %v", i+1, ok, want)
		}
	}

	var cancelled bool
	if err := store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		cancelled, err = tx.CancelSession(ctx, s.ID)
		return err
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled {
		t.Error("an Unlocked session must not be cancelled")
	}

	var expired bool
	if err := store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		expired, err = tx.ExpireSession(ctx, s.ID, at.Add(16*time.Minute))
		return err
	}); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !expired {
		t.Error("session past its window should expire")
	}
}

func TestPostgresStore_InsertApprovalDuplicateAndOrder(t *testing.T) {
	conn := openTestDB(t)
	store := repository.NewPostgresStore(conn)
	ctx := context.Background()
	desktopID := seedDesktop(t, conn, 5)

	s := newSession(desktopID)
	// Every vote shares one timestamp so only insertion order can break the tie.
	at := time.Now().UTC().Truncate(time.Second)
	approvers := []string{"zed", "mia", "abe", "kim"}
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateSession(ctx, s); err != nil {
			return err
		}
		for _, who := range approvers {
			ok, err := tx.InsertApproval(ctx, &domain.Approval{ID: uuid.New().String(), SessionID: s.ID, ApproverUserID: who, ApprovedAt: at})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("first vote by %s reported as duplicate", who)
			}
		}
		ok, err := tx.InsertApproval(ctx, &domain.Approval{ID: uuid.New().String(), SessionID: s.ID, ApproverUserID: "mia", ApprovedAt: at})
		if err != nil {
			return err
		}
		if ok {
			return errors.New("repeat vote by mia was inserted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var list []*domain.Approval
	var n int
	if err := store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		if n, err = tx.CountApprovals(ctx, s.ID); err != nil {
			return err
		}
		list, err = tx.ListApprovals(ctx, s.ID)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if n != len(approvers) || len(list) != len(approvers) {
		t.Fatalf("count=%d list=%d, want %d", n, len(list), len(approvers))
	}
	for i, a := range list {
		if a.ApproverUserID != approvers[i] {
			t.Errorf("approval %d = %s, want %s", i, a.ApproverUserID, approvers[i])
		}
	}
}

func TestPostgresStore_ConcurrentSameApprover(t *testing.T) {
	conn := openTestDB(t)
	desktopID := seedDesktop(t, conn, 5)
	m := approvalservice.NewManager(repository.NewPostgresStore(conn), &countingSink{})
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, dup := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AddApproval(ctx, desktopID, tc, "alice")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, approvalservice.ErrDuplicateApproval):
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

func TestPostgresStore_ConcurrentThresholdRace(t *testing.T) {
	conn := openTestDB(t)
	desktopID := seedDesktop(t, conn, 2)
	sink := &countingSink{}
	m := approvalservice.NewManager(repository.NewPostgresStore(conn), sink)
	ctx := context.Background()

	const approvers = 6
	var wg sync.WaitGroup
	errs := make(chan error, approvers)
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.AddApproval(ctx, desktopID, tc, fmt.Sprintf("approver-%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AddApproval: %v", err)
	}

	if n := sink.count(auditdomain.ActionUnlocked); n != 1 {
		t.Fatalf("UNLOCKED events = %d, want exactly 1", n)
	}
	if n := sink.count(auditdomain.ActionSessionCreated); n != 1 {
		t.Fatalf("SESSION_CREATED events = %d, want 1", n)
	}
	sum, err := m.LatestSession(ctx, desktopID, tc)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count() != approvers || sum.Session.Status != domain.StatusUnlocked {
		t.Errorf("final session: status %s with %d approvals", sum.Session.Status, sum.Count())
	}
}
