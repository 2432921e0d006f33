// Package memory is an in-process implementation of every repository, used when no database is
// configured and by service tests. A single mutex serializes all access; approval units of work
// hold it for their whole duration and are rolled back from a snapshot on error.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	approvaldomain "github.com/commentors-net/Aegis-Mint/internal/approval/domain"
	approvalrepo "github.com/commentors-net/Aegis-Mint/internal/approval/repository"
	assignmentdomain "github.com/commentors-net/Aegis-Mint/internal/assignment/domain"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	desktopdomain "github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	userdomain "github.com/commentors-net/Aegis-Mint/internal/user/domain"
)

type desktopKey struct {
	id      string
	appType string
}

type storedSession struct {
	seq     uint64
	session approvaldomain.Session
}

// Store holds all state. Use the accessor methods for the per-entity repositories.
type Store struct {
	mu sync.Mutex

	desktops    map[desktopKey]*desktopdomain.Desktop
	sessions    map[string]*storedSession
	approvals   map[string][]approvaldomain.Approval
	users       map[string]*userdomain.User
	assignments map[desktopKey][]assignmentdomain.Assignment
	auditLogs   []auditdomain.AuditLog
	authLogs    []auditdomain.AuthLog
	seq         uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		desktops:    make(map[desktopKey]*desktopdomain.Desktop),
		sessions:    make(map[string]*storedSession),
		approvals:   make(map[string][]approvaldomain.Approval),
		users:       make(map[string]*userdomain.User),
		assignments: make(map[desktopKey][]assignmentdomain.Assignment),
	}
}

// Desktops returns the desktop repository view.
func (s *Store) Desktops() *DesktopRepository { return &DesktopRepository{s: s} }

// Users returns the user repository view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Assignments returns the assignment repository view.
func (s *Store) Assignments() *AssignmentRepository { return &AssignmentRepository{s: s} }

// Audit returns the audit repository view.
func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

// Ping always succeeds; it lets the store stand in for a database in readiness checks.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WithTx implements the approval repository Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx approvalrepo.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make(map[string]*storedSession, len(s.sessions))
	for id, ss := range s.sessions {
		cp := *ss
		sessions[id] = &cp
	}
	approvals := make(map[string][]approvaldomain.Approval, len(s.approvals))
	for id, list := range s.approvals {
		approvals[id] = append([]approvaldomain.Approval(nil), list...)
	}
	seq := s.seq

	if err := fn(&memoryTx{s: s}); err != nil {
		s.sessions, s.approvals, s.seq = sessions, approvals, seq
		return err
	}
	return nil
}

type memoryTx struct {
	s *Store
}

func (t *memoryTx) LockDesktop(ctx context.Context, desktopAppID, appType string) (*desktopdomain.Desktop, error) {
	d := t.s.desktops[desktopKey{desktopAppID, appType}]
	return copyDesktop(d), nil
}

func (t *memoryTx) LatestSession(ctx context.Context, desktopAppID, appType string) (*approvaldomain.Session, error) {
	var latest *storedSession
	for _, ss := range t.s.sessions {
		if ss.session.DesktopAppID != desktopAppID || ss.session.AppType != appType {
			continue
		}
		if latest == nil || ss.seq > latest.seq {
			latest = ss
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := latest.session
	return &out, nil
}

func (t *memoryTx) CreateSession(ctx context.Context, s *approvaldomain.Session) error {
	if s.Status == approvaldomain.StatusPending {
		for _, ss := range t.s.sessions {
			if ss.session.DesktopAppID == s.DesktopAppID && ss.session.AppType == s.AppType && ss.session.Status == approvaldomain.StatusPending {
				return errPendingExists
			}
		}
	}
	t.s.seq++
	t.s.sessions[s.ID] = &storedSession{seq: t.s.seq, session: *s}
	return nil
}

func (t *memoryTx) ExpireSession(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	ss, ok := t.s.sessions[sessionID]
	if !ok || !ss.session.WindowElapsed(now) {
		return false, nil
	}
	ss.session.Status = approvaldomain.StatusExpired
	return true, nil
}

func (t *memoryTx) UnlockSession(ctx context.Context, sessionID string, at, until time.Time) (bool, error) {
	ss, ok := t.s.sessions[sessionID]
	if !ok || ss.session.Status != approvaldomain.StatusPending {
		return false, nil
	}
	ss.session.Status = approvaldomain.StatusUnlocked
	ss.session.UnlockedAt = &at
	ss.session.UnlockedUntil = &until
	return true, nil
}

func (t *memoryTx) CancelSession(ctx context.Context, sessionID string) (bool, error) {
	ss, ok := t.s.sessions[sessionID]
	if !ok || ss.session.Status != approvaldomain.StatusPending {
		return false, nil
	}
	ss.session.Status = approvaldomain.StatusCancelled
	return true, nil
}

func (t *memoryTx) InsertApproval(ctx context.Context, a *approvaldomain.Approval) (bool, error) {
	if _, ok := t.s.sessions[a.SessionID]; !ok {
		return false, errSessionMissing
	}
	for _, existing := range t.s.approvals[a.SessionID] {
		if existing.ApproverUserID == a.ApproverUserID {
			return false, nil
		}
	}
	t.s.approvals[a.SessionID] = append(t.s.approvals[a.SessionID], *a)
	return true, nil
}

func (t *memoryTx) CountApprovals(ctx context.Context, sessionID string) (int, error) {
	return len(t.s.approvals[sessionID]), nil
}

func (t *memoryTx) ListApprovals(ctx context.Context, sessionID string) ([]*approvaldomain.Approval, error) {
	list := t.s.approvals[sessionID]
	out := make([]*approvaldomain.Approval, len(list))
	for i := range list {
		a := list[i]
		if u := t.s.users[a.ApproverUserID]; u != nil {
			a.ApproverEmail = u.Email
		}
		out[i] = &a
	}
	return out, nil
}

// DesktopRepository implements the desktop repository over Store.
type DesktopRepository struct{ s *Store }

func (r *DesktopRepository) Get(ctx context.Context, desktopAppID string, appType desktopdomain.AppType) (*desktopdomain.Desktop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyDesktop(r.s.desktops[desktopKey{desktopAppID, string(appType)}]), nil
}

func (r *DesktopRepository) Create(ctx context.Context, d *desktopdomain.Desktop) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := desktopKey{d.DesktopAppID, string(d.AppType)}
	if _, ok := r.s.desktops[k]; ok {
		return false, nil
	}
	r.s.desktops[k] = copyDesktop(d)
	return true, nil
}

func (r *DesktopRepository) Touch(ctx context.Context, desktopAppID string, appType desktopdomain.AppType, mc desktopdomain.MachineContext, at time.Time) (*desktopdomain.Desktop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.s.desktops[desktopKey{desktopAppID, string(appType)}]
	if d == nil {
		return nil, nil
	}
	if mc.MachineName != "" {
		d.MachineName = mc.MachineName
	}
	if mc.OSUser != "" {
		d.OSUser = mc.OSUser
	}
	if mc.TokenControlVersion != "" {
		d.TokenControlVersion = mc.TokenControlVersion
	}
	if mc.NameLabel != "" {
		d.NameLabel = mc.NameLabel
	}
	seen := at
	d.LastSeenAt = &seen
	return copyDesktop(d), nil
}

func (r *DesktopRepository) UpdatePolicy(ctx context.Context, in *desktopdomain.Desktop) (*desktopdomain.Desktop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.s.desktops[desktopKey{in.DesktopAppID, string(in.AppType)}]
	if d == nil {
		return nil, nil
	}
	d.Status = in.Status
	d.RequiredApprovalsN = in.RequiredApprovalsN
	d.UnlockMinutes = in.UnlockMinutes
	d.NameLabel = in.NameLabel
	return copyDesktop(d), nil
}

func (r *DesktopRepository) RotateSecretKey(ctx context.Context, desktopAppID string, appType desktopdomain.AppType, oldKey, newKey string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.s.desktops[desktopKey{desktopAppID, string(appType)}]
	if d == nil || d.SecretKey != oldKey {
		return false, nil
	}
	d.SecretKey = newKey
	rotated := at
	d.SecretKeyRotatedAt = &rotated
	return true, nil
}

func (r *DesktopRepository) Delete(ctx context.Context, desktopAppID string, appType desktopdomain.AppType) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := desktopKey{desktopAppID, string(appType)}
	if _, ok := r.s.desktops[k]; !ok {
		return false, nil
	}
	delete(r.s.desktops, k)
	delete(r.s.assignments, k)
	for id, ss := range r.s.sessions {
		if ss.session.DesktopAppID == desktopAppID && ss.session.AppType == string(appType) {
			delete(r.s.sessions, id)
			delete(r.s.approvals, id)
		}
	}
	return true, nil
}

func (r *DesktopRepository) List(ctx context.Context, limit, offset int32) ([]*desktopdomain.Desktop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*desktopdomain.Desktop, 0, len(r.s.desktops))
	for _, d := range r.s.desktops {
		all = append(all, copyDesktop(d))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].DesktopAppID < all[j].DesktopAppID
	})
	return page(all, limit, offset), nil
}

func (r *DesktopRepository) ListByAssignee(ctx context.Context, userID string) ([]*desktopdomain.Desktop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*desktopdomain.Desktop
	for k, list := range r.s.assignments {
		for _, a := range list {
			if a.UserID == userID {
				if d := r.s.desktops[k]; d != nil {
					out = append(out, copyDesktop(d))
				}
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DesktopAppID != out[j].DesktopAppID {
			return out[i].DesktopAppID < out[j].DesktopAppID
		}
		return out[i].AppType < out[j].AppType
	})
	return out, nil
}

// UserRepository implements the user repository over Store.
type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u := r.s.users[id]; u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) Upsert(ctx context.Context, u *userdomain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *u
	if existing := r.s.users[u.ID]; existing != nil {
		cp.CreatedAt = existing.CreatedAt
	}
	r.s.users[u.ID] = &cp
	return nil
}

// AssignmentRepository implements the assignment repository over Store.
type AssignmentRepository struct{ s *Store }

func (r *AssignmentRepository) ListByDesktop(ctx context.Context, desktopAppID, appType string) ([]*assignmentdomain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := r.s.assignments[desktopKey{desktopAppID, appType}]
	out := make([]*assignmentdomain.Assignment, len(list))
	for i := range list {
		a := list[i]
		out[i] = &a
	}
	return out, nil
}

func (r *AssignmentRepository) Replace(ctx context.Context, desktopAppID, appType string, userIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	seen := make(map[string]bool, len(userIDs))
	list := make([]assignmentdomain.Assignment, 0, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		list = append(list, assignmentdomain.Assignment{
			ID:           uuid.New().String(),
			UserID:       uid,
			DesktopAppID: desktopAppID,
			AppType:      appType,
			CreatedAt:    now,
		})
	}
	r.s.assignments[desktopKey{desktopAppID, appType}] = list
	return nil
}

// AuditRepository implements the audit repository over Store. Entries are append-only.
type AuditRepository struct{ s *Store }

func (r *AuditRepository) Create(ctx context.Context, a *auditdomain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.auditLogs = append(r.s.auditLogs, *a)
	return nil
}

func (r *AuditRepository) List(ctx context.Context, f auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*auditdomain.AuditLog
	for i := len(r.s.auditLogs) - 1; i >= 0; i-- {
		a := r.s.auditLogs[i]
		if f.DesktopAppID != "" && a.DesktopAppID != f.DesktopAppID {
			continue
		}
		if f.Action != "" && string(a.Action) != f.Action {
			continue
		}
		out = append(out, &a)
	}
	return page(out, f.Limit, f.Offset), nil
}

func (r *AuditRepository) CreateAuthLog(ctx context.Context, a *auditdomain.AuthLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.authLogs = append(r.s.authLogs, *a)
	return nil
}

func (r *AuditRepository) ListAuthLogs(ctx context.Context, desktopAppID string, limit int32) ([]*auditdomain.AuthLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*auditdomain.AuthLog
	for i := len(r.s.authLogs) - 1; i >= 0; i-- {
		a := r.s.authLogs[i]
		if desktopAppID != "" && a.DesktopAppID != desktopAppID {
			continue
		}
		out = append(out, &a)
	}
	return page(out, limit, 0), nil
}

func page[T any](all []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && int(limit) < len(all) {
		all = all[:limit]
	}
	return all
}

func copyDesktop(d *desktopdomain.Desktop) *desktopdomain.Desktop {
	if d == nil {
		return nil
	}
	cp := *d
	if d.SecretKeyRotatedAt != nil {
		t := *d.SecretKeyRotatedAt
		cp.SecretKeyRotatedAt = &t
	}
	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		cp.LastSeenAt = &t
	}
	return &cp
}
