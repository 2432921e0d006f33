package domain

import "time"

// Status is the approval session state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusUnlocked  Status = "Unlocked"
	StatusExpired   Status = "Expired"
	StatusCancelled Status = "Cancelled"
	// StatusNone is reported when a desktop never had a session. It is never stored.
	StatusNone Status = "None"
)

// Session is one approval round for a desktop. At most one Pending session exists per desktop.
type Session struct {
	ID                        string
	DesktopAppID              string
	AppType                   string
	Status                    Status
	RequiredApprovalsSnapshot int
	CreatedAt                 time.Time
	UnlockedAt                *time.Time
	UnlockedUntil             *time.Time
}

// InWindow reports whether s is Unlocked and now is before the end of its window.
func (s *Session) InWindow(now time.Time) bool {
	return s != nil && s.Status == StatusUnlocked && s.UnlockedUntil != nil && now.Before(*s.UnlockedUntil)
}

// WindowElapsed reports whether s is Unlocked and its window has closed at now.
func (s *Session) WindowElapsed(now time.Time) bool {
	return s != nil && s.Status == StatusUnlocked && s.UnlockedUntil != nil && !now.Before(*s.UnlockedUntil)
}

// Reusable reports whether new approvals at now belong to s rather than a fresh round.
func (s *Session) Reusable(now time.Time) bool {
	return s != nil && (s.Status == StatusPending || s.InWindow(now))
}

// Approval is one approver's vote in a session. ApproverEmail is filled on reads when known.
type Approval struct {
	ID             string
	SessionID      string
	ApproverUserID string
	ApprovedAt     time.Time
	ApproverEmail  string
}

// Summary is a session together with its approvals in commit order.
type Summary struct {
	Session   *Session
	Approvals []*Approval
}

// RemainingSeconds returns whole seconds left in the unlock window, or 0.
func (s *Summary) RemainingSeconds(now time.Time) int {
	if s == nil || s.Session == nil || s.Session.UnlockedUntil == nil {
		return 0
	}
	d := s.Session.UnlockedUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// HasApprover reports whether userID already voted in this session.
func (s *Summary) HasApprover(userID string) bool {
	if s == nil {
		return false
	}
	for _, a := range s.Approvals {
		if a.ApproverUserID == userID {
			return true
		}
	}
	return false
}

// Count returns the number of approvals.
func (s *Summary) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Approvals)
}

// Status returns the session status, or StatusNone when there is no session.
func (s *Summary) Status() Status {
	if s == nil || s.Session == nil {
		return StatusNone
	}
	return s.Session.Status
}
