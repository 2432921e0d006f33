package domain

import (
	"testing"
	"time"
)

func TestSession_Window(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	s := &Session{Status: StatusUnlocked, UnlockedUntil: &until}

	if !s.InWindow(now) || s.WindowElapsed(now) || !s.Reusable(now) {
		t.Error("session should be in window before until")
	}
	if s.InWindow(until) || !s.WindowElapsed(until) || s.Reusable(until) {
		t.Error("window closes exactly at until")
	}

	pending := &Session{Status: StatusPending}
	if !pending.Reusable(now.Add(1000 * time.Hour)) {
		t.Error("pending sessions never expire")
	}
	for _, st := range []Status{StatusExpired, StatusCancelled} {
		if (&Session{Status: st}).Reusable(now) {
			t.Errorf("%s session should not be reusable", st)
		}
	}
	var nilSession *Session
	if nilSession.Reusable(now) || nilSession.InWindow(now) {
		t.Error("nil session is inactive")
	}
}

func TestSummary_Helpers(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(90*time.Second + 500*time.Millisecond)
	sum := &Summary{
		Session:   &Session{Status: StatusUnlocked, UnlockedUntil: &until},
		Approvals: []*Approval{{ApproverUserID: "a"}, {ApproverUserID: "b"}},
	}
	if got := sum.RemainingSeconds(now); got != 90 {
		t.Errorf("RemainingSeconds = %d, want 90", got)
	}
	if got := sum.RemainingSeconds(now.Add(time.Hour)); got != 0 {
		t.Errorf("RemainingSeconds after window = %d, want 0", got)
	}
	if !sum.HasApprover("b") || sum.HasApprover("c") {
		t.Error("HasApprover mismatch")
	}
	if sum.Count() != 2 || sum.Status() != StatusUnlocked {
		t.Errorf("Count=%d Status=%s", sum.Count(), sum.Status())
	}

	var none *Summary
	if none.Status() != StatusNone || none.Count() != 0 || none.RemainingSeconds(now) != 0 {
		t.Error("nil summary should report None/0")
	}
}
