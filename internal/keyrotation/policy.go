// Package keyrotation decides when a desktop's shared secret is due for replacement and performs the
// conditional swap. Rotation is pull-based: it only runs when the desktop polls unlock-status.
package keyrotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commentors-net/Aegis-Mint/internal/audit"
	auditdomain "github.com/commentors-net/Aegis-Mint/internal/audit/domain"
	"github.com/commentors-net/Aegis-Mint/internal/desktop/domain"
	"github.com/commentors-net/Aegis-Mint/internal/security"
)

// DefaultInterval is the key lifetime when none is configured.
const DefaultInterval = 90 * 24 * time.Hour

// ErrRotationRaced is returned when another request replaced the key between read and update.
// The caller must not surface any key; the winner's response carries it.
var ErrRotationRaced = errors.New("key rotation raced with a concurrent request")

// KeyStore is the subset of the desktop repository the policy writes through.
type KeyStore interface {
	RotateSecretKey(ctx context.Context, desktopAppID string, appType domain.AppType, oldKey, newKey string, at time.Time) (bool, error)
}

// Policy rotates desktop keys older than Interval.
type Policy struct {
	Interval time.Duration
	Store    KeyStore
	Sink     audit.Sink
	Now      func() time.Time
	// NewKey generates key material; defaults to security.GenerateSecretKey.
	NewKey func() (string, error)
}

// NewPolicy returns a Policy with the given interval (DefaultInterval when <= 0).
func NewPolicy(interval time.Duration, store KeyStore, sink audit.Sink) *Policy {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Policy{Interval: interval, Store: store, Sink: sink}
}

func (p *Policy) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Policy) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

// ShouldRotate reports whether d needs a new key at now. A desktop without a key always does.
// Without a rotation stamp the key age is measured from the desktop's creation.
func (p *Policy) ShouldRotate(d *domain.Desktop, now time.Time) bool {
	if d == nil {
		return false
	}
	if !d.HasKey() {
		return true
	}
	since := d.CreatedAt
	if d.SecretKeyRotatedAt != nil {
		since = *d.SecretKeyRotatedAt
	}
	return now.Sub(since) >= p.interval()
}

// Rotate replaces d's key if it still holds the key d was read with, stamps the rotation time and
// records a KeyRotation authentication event. On success d is updated in place.
func (p *Policy) Rotate(ctx context.Context, d *domain.Desktop, now time.Time) (string, error) {
	gen := p.NewKey
	if gen == nil {
		gen = security.GenerateSecretKey
	}
	newKey, err := gen()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	ok, err := p.Store.RotateSecretKey(ctx, d.DesktopAppID, d.AppType, d.SecretKey, newKey, now)
	if err != nil {
		return "", fmt.Errorf("rotate key: %w", err)
	}
	if !ok {
		return "", ErrRotationRaced
	}
	d.SecretKey = newKey
	rotatedAt := now
	d.SecretKeyRotatedAt = &rotatedAt
	if p.Sink != nil {
		p.Sink.LogAuth(ctx, audit.AuthAttempt{
			DesktopAppID:        d.DesktopAppID,
			AppType:             string(d.AppType),
			EventType:           auditdomain.AuthKeyRotation,
			Success:             true,
			Endpoint:            "unlock-status",
			MachineName:         d.MachineName,
			OSUser:              d.OSUser,
			TokenControlVersion: d.TokenControlVersion,
		})
	}
	return newKey, nil
}

// RotateIfDue rotates d's key when ShouldRotate says so. A lost race is not an error:
// it reports rotated=false and no key.
func (p *Policy) RotateIfDue(ctx context.Context, d *domain.Desktop) (newKey string, rotated bool, err error) {
	now := p.now()
	if !p.ShouldRotate(d, now) {
		return "", false, nil
	}
	newKey, err = p.Rotate(ctx, d, now)
	if errors.Is(err, ErrRotationRaced) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return newKey, true, nil
}
