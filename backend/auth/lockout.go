package auth

import (
	"context"
	"fmt"
	"time"
)

// LockStatus is the result of a lockout check.
type LockStatus struct {
	Blocked   bool
	Remaining time.Duration
}

// RemainingMinutes rounds the time left up to whole minutes.
func (s LockStatus) RemainingMinutes() int {
	if !s.Blocked || s.Remaining <= 0 {
		return 0
	}
	return int((s.Remaining + time.Minute - 1) / time.Minute)
}

// Lockout blocks an account once it reaches MaxAttempts failures within Window
// of the most recent one. Password and pattern failures share the counter.
type Lockout struct {
	store       Store
	MaxAttempts int
	Window      time.Duration
	now         func() time.Time
}

func NewLockout(store Store, maxAttempts int, window time.Duration) *Lockout {
	return &Lockout{store: store, MaxAttempts: maxAttempts, Window: window, now: time.Now}
}

// Check reports whether the user is blocked. A counter left over from an
// expired window is reset on the way.
func (l *Lockout) Check(ctx context.Context, userID string) (LockStatus, error) {
	u, err := l.store.UserByID(ctx, userID)
	if err != nil {
		return LockStatus{}, fmt.Errorf("load user for lockout check: %w", err)
	}
	if u.FailedAttempts == 0 {
		return LockStatus{}, nil
	}

	var elapsed time.Duration
	if u.LastFailedAttempt != nil {
		elapsed = l.now().Sub(*u.LastFailedAttempt)
	} else {
		elapsed = l.Window
	}

	if elapsed >= l.Window {
		if err := l.store.ExpireFailedAttempts(ctx, userID, l.now().Add(-l.Window)); err != nil {
			return LockStatus{}, fmt.Errorf("reset expired failures: %w", err)
		}
		return LockStatus{}, nil
	}
	if u.FailedAttempts >= l.MaxAttempts {
		return LockStatus{Blocked: true, Remaining: l.Window - elapsed}, nil
	}
	return LockStatus{}, nil
}

// RecordFailure counts a failed attempt and returns the new total.
func (l *Lockout) RecordFailure(ctx context.Context, userID string) (int, error) {
	n, err := l.store.IncrementFailedAttempts(ctx, userID, l.now())
	if err != nil {
		return 0, fmt.Errorf("record failed attempt: %w", err)
	}
	return n, nil
}

func (l *Lockout) Reset(ctx context.Context, userID string) error {
	if err := l.store.ResetFailedAttempts(ctx, userID); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

// AttemptsLeft is how many failures remain before the account locks.
func (l *Lockout) AttemptsLeft(failed int) int {
	return max(0, l.MaxAttempts-failed)
}
