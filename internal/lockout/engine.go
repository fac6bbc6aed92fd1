// Package lockout implements the per-account brute-force lockout state
// machine: it decides whether an authentication attempt may proceed and
// records attempt outcomes atomically.
package lockout

import (
	"context"
	"time"

	"github.com/yourusername/time-ledger/internal/account"
)

// Decision is computed fresh from the account's stored state and the wall
// clock on every call; it is never cached.
type Decision struct {
	Allowed           bool
	RetryAfter        time.Duration // set when Allowed is false
	AttemptsRemaining int           // set when Allowed is true
}

// Engine evaluates and records authentication attempts for accounts.
type Engine struct {
	store       account.Store
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

// NewEngine creates a lockout engine over the given store.
func NewEngine(store account.Store, maxAttempts int, duration time.Duration) *Engine {
	return &Engine{
		store:       store,
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         time.Now,
	}
}

// SetClock overrides the engine's clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) decide(state account.LockoutState, now time.Time) Decision {
	if !state.LockedUntil.IsZero() && state.LockedUntil.After(now) {
		return Decision{Allowed: false, RetryAfter: state.LockedUntil.Sub(now)}
	}

	// An elapsed lockout does not clear the counter; only a successful
	// authentication does. Attempts remaining is clamped so a stale counter
	// never reports a negative allowance.
	remaining := e.maxAttempts - state.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, AttemptsRemaining: remaining}
}

// Evaluate reports whether authentication may proceed for the account.
// It is a read-only gate; counting happens in RecordAttempt.
func (e *Engine) Evaluate(ctx context.Context, accountID string) (Decision, error) {
	acc, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	state := account.LockoutState{
		FailedAttempts: acc.FailedAttempts,
		LockedUntil:    acc.LockedUntil,
	}
	return e.decide(state, e.now()), nil
}

// RecordAttempt records the outcome of an authentication attempt and returns
// the decision derived from the new state.
//
// For failures the read-evaluate-increment sequence runs as one atomic store
// operation scoped to the account: concurrent failing attempts serialize, so
// no interleaving lets more than maxAttempts failures count before the lock
// engages. An attempt that lands while the account is already locked mutates
// nothing. Every call appends one immutable audit fact.
func (e *Engine) RecordAttempt(ctx context.Context, accountID string, success bool, clientIP, clientAgent string) (Decision, error) {
	now := e.now()

	var decision Decision
	if success {
		if err := e.store.ResetLockout(ctx, accountID); err != nil {
			return Decision{}, err
		}
		decision = Decision{Allowed: true, AttemptsRemaining: e.maxAttempts}
	} else {
		state, err := e.store.AtomicUpdateLockout(ctx, accountID, func(s account.LockoutState) account.LockoutState {
			if !s.LockedUntil.IsZero() && s.LockedUntil.After(now) {
				return s
			}
			s.FailedAttempts++
			if s.FailedAttempts >= e.maxAttempts {
				s.LockedUntil = now.Add(e.duration)
			}
			return s
		})
		if err != nil {
			return Decision{}, err
		}
		decision = e.decide(state, now)
	}

	if err := e.store.AppendAudit(ctx, account.AuditFact{
		AccountID:   accountID,
		Success:     success,
		ClientIP:    clientIP,
		ClientAgent: clientAgent,
		CreatedAt:   now,
	}); err != nil {
		return Decision{}, err
	}
	return decision, nil
}
