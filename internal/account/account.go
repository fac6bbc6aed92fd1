// Package account defines the durable account store consumed by the
// authentication core: account records, lockout state, and the append-only
// audit log.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrUnavailable wraps any underlying persistence failure. Callers must
	// treat it as a server fault, never as invalid credentials or a lockout.
	ErrUnavailable = errors.New("account store unavailable")
)

// Account is a durable account record. Lockout fields are mutated only
// through AtomicUpdateLockout and ResetLockout.
type Account struct {
	ID             string
	TenantID       string
	Username       string
	Email          string
	PasswordHash   string
	IsAdmin        bool
	Active         bool
	FailedAttempts int
	LockedUntil    time.Time // zero when not locked
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LockoutState is the slice of an account the lockout engine operates on.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// AuditFact is one immutable record of an authentication attempt.
// Facts are write-once: the core appends them and never reads them back.
type AuditFact struct {
	ID          string
	AccountID   string
	Success     bool
	ClientIP    string
	ClientAgent string
	CreatedAt   time.Time
}

// Store is the durable-state collaborator behind the authentication core.
//
// AtomicUpdateLockout runs mutate inside a single write transaction scoped to
// one account: the state passed to mutate is the committed state at the time
// the transaction holds the write lock, and the returned state is persisted
// before any concurrent attempt for the same account can observe it. This is
// the check-then-act critical section for login failure counting.
type Store interface {
	FindAccount(ctx context.Context, tenantID, identifier string) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	AtomicUpdateLockout(ctx context.Context, accountID string, mutate func(LockoutState) LockoutState) (LockoutState, error)
	ResetLockout(ctx context.Context, accountID string) error
	AppendAudit(ctx context.Context, fact AuditFact) error
	CreateAccount(ctx context.Context, acc *Account) error
	SetActive(ctx context.Context, accountID string, active bool) error
	Close() error
}
