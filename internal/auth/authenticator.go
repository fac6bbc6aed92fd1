// Package auth orchestrates credential verification, lockout and session
// issuance, and guards protected routes.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/time-ledger/internal/account"
	"github.com/yourusername/time-ledger/internal/lockout"
	"github.com/yourusername/time-ledger/internal/session"
)

var (
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords
	// so responses cannot be used for username enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned for inactive accounts.
	ErrAccountDisabled = errors.New("account disabled")
)

// CredentialsError is an invalid-credentials failure that carries the
// attempts remaining before lockout. errors.Is matches ErrInvalidCredentials.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string { return ErrInvalidCredentials.Error() }

// Is reports that a CredentialsError matches ErrInvalidCredentials.
func (e *CredentialsError) Is(target error) bool { return target == ErrInvalidCredentials }

// LockedOutError is returned while an account's lockout window is open.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

// Authenticator produces login decisions from the account store, the lockout
// engine and the password hash check.
type Authenticator struct {
	store   account.Store
	lockout *lockout.Engine
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(store account.Store, engine *lockout.Engine) *Authenticator {
	return &Authenticator{store: store, lockout: engine}
}

// Login verifies the credentials for identifier (username or email) within a
// tenant and returns the session payload to seal on success.
//
// The lockout check runs before the hash verification so a locked account
// costs no hashing work and mutates no counters. Store failures surface as
// account.ErrUnavailable and are never folded into invalid credentials or a
// lockout: an infrastructure fault fails closed, not punitively.
func (a *Authenticator) Login(ctx context.Context, tenantID, identifier, password, clientIP, clientAgent string) (*session.Payload, error) {
	acc, err := a.store.FindAccount(ctx, tenantID, identifier)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !acc.Active {
		return nil, ErrAccountDisabled
	}

	decision, err := a.lockout.Evaluate(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &LockedOutError{RetryAfter: decision.RetryAfter}
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		recorded, err := a.lockout.RecordAttempt(ctx, acc.ID, false, clientIP, clientAgent)
		if err != nil {
			return nil, err
		}
		if !recorded.Allowed {
			return nil, &LockedOutError{RetryAfter: recorded.RetryAfter}
		}
		return nil, &CredentialsError{AttemptsRemaining: recorded.AttemptsRemaining}
	}

	if _, err := a.lockout.RecordAttempt(ctx, acc.ID, true, clientIP, clientAgent); err != nil {
		return nil, err
	}

	csrf, err := generateToken()
	if err != nil {
		return nil, err
	}

	return &session.Payload{
		UserID:    acc.ID,
		Username:  acc.Username,
		TenantID:  acc.TenantID,
		IsAdmin:   acc.IsAdmin,
		CSRFToken: csrf,
	}, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
