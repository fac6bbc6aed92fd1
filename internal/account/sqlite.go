package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
// Write transactions take the lock immediately so the lockout critical
// section serializes instead of failing on a deferred lock upgrade.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin migrations: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			username        TEXT NOT NULL,
			email           TEXT NOT NULL,
			password_hash   TEXT NOT NULL,
			is_admin        INTEGER NOT NULL DEFAULT 0,
			active          INTEGER NOT NULL DEFAULT 1,
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until    INTEGER,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			UNIQUE (tenant_id, username),
			UNIQUE (tenant_id, email)
		)`); err != nil {
		return fmt.Errorf("%w: create accounts table: %v", ErrUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS auth_audit (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			success      INTEGER NOT NULL,
			client_ip    TEXT NOT NULL,
			client_agent TEXT NOT NULL,
			created_at   INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("%w: create auth_audit table: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migrations: %v", ErrUnavailable, err)
	}
	return nil
}

const accountColumns = `id, tenant_id, username, email, password_hash,
	is_admin, active, failed_attempts, locked_until, created_at, updated_at`

// FindAccount looks up an account by username or email within a tenant.
// The match is exact; normalization policy belongs to the caller.
func (s *SQLiteStore) FindAccount(ctx context.Context, tenantID, identifier string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tenant_id = ? AND (username = ? OR email = ?)`,
		tenantID, identifier, identifier)
	return scanAccount(row)
}

// GetAccount looks up an account by id.
func (s *SQLiteStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE id = ?`, accountID)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*Account, error) {
	var acc Account
	var lockedUntil sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&acc.ID, &acc.TenantID, &acc.Username, &acc.Email,
		&acc.PasswordHash, &acc.IsAdmin, &acc.Active, &acc.FailedAttempts,
		&lockedUntil, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan account: %v", ErrUnavailable, err)
	}
	if lockedUntil.Valid {
		acc.LockedUntil = time.Unix(lockedUntil.Int64, 0)
	}
	acc.CreatedAt = time.Unix(createdAt, 0)
	acc.UpdatedAt = time.Unix(updatedAt, 0)
	return &acc, nil
}

// AtomicUpdateLockout applies mutate to the account's lockout state inside a
// single immediate write transaction and returns the persisted result.
func (s *SQLiteStore) AtomicUpdateLockout(ctx context.Context, accountID string, mutate func(LockoutState) LockoutState) (LockoutState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: begin lockout update: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	var state LockoutState
	var lockedUntil sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until FROM accounts WHERE id = ?`,
		accountID).Scan(&state.FailedAttempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return LockoutState{}, ErrNotFound
	}
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: read lockout state: %v", ErrUnavailable, err)
	}
	if lockedUntil.Valid {
		state.LockedUntil = time.Unix(lockedUntil.Int64, 0)
	}

	next := mutate(state)

	var nextLocked sql.NullInt64
	if !next.LockedUntil.IsZero() {
		nextLocked = sql.NullInt64{Int64: next.LockedUntil.Unix(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = ?, locked_until = ?, updated_at = ?
		WHERE id = ?`,
		next.FailedAttempts, nextLocked, time.Now().Unix(), accountID); err != nil {
		return LockoutState{}, fmt.Errorf("%w: write lockout state: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return LockoutState{}, fmt.Errorf("%w: commit lockout update: %v", ErrUnavailable, err)
	}
	return next, nil
}

// ResetLockout clears the failure counter and lockout timestamp.
func (s *SQLiteStore) ResetLockout(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`, time.Now().Unix(), accountID)
	if err != nil {
		return fmt.Errorf("%w: reset lockout: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAudit inserts one immutable audit fact. Facts are never updated or
// deleted; there is no corresponding read path in this core.
func (s *SQLiteStore) AppendAudit(ctx context.Context, fact AuditFact) error {
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_audit (id, account_id, success, client_ip, client_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.AccountID, fact.Success, fact.ClientIP, fact.ClientAgent,
		fact.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: append audit: %v", ErrUnavailable, err)
	}
	return nil
}

// CreateAccount inserts a new account record. The account lifecycle is
// otherwise managed outside this core.
func (s *SQLiteStore) CreateAccount(ctx context.Context, acc *Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, tenant_id, username, email, password_hash,
			is_admin, active, failed_attempts, locked_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		acc.ID, acc.TenantID, acc.Username, acc.Email, acc.PasswordHash,
		acc.IsAdmin, acc.Active, acc.CreatedAt.Unix(), acc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: create account: %v", ErrUnavailable, err)
	}
	return nil
}

// SetActive flips the account's active flag. Deactivation takes effect on the
// next login; outstanding sessions last until their TTL by design.
func (s *SQLiteStore) SetActive(ctx context.Context, accountID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().Unix(), accountID)
	if err != nil {
		return fmt.Errorf("%w: set active: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
