package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// CredentialStore is the persistence the session manager depends on.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error

	// SetRenewalVerifier stores verifier as the live renewal verifier.
	// An empty verifier clears it.
	SetRenewalVerifier(ctx context.Context, id, verifier string) error

	// SwapRenewalVerifier replaces current with next only if current is
	// still the stored value. Otherwise it returns ErrStaleVerifier.
	SwapRenewalVerifier(ctx context.Context, id, current, next string) error

	// SetPasswordVerifier replaces the password verifier and clears the
	// renewal verifier in the same write.
	SetPasswordVerifier(ctx context.Context, id, verifier string) error
}

// AccountRepository adds the administrative operations to CredentialStore.
type AccountRepository interface {
	CredentialStore
	List(ctx context.Context) ([]Profile, error)

	// Update applies the non-nil fields of u. A role change or a
	// deactivation also clears the renewal verifier.
	Update(ctx context.Context, id string, u AccountUpdate) (*Account, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const accountColumns = "id, email, first_name, last_name, password_hash, refresh_token_hash, role, is_active, created_at, updated_at"

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

// Create inserts a new account. The ID is generated if empty and the
// timestamps are set to now.
func (r *SQLiteAccountRepository) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = RoleUser
	}

	now, nowText := timestamp()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		nullString(a.RefreshTokenHash), string(a.Role), boolToInt(a.IsActive),
		nowText, nowText,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// FindByID retrieves an account by its ID.
func (r *SQLiteAccountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

// FindByEmail retrieves an account by exact email match.
func (r *SQLiteAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
}

// List returns every account's profile, oldest first.
func (r *SQLiteAccountRepository) List(ctx context.Context) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at ASC, email ASC")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, a.Profile())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return profiles, nil
}

// SetRenewalVerifier stores or clears the renewal verifier.
func (r *SQLiteAccountRepository) SetRenewalVerifier(ctx context.Context, id, verifier string) error {
	_, nowText := timestamp()

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = ?, updated_at = ? WHERE id = ?`,
		nullString(verifier), nowText, id,
	)
	if err != nil {
		return fmt.Errorf("setting renewal verifier: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

// SwapRenewalVerifier replaces the renewal verifier only if it still equals current.
func (r *SQLiteAccountRepository) SwapRenewalVerifier(ctx context.Context, id, current, next string) error {
	_, nowText := timestamp()

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = ?, updated_at = ?
		 WHERE id = ? AND refresh_token_hash = ?`,
		nullString(next), nowText, id, current,
	)
	if err != nil {
		return fmt.Errorf("swapping renewal verifier: %w", err)
	}
	return requireRow(result, ErrStaleVerifier)
}

// SetPasswordVerifier changes the password verifier and ends any live session.
func (r *SQLiteAccountRepository) SetPasswordVerifier(ctx context.Context, id, verifier string) error {
	_, nowText := timestamp()

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, refresh_token_hash = NULL, updated_at = ? WHERE id = ?`,
		verifier, nowText, id,
	)
	if err != nil {
		return fmt.Errorf("setting password verifier: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

// Update modifies an account's profile fields, role and active flag.
func (r *SQLiteAccountRepository) Update(ctx context.Context, id string, u AccountUpdate) (*Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning account update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	a, err := scanAccount(tx.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	revoke := u.RevokesSession(a)
	applyUpdate(a, u)
	if revoke {
		a.RefreshTokenHash = ""
	}

	now, nowText := timestamp()
	a.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET first_name = ?, last_name = ?, role = ?, is_active = ?,
		 refresh_token_hash = ?, updated_at = ? WHERE id = ?`,
		a.FirstName, a.LastName, string(a.Role), boolToInt(a.IsActive),
		nullString(a.RefreshTokenHash), nowText, id,
	); err != nil {
		return nil, fmt.Errorf("updating account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing account update: %w", err)
	}
	return a, nil
}

// Delete removes an account by ID.
func (r *SQLiteAccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

// Count returns the total number of accounts.
func (r *SQLiteAccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

func (r *SQLiteAccountRepository) getAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanAccount scans an account from any scanner (Row or Rows).
func scanAccount(s scanner) (*Account, error) {
	var a Account
	var refresh sql.NullString
	var role string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName,
		&a.PasswordHash, &refresh, &role, &isActive,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.Role = Role(role)
	a.IsActive = isActive != 0
	a.RefreshTokenHash = refresh.String

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &a, nil
}

// applyUpdate copies the non-nil fields of u onto a.
func applyUpdate(a *Account, u AccountUpdate) {
	if u.FirstName != nil {
		a.FirstName = strings.TrimSpace(*u.FirstName)
	}
	if u.LastName != nil {
		a.LastName = strings.TrimSpace(*u.LastName)
	}
	if u.Role != nil {
		a.Role = *u.Role
	}
	if u.IsActive != nil {
		a.IsActive = *u.IsActive
	}
}

// timestamp returns now truncated to the second, and its stored text form.
func timestamp() (time.Time, string) {
	now := time.Now().UTC().Truncate(time.Second)
	return now, now.Format(time.RFC3339)
}

func requireRow(result sql.Result, notFound error) error {
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite and pgx
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
