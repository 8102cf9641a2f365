// Package postgres provides a PostgreSQL-backed auth.AccountRepository for
// deployments that share one credential database across several instances.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const accountColumns = "id, email, first_name, last_name, password_hash, refresh_token_hash, role, is_active, created_at, updated_at"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements auth.AccountRepository on PostgreSQL.
type Store struct {
	db DBTX
}

var _ auth.AccountRepository = (*Store)(nil)

// NewStore creates a Store.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Create inserts a new account, filling in ID and timestamps.
func (s *Store) Create(ctx context.Context, a *auth.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = auth.RoleUser
	}

	query := `INSERT INTO accounts (id, email, first_name, last_name, password_hash, refresh_token_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		a.ID, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		nullString(a.RefreshTokenHash), string(a.Role), a.IsActive,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailExists
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// FindByID retrieves an account by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// FindByEmail retrieves an account by exact email match.
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

// SetRenewalVerifier stores or clears the renewal verifier.
func (s *Store) SetRenewalVerifier(ctx context.Context, id, verifier string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = $2, updated_at = now() WHERE id = $1`,
		id, nullString(verifier))
	if err != nil {
		return fmt.Errorf("setting renewal verifier: %w", err)
	}
	return requireRow(result, auth.ErrAccountNotFound)
}

// SwapRenewalVerifier replaces the renewal verifier only if it still equals current.
func (s *Store) SwapRenewalVerifier(ctx context.Context, id, current, next string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = $3, updated_at = now()
		 WHERE id = $1 AND refresh_token_hash = $2`,
		id, current, nullString(next))
	if err != nil {
		return fmt.Errorf("swapping renewal verifier: %w", err)
	}
	return requireRow(result, auth.ErrStaleVerifier)
}

// SetPasswordVerifier changes the password verifier and ends any live session.
func (s *Store) SetPasswordVerifier(ctx context.Context, id, verifier string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, refresh_token_hash = NULL, updated_at = now() WHERE id = $1`,
		id, verifier)
	if err != nil {
		return fmt.Errorf("setting password verifier: %w", err)
	}
	return requireRow(result, auth.ErrAccountNotFound)
}

// Update applies u in one statement. SET expressions read the old row, so
// the CASE compares the requested role against the stored one.
func (s *Store) Update(ctx context.Context, id string, u auth.AccountUpdate) (*auth.Account, error) {
	query := `UPDATE accounts SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			refresh_token_hash = CASE
				WHEN $5::boolean IS NOT NULL AND NOT $5::boolean THEN NULL
				WHEN $4::text IS NOT NULL AND $4::text <> role THEN NULL
				ELSE refresh_token_hash
			END,
			role = COALESCE($4, role),
			is_active = COALESCE($5, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + accountColumns

	var role sql.NullString
	if u.Role != nil {
		role = sql.NullString{String: string(*u.Role), Valid: true}
	}
	var active sql.NullBool
	if u.IsActive != nil {
		active = sql.NullBool{Bool: *u.IsActive, Valid: true}
	}

	return scanAccount(s.db.QueryRowContext(ctx, query,
		id, nullStringPtr(u.FirstName), nullStringPtr(u.LastName), role, active))
}

// List returns every account's profile, oldest first.
func (s *Store) List(ctx context.Context) ([]auth.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC, email ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	profiles := []auth.Profile{}
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

// Delete removes an account.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return requireRow(result, auth.ErrAccountNotFound)
}

// Count returns the number of accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*auth.Account, error) {
	var a auth.Account
	var refresh sql.NullString
	var role string
	var createdAt, updatedAt time.Time

	err := s.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName,
		&a.PasswordHash, &refresh, &role, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.RefreshTokenHash = refresh.String
	a.Role = auth.Role(role)
	a.CreatedAt = createdAt.UTC()
	a.UpdatedAt = updatedAt.UTC()
	return &a, nil
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
