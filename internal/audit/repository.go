// Package audit stores session and account events in the audit_logs table
// and serves them back to administrators.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

// Dialect selects the SQL placeholder style.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses $n placeholders.
	DialectPostgres
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	AccountID  string         `json:"account_id,omitempty"`
	Email      string         `json:"email,omitempty"`
	Outcome    string         `json:"outcome"`
	RemoteAddr string         `json:"remote_addr,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// FromEvent converts a session event into an audit entry.
func FromEvent(ev auth.SessionEvent) *AuditLog {
	log := &AuditLog{
		Action:     string(ev.Type),
		AccountID:  ev.AccountID,
		Email:      ev.Email,
		Outcome:    ev.Outcome,
		RemoteAddr: ev.RemoteAddr,
		CreatedAt:  ev.At,
	}
	if ev.Reason != "" || ev.Role != "" {
		log.Details = map[string]any{}
		if ev.Reason != "" {
			log.Details["reason"] = ev.Reason
		}
		if ev.Role != "" {
			log.Details["role"] = string(ev.Role)
		}
	}
	return log
}

// Filter controls which audit logs to return.
type Filter struct {
	Action    string // optional: login, refreshed, logout, ...
	AccountID string // optional
	Outcome   string // optional: success or failure
	Limit     int    // default 50, max 200
	Offset    int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository reads and writes audit logs through database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRepository creates an audit log repository for the given dialect.
func NewRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// NewSQLiteRepository creates an audit log repository backed by SQLite.
func NewSQLiteRepository(db *sql.DB) *SQLRepository {
	return NewRepository(db, DialectSQLite)
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx, r.rebind(
		"INSERT INTO audit_logs ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		log.ID, log.Action,
		nullableString(log.AccountID), nullableString(log.Email),
		log.Outcome, nullableString(log.RemoteAddr), detailsJSON,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalised clamps the page window into range.
func (f Filter) normalised() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// where renders the filter as a WHERE clause with ? placeholders.
func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, c := range []struct{ column, value string }{
		{"action", f.Action},
		{"account_id", f.AccountID},
		{"outcome", f.Outcome},
	} {
		if c.value == "" {
			continue
		}
		clauses = append(clauses, c.column+" = ?")
		args = append(args, c.value)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const auditColumns = "id, action, account_id, email, outcome, remote_addr, details, created_at"

// List returns audit logs matching the filter, newest first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.normalised()
	where, args := filter.where()

	var total int
	if err := r.db.QueryRowContext(ctx, r.rebind("SELECT COUNT(*) FROM audit_logs"+where), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT " + auditColumns + " FROM audit_logs" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, r.rebind(query), append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Logs: []AuditLog{}, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		result.Logs = append(result.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return result, nil
}

// scanAuditLog reads one row selected with auditColumns. Undecodable
// details are dropped rather than failing the page.
func scanAuditLog(rows *sql.Rows) (AuditLog, error) {
	var (
		entry                             AuditLog
		accountID, email, remote, details sql.NullString
		createdAt                         string
	)
	if err := rows.Scan(&entry.ID, &entry.Action, &accountID, &email,
		&entry.Outcome, &remote, &details, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}
	entry.AccountID = accountID.String
	entry.Email = email.String
	entry.RemoteAddr = remote.String
	if details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			entry.Details = nil
		}
	}

	at, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = at
	return entry, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
