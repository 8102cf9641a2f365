package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testPassword is the password of every account created by seedTestAccount.
const testPassword = "pw123456"

// testDB creates a temporary SQLite database with the accounts schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	dbPath := filepath.Join(t.TempDir(), "auth-test.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			refresh_token_hash TEXT,
			role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying accounts schema: %v", err)
	}

	return db
}

// seedTestAccount inserts an active account with testPassword and returns it.
func seedTestAccount(t *testing.T, db *sql.DB, email string, role Role) *Account {
	t.Helper()

	hash, err := testHasher().Hash(context.Background(), testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	account := &Account{
		Email:        email,
		FirstName:    "Test",
		LastName:     "Account",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := NewAccountRepository(db).Create(t.Context(), account); err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	return account
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (s *recordingSink) Publish(ev SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) last() SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return SessionEvent{}
	}
	return s.events[len(s.events)-1]
}

func (s *recordingSink) count(t EventType, outcome string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t && ev.Outcome == outcome {
			n++
		}
	}
	return n
}
