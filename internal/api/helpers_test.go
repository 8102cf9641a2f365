package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/gray-logic-auth/internal/audit"
	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-auth/migrations"
)

const (
	testPassword = "pw123456"
	adminEmail   = "admin@example.com"
)

// testEnv is a Server wired to a migrated SQLite database.
type testEnv struct {
	srv      *Server
	handler  http.Handler
	db       *database.DB
	accounts *auth.SQLiteAccountRepository
	sessions *auth.SessionManager
	audit    *audit.SQLRepository
	events   *eventLog
}

// eventLog records every published event and mirrors it into the audit table.
type eventLog struct {
	mu     sync.Mutex
	events []auth.SessionEvent
	repo   audit.Repository
}

func (l *eventLog) Publish(ev auth.SessionEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	if l.repo != nil {
		l.repo.Create(context.Background(), audit.FromEvent(ev)) //nolint:errcheck // test sink
	}
}

func (l *eventLog) count(t auth.EventType, outcome string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t && ev.Outcome == outcome {
			n++
		}
	}
	return n
}

func (l *eventLog) last() auth.SessionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return auth.SessionEvent{}
	}
	return l.events[len(l.events)-1]
}

// newTestEnv builds a server. mutate, if non-nil, adjusts the deps before New.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.SQLite()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")

	accounts := auth.NewAccountRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	events := &eventLog{repo: auditRepo}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  "test-access-secret-at-least-32-characters",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "test-refresh-secret-at-least-32-characters",
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}

	sessions, err := auth.NewSessionManager(auth.SessionDeps{
		Store:  accounts,
		Hasher: auth.NewHasher(auth.HasherConfig{Cost: bcrypt.MinCost}),
		Issuer: issuer,
		Events: events,
		Logger: log.Logger,
	})
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}

	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Mode: config.ModeDev,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Sessions: sessions,
		Accounts: accounts,
		Gate:     auth.NewGate(issuer),
		Audit:    auditRepo,
		Events:   events,
		Checks:   map[string]HealthCheck{"database": db.HealthCheck},
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	if srv.hub == nil {
		srv.hub = NewHub(srv.wsCfg, log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testEnv{
		srv:      srv,
		handler:  srv.buildRouter(),
		db:       db,
		accounts: accounts,
		sessions: sessions,
		audit:    auditRepo,
		events:   events,
	}
}

// do sends a request through the router. body is JSON-encoded when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// register signs up a user through the API and returns the response.
func (e *testEnv) register(t *testing.T, email string) sessionResponse {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":     email,
		"password":  testPassword,
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: status = %d, body = %s", email, w.Code, w.Body.String())
	}
	return decode[sessionResponse](t, w)
}

// adminSession creates an admin account and logs it in.
func (e *testEnv) adminSession(t *testing.T) sessionResponse {
	t.Helper()

	if _, err := e.sessions.CreateAccount(context.Background(), auth.Registration{
		Email:     adminEmail,
		Password:  testPassword,
		FirstName: "Grace",
		LastName:  "Hopper",
		Role:      auth.RoleAdmin,
	}); err != nil {
		t.Fatalf("CreateAccount(admin) error: %v", err)
	}

	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: adminEmail, Password: testPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login: status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[sessionResponse](t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	got := decode[Error](t, w)
	if got.Code != code || got.Status != status {
		t.Errorf("error = %+v, want status %d code %q", got, status, code)
	}
}
