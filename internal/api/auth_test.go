package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("returns account user and tokens", func(t *testing.T) {
		resp := env.register(t, "ada@example.com")

		if resp.Account.ID == "" || resp.Account.ID != resp.User.ID {
			t.Errorf("account id %q, user id %q, want equal and non-empty", resp.Account.ID, resp.User.ID)
		}
		if resp.Account.Role != auth.RoleUser {
			t.Errorf("role = %q, want %q", resp.Account.Role, auth.RoleUser)
		}
		if resp.AccessToken == "" || resp.RefreshToken == "" {
			t.Error("expected both tokens in response")
		}
	})

	t.Run("ignores requested role", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
			"email":     "mallory@example.com",
			"password":  testPassword,
			"firstName": "Mal",
			"lastName":  "Lory",
			"role":      "admin",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		if got := decode[sessionResponse](t, w).Account.Role; got != auth.RoleUser {
			t.Errorf("role = %q, want %q", got, auth.RoleUser)
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
			"email":     "ada@example.com",
			"password":  testPassword,
			"firstName": "Ada",
			"lastName":  "Again",
		})
		assertError(t, w, http.StatusConflict, ErrCodeConflict)
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name string
			body map[string]any
		}{
			{"bad email", map[string]any{"email": "nope", "password": testPassword, "firstName": "Ab", "lastName": "Cd"}},
			{"short password", map[string]any{"email": "x@example.com", "password": "12345", "firstName": "Ab", "lastName": "Cd"}},
			{"short name", map[string]any{"email": "y@example.com", "password": testPassword, "firstName": "A", "lastName": "Cd"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
				assertError(t, w, http.StatusBadRequest, ErrCodeValidation)
			})
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", "not an object")
		assertError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "ada@example.com")

	t.Run("valid credentials", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "ada@example.com", Password: testPassword})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		resp := decode[sessionResponse](t, w)
		if resp.User.Email != "ada@example.com" {
			t.Errorf("user.email = %q", resp.User.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "ada@example.com", Password: "wrong-password"})
		assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
	})

	t.Run("unknown email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "nobody@example.com", Password: testPassword})
		assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "ada@example.com"})
		assertError(t, w, http.StatusBadRequest, ErrCodeValidation)
	})

	if n := env.events.count(auth.EventLogin, auth.OutcomeFailure); n != 2 {
		t.Errorf("failed login events = %d, want 2", n)
	}
}

func TestRefresh_RotatesRenewalToken(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.register(t, "ada@example.com")

	w := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", w.Code, w.Body.String())
	}
	rotated := decode[auth.TokenPair](t, w)
	if rotated.RefreshToken == "" || rotated.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new renewal token")
	}

	// The superseded token no longer works.
	w = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	// The new one does.
	w = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: rotated.RefreshToken})
	if w.Code != http.StatusOK {
		t.Errorf("second refresh status = %d, want 200", w.Code)
	}
}

func TestRefresh_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.register(t, "ada@example.com")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"access token", resp.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: tt.token})
			assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.register(t, "ada@example.com")

	w := env.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", resp.AccessToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: resp.RefreshToken})
	assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	// Logout is idempotent.
	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", resp.AccessToken, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("second logout status = %d, want 204", w.Code)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.register(t, "ada@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/auth/me", resp.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	profile := decode[auth.Profile](t, w)
	if profile.ID != resp.Account.ID || profile.FirstName != "Ada" {
		t.Errorf("profile = %+v", profile)
	}

	w = env.do(t, http.MethodGet, "/api/v1/auth/me", "tampered."+resp.AccessToken, nil)
	assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestSessionEventsCarryRemoteAddr(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "ada@example.com")

	ev := env.events.last()
	if ev.Type != auth.EventRegistered {
		t.Fatalf("last event = %q, want %q", ev.Type, auth.EventRegistered)
	}
	// httptest.NewRequest uses 192.0.2.1:1234.
	if ev.RemoteAddr != "192.0.2.1" {
		t.Errorf("RemoteAddr = %q, want 192.0.2.1", ev.RemoteAddr)
	}
}
