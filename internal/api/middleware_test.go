package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/metrics"
)

func TestParseAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    []string
		wantErr bool
	}{
		{name: "empty", entries: nil, want: []string{}},
		{name: "bare ipv4", entries: []string{"10.0.0.1"}, want: []string{"10.0.0.1/32"}},
		{name: "bare ipv6", entries: []string{"::1"}, want: []string{"::1/128"}},
		{name: "cidr is masked", entries: []string{"192.168.1.77/24"}, want: []string{"192.168.1.0/24"}},
		{name: "blank entries skipped", entries: []string{" ", "10.0.0.1 "}, want: []string{"10.0.0.1/32"}},
		{name: "invalid ip", entries: []string{"10.0.0"}, wantErr: true},
		{name: "invalid cidr", entries: []string{"10.0.0.0/40"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAllowlist(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAllowlist() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseAllowlist() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("prefix[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNew_RejectsBadAllowlist(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := New(Deps{
		Config:   config.APIConfig{IPAllowlist: []string{"not-an-ip"}},
		Logger:   env.srv.logger,
		Sessions: env.sessions,
		Accounts: env.accounts,
		Gate:     env.srv.gate,
	})
	if err == nil {
		t.Error("New() expected error for malformed allow-list")
	}
}

func TestIPAllowlist(t *testing.T) {
	allowlist := []string{"10.0.0.0/8", "2001:db8::1"}

	tests := []struct {
		name       string
		mode       string
		remoteAddr string
		want       int
	}{
		{"prod allowed cidr", config.ModeProd, "10.20.30.40:5555", http.StatusOK},
		{"prod allowed ipv6", config.ModeProd, "[2001:db8::1]:5555", http.StatusOK},
		{"prod mapped ipv4", config.ModeProd, "[::ffff:10.1.1.1]:5555", http.StatusOK},
		{"prod rejected", config.ModeProd, "192.0.2.1:1234", http.StatusForbidden},
		{"dev ignores list", config.ModeDev, "192.0.2.1:1234", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) {
				d.Config.Mode = tt.mode
				d.Config.IPAllowlist = allowlist
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			req.RemoteAddr = tt.remoteAddr
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				assertError(t, w, http.StatusForbidden, ErrCodeForbidden)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if id := w.Header().Get("X-Request-ID"); len(id) != 26 {
		t.Errorf("generated X-Request-ID = %q, want a 26-character ULID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); id != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", id)
	}

	for _, bad := range []string{strings.Repeat("x", maxRequestIDLen+1), "has space", "line\nbreak"} {
		req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.Header.Set("X-Request-ID", bad)
		w = httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		if id := w.Header().Get("X-Request-ID"); id == bad || len(id) != 26 {
			t.Errorf("X-Request-ID for %q = %q, want a fresh ULID", bad, id)
		}
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"https://admin.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("Allow-Methods = %q, want PATCH included", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want empty", got)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t, nil)

	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assertError(t, w, http.StatusInternalServerError, ErrCodeInternal)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assertError(t, w, http.StatusNotFound, ErrCodeNotFound)

	w = env.do(t, http.MethodGet, "/api/v1/auth/login", "", nil)
	assertError(t, w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t, nil)

		w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		body := decode[map[string]any](t, w)
		if body["status"] != "ok" || body["version"] != "test" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("failing dependency", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.Checks["mqtt"] = func(context.Context) error { return errors.New("not connected") }
		})

		w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		body := decode[struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}](t, w)
		if body.Status != "degraded" || body.Checks["mqtt"] != "unhealthy" || body.Checks["database"] != "ok" {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestPrometheusEndpoint(t *testing.T) {
	prom := metrics.New()
	prom.ObserveSessionEvent("login", "success")

	env := newTestEnv(t, func(d *Deps) {
		d.Prom = prom
		d.Metrics = config.MetricsConfig{Enabled: true}
	})

	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "graylogic_auth_session_events_total") {
		t.Error("metrics output missing session events counter")
	}

	disabled := newTestEnv(t, func(d *Deps) { d.Prom = prom })
	w = disabled.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("disabled metrics status = %d, want 404", w.Code)
	}
}

func TestSystemMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.adminSession(t)

	w := env.do(t, http.MethodGet, "/api/v1/system/metrics", admin.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Accounts.Total != 1 || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
}
