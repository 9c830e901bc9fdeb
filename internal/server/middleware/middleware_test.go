package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/service"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	respID := rr.Header().Get("X-Request-ID")
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := GetRequestID(r.Context()); id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, got)
	}
}

func TestRequestIDReplacesOversizedClientID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", maxClientRequestID+1))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("expected a generated ID, got %q", got)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Auth middleware tests
// ---------------------------------------------------------------------------

// fakeGuard answers every check with a fixed result and records what it
// was asked.
type fakeGuard struct {
	acct *model.Account
	err  error
	got  string
}

func (g *fakeGuard) AuthenticatedUser(_ context.Context, token string) (*model.Account, error) {
	g.got = token
	return g.acct, g.err
}

func (g *fakeGuard) AdminRequired(_ context.Context, token string) (*model.Account, error) {
	g.got = token
	return g.acct, g.err
}

func (g *fakeGuard) AuthenticatedAdminSession(_ context.Context, cookie string) (*model.Account, error) {
	g.got = cookie
	return g.acct, g.err
}

func echoAccount(w http.ResponseWriter, r *http.Request) {
	acct := GetAccount(r.Context())
	if acct == nil {
		http.Error(w, "no account", http.StatusTeapot)
		return
	}
	w.Write([]byte(acct.Email))
}

func TestRequireUserPassesAccount(t *testing.T) {
	g := &fakeGuard{acct: &model.Account{ID: 1, Email: "a@example.com"}}
	h := RequireUser(g)(http.HandlerFunc(echoAccount))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "a@example.com" {
		t.Errorf("got %d %q", rr.Code, rr.Body.String())
	}
	if g.got != "abc.def.ghi" {
		t.Errorf("guard saw token %q", g.got)
	}
}

func TestBearerRejections(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		err     error
		status  int
		message string
	}{
		{"missing header", "", nil, http.StatusUnauthorized, "Authentication required. Provide a Bearer token."},
		{"wrong scheme", "Basic dXNlcjpwYXNz", nil, http.StatusUnauthorized, "Authentication required. Provide a Bearer token."},
		{"empty token", "Bearer   ", nil, http.StatusUnauthorized, "Authentication required. Provide a Bearer token."},
		{"expired", "Bearer t", service.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"invalid", "Bearer t", service.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"inactive account", "Bearer t", service.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{"not admin", "Bearer t", service.ErrForbidden, http.StatusForbidden, "Admin access required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGuard{err: tt.err}
			h := RequireAdmin(g)(http.HandlerFunc(echoAccount))

			req := httptest.NewRequest("GET", "/api/admin/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			var resp model.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Message != tt.message {
				t.Errorf("message = %q, want %q", resp.Error.Message, tt.message)
			}
			hasChallenge := rr.Header().Get("WWW-Authenticate") != ""
			if hasChallenge != (tt.status == http.StatusUnauthorized) {
				t.Errorf("WWW-Authenticate present = %v on %d", hasChallenge, tt.status)
			}
		})
	}
}

func TestRequireAdminSession(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		err      error
		status   int
		location string
	}{
		{"unauthenticated page view redirects", "GET", service.ErrUnauthorized, http.StatusFound, LoginPath},
		{"unauthenticated post is 401", "POST", service.ErrUnauthorized, http.StatusUnauthorized, ""},
		{"non-admin page view is 403", "GET", service.ErrForbidden, http.StatusForbidden, ""},
		{"admin passes", "GET", nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGuard{err: tt.err}
			if tt.err == nil {
				g.acct = &model.Account{ID: 1, Email: "admin@example.com", IsAdmin: true}
			}
			h := RequireAdminSession(g)(http.HandlerFunc(echoAccount))

			req := httptest.NewRequest(tt.method, "/admin/users", nil)
			req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: "cookie-value"})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if got := rr.Header().Get("Location"); got != tt.location {
				t.Errorf("Location = %q, want %q", got, tt.location)
			}
			if g.got != "cookie-value" {
				t.Errorf("guard saw cookie %q", g.got)
			}
		})
	}
}

func TestGetAccountWithoutValue(t *testing.T) {
	if GetAccount(context.Background()) != nil {
		t.Error("expected nil account from bare context")
	}
}

// ---------------------------------------------------------------------------
// Rate limit and logging tests
// ---------------------------------------------------------------------------

func TestLoginRateLimit(t *testing.T) {
	h := LoginRateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("POST", "/api/login", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("POST", "/api/login", nil))

	if first.Code != http.StatusOK {
		t.Errorf("first status = %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
}

func TestLoginRateLimitKeysOnRemoteAddr(t *testing.T) {
	h := LoginRateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("POST", "/api/login", nil)
		req.Header.Set("X-Forwarded-For", ip)
		req.Header.Set("X-Real-IP", ip)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Errorf("request from %s: status = %d, want %d", ip, rr.Code, want)
		}
	}
}

func TestLoginRateLimitDisabled(t *testing.T) {
	h := LoginRateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/login", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rr.Code)
		}
	}
}

func TestLoggerNeverLogsCredentials(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Post("/admin/users/{id}/password", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusFound)
	})

	req := httptest.NewRequest("POST", "/admin/users/7/password", strings.NewReader("nova_senha=hunter2"))
	req.Header.Set("Authorization", "Bearer secret-token")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "secret-token") {
		t.Errorf("credentials leaked into log: %s", out)
	}
	if !strings.Contains(out, "route=/admin/users/{id}/password") || !strings.Contains(out, "status=302") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestRoutePatternUnmatched(t *testing.T) {
	if got := RoutePattern(httptest.NewRequest("GET", "/", nil)); got != "unmatched" {
		t.Errorf("RoutePattern = %q", got)
	}
}
