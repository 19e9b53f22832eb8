package tenantkit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tenantkit/tenantkit/csrf"
	"github.com/tenantkit/tenantkit/provider"
	"github.com/tenantkit/tenantkit/security"
	"github.com/tenantkit/tenantkit/session"
	"github.com/tenantkit/tenantkit/session/memory"
)

func newTestHandler(t *testing.T, fake *fakeProvider) (*Handler, *memory.Store) {
	t.Helper()

	svc := newTestService(t, testConfig())
	svc.client = fake

	store := memory.New(memory.Config{})
	t.Cleanup(store.Close)

	h, err := NewHandler(HandlerConfig{
		Service:  svc,
		Sessions: store,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return h, store
}

// seedSession writes claims into the store and returns the session cookie.
func seedSession(t *testing.T, store *memory.Store, claims *session.Claims) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	if err := store.Put(rec, r, claims); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie written")
	return nil
}

func activeClaims(now time.Time) *session.Claims {
	return &session.Claims{
		IsAuthenticated:  true,
		AccessToken:      "access-1",
		RefreshToken:     "refresh-1",
		ExpiresAt:        now.Add(10 * time.Minute).UnixMilli(),
		UserID:           "user-1",
		TenantID:         "tenant-1",
		TenantDomainName: "acme",
		Email:            "dev@acme.example.com",
		CSRFSecret:       "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LXg=",
	}
}

func TestServeLoginRedirects(t *testing.T) {
	h, _ := newTestHandler(t, defaultFakeProvider())

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/login?tenant_domain=acme", nil)
	h.ServeLogin(rec, r)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location := parseURL(t, rec.Header().Get("Location"))
	if location.Host != "acme-auth.example.com" {
		t.Errorf("redirect host = %q", location.Host)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestServeLoginAuditsEvent(t *testing.T) {
	h, _ := newTestHandler(t, defaultFakeProvider())

	var logOutput bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logOutput, nil))
	h.auditor = security.NewAuditor(logger, true)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/login?tenant_domain=acme", nil)
	h.ServeLogin(rec, r)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	logged := logOutput.String()
	if !strings.Contains(logged, "login_started") {
		t.Errorf("audit log missing login_started event: %q", logged)
	}
	if !strings.Contains(logged, "acme") {
		t.Errorf("audit log missing tenant domain: %q", logged)
	}
}

func TestServeLoginRateLimited(t *testing.T) {
	h, _ := newTestHandler(t, defaultFakeProvider())
	h.limiter = security.NewRateLimiter(1, 1, nil)
	t.Cleanup(h.limiter.Stop)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/login?tenant_domain=acme", nil)
		r.RemoteAddr = "203.0.113.7:4411"
		h.ServeLogin(rec, r)

		want := http.StatusFound
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestServeCallbackCompletesLogin(t *testing.T) {
	fake := defaultFakeProvider()
	h, store := newTestHandler(t, fake)

	state := newLoginState(t)
	rec := httptest.NewRecorder()
	r := callbackRequest(t, h.service, "state="+state.State+"&code=good&tenant_domain=acme", state)
	h.ServeCallback(rec, r)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", got)
	}

	var sessionCookie, csrfCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case session.CookieName:
			sessionCookie = c
		case csrf.CookieName:
			csrfCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("no session cookie issued")
	}
	if csrfCookie == nil || csrfCookie.Value == "" {
		t.Fatal("no CSRF cookie issued")
	}
	if csrfCookie.HttpOnly {
		t.Error("CSRF cookie must be readable by the frontend")
	}

	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", store.Len())
	}
}

func TestServeCallbackRestartRedirects(t *testing.T) {
	h, _ := newTestHandler(t, defaultFakeProvider())

	rec := httptest.NewRecorder()
	// No login state cookie: the handler must bounce back into login.
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/callback?state=abc&code=xyz&tenant_domain=acme", nil)
	h.ServeCallback(rec, r)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location := rec.Header().Get("Location")
	if location != "https://app.example.com/auth/login?tenant_domain=acme" {
		t.Errorf("Location = %q", location)
	}
}

func TestServeCallbackErrorMapping(t *testing.T) {
	h, _ := newTestHandler(t, defaultFakeProvider())

	t.Run("malformed request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/callback", nil)
		h.ServeCallback(rec, r)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("protocol error", func(t *testing.T) {
		state := newLoginState(t)
		rec := httptest.NewRecorder()
		r := callbackRequest(t, h.service, "state="+state.State+"&error=access_denied&tenant_domain=acme", state)
		h.ServeCallback(rec, r)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}

func TestServeLogout(t *testing.T) {
	fake := defaultFakeProvider()
	h, store := newTestHandler(t, fake)

	now := time.Now()
	cookie := seedSession(t, store, activeClaims(now))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/logout", nil)
	r.AddCookie(cookie)
	h.ServeLogout(rec, r)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if fake.revokedWith != "refresh-1" {
		t.Errorf("revoked token = %q, want refresh-1", fake.revokedWith)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0 after logout", store.Len())
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("CSRF cookie not cleared on logout")
	}
}

// emptyResultStore breaks the Store contract by returning neither claims nor
// an error; RequireAuth must treat that as an unauthenticated request.
type emptyResultStore struct{}

func (emptyResultStore) Get(*http.Request) (*session.Claims, error) { return nil, nil }
func (emptyResultStore) Put(http.ResponseWriter, *http.Request, *session.Claims) error {
	return nil
}
func (emptyResultStore) Destroy(http.ResponseWriter, *http.Request) error { return nil }

func TestRequireAuth(t *testing.T) {
	protected := func(h *Handler) http.Handler {
		return h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				t.Error("no claims in context")
			}
			w.Header().Set("X-User", claims.UserID)
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("no session", func(t *testing.T) {
		h, _ := newTestHandler(t, defaultFakeProvider())
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
		protected(h).ServeHTTP(rec, r)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("store returning no claims and no error", func(t *testing.T) {
		h, _ := newTestHandler(t, defaultFakeProvider())
		h.sessions = emptyResultStore{}

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
		protected(h).ServeHTTP(rec, r)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("missing CSRF header", func(t *testing.T) {
		h, store := newTestHandler(t, defaultFakeProvider())
		cookie := seedSession(t, store, activeClaims(time.Now()))

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
		r.AddCookie(cookie)
		protected(h).ServeHTTP(rec, r)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("valid session passes", func(t *testing.T) {
		fake := defaultFakeProvider()
		h, store := newTestHandler(t, fake)
		claims := activeClaims(time.Now())
		cookie := seedSession(t, store, claims)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
		r.AddCookie(cookie)
		r.Header.Set(csrf.HeaderName, csrf.TokenFor(claims.CSRFSecret))
		protected(h).ServeHTTP(rec, r)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("X-User"); got != "user-1" {
			t.Errorf("X-User = %q, want user-1", got)
		}
		if fake.refreshCalls.Load() != 0 {
			t.Error("token refreshed while still valid")
		}
	})

	t.Run("expired token is refreshed and persisted", func(t *testing.T) {
		fake := defaultFakeProvider()
		h, store := newTestHandler(t, fake)

		claims := activeClaims(time.Now())
		claims.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
		cookie := seedSession(t, store, claims)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
		r.AddCookie(cookie)
		r.Header.Set(csrf.HeaderName, csrf.TokenFor(claims.CSRFSecret))
		protected(h).ServeHTTP(rec, r)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if fake.refreshCalls.Load() != 1 {
			t.Fatalf("refresh calls = %d, want 1", fake.refreshCalls.Load())
		}

		stored, err := store.Get(r)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.AccessToken != "access-2" {
			t.Errorf("stored access token = %q, want access-2", stored.AccessToken)
		}
		if stored.TokenIsExpired(time.Now()) {
			t.Error("stored claims still expired after refresh")
		}
	})

	t.Run("rejected refresh token destroys the session", func(t *testing.T) {
		fake := defaultFakeProvider()
		fake.refreshErrs = []error{provider.ErrInvalidRefreshToken}
		h, store := newTestHandler(t, fake)

		claims := activeClaims(time.Now())
		claims.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
		cookie := seedSession(t, store, claims)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
		r.AddCookie(cookie)
		r.Header.Set(csrf.HeaderName, csrf.TokenFor(claims.CSRFSecret))
		protected(h).ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if store.Len() != 0 {
			t.Errorf("store.Len() = %d, want 0", store.Len())
		}
	})
}

func TestServeSession(t *testing.T) {
	h, store := newTestHandler(t, defaultFakeProvider())
	mux := http.NewServeMux()
	h.RegisterHandlers(mux)

	claims := activeClaims(time.Now())
	claims.Roles = []Role{{ID: "r1", Name: "app:admin", DisplayName: "Admin"}}
	cookie := seedSession(t, store, claims)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/session", nil)
	r.AddCookie(cookie)
	r.Header.Set(csrf.HeaderName, csrf.TokenFor(claims.CSRFSecret))
	mux.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsAuthenticated || resp.UserID != "user-1" || resp.TenantDomainName != "acme" {
		t.Errorf("unexpected session response: %+v", resp)
	}
	if len(resp.Roles) != 1 || resp.Roles[0].Name != "app:admin" {
		t.Errorf("roles = %+v", resp.Roles)
	}
}
