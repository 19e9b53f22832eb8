package valkey

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/tenantkit/tenantkit/session"
)

// testStore connects to a local Valkey instance. Tests are skipped when no
// server is reachable. Each test gets its own key prefix for isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: fmt.Sprintf("tenantkit-test:%s:", t.Name()),
		TTL:       time.Minute,
	})
	if err != nil {
		t.Skipf("Valkey not available at %s: %v", addr, err)
	}
	t.Cleanup(store.Close)
	return store
}

func testClaims() *session.Claims {
	return &session.Claims{
		IsAuthenticated:  true,
		AccessToken:      "access-1",
		RefreshToken:     "refresh-1",
		ExpiresAt:        time.Now().Add(30 * time.Minute).UnixMilli(),
		UserID:           "user-1",
		TenantID:         "tenant-1",
		TenantDomainName: "acme",
		Email:            "dev@acme.example.com",
		CSRFSecret:       "secret",
		Metadata:         map[string]string{"theme": "dark"},
	}
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie written")
	return nil
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing address")
	}
}

func TestPutAndGet(t *testing.T) {
	store := testStore(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	if err := store.Put(rec, r, testClaims()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	r2 := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	r2.AddCookie(sessionCookie(t, rec))

	got, err := store.Get(r2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "user-1" || got.TenantDomainName != "acme" {
		t.Errorf("claims = %+v", got)
	}
	if got.Metadata["theme"] != "dark" {
		t.Errorf("Metadata = %+v", got.Metadata)
	}
}

func TestGetWithoutCookie(t *testing.T) {
	store := testStore(t)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	if _, err := store.Get(r); err != session.ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPutReusesSessionID(t *testing.T) {
	store := testStore(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	if err := store.Put(rec, r, testClaims()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	first := sessionCookie(t, rec)

	rec2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	r2.AddCookie(first)
	if err := store.Put(rec2, r2, testClaims()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if second := sessionCookie(t, rec2); second.Value != first.Value {
		t.Errorf("session ID changed across writes: %q vs %q", first.Value, second.Value)
	}
}

func TestDestroy(t *testing.T) {
	store := testStore(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	if err := store.Put(rec, r, testClaims()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	cookie := sessionCookie(t, rec)

	rec2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	r2.AddCookie(cookie)
	if err := store.Destroy(rec2, r2); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	r3 := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	r3.AddCookie(cookie)
	if _, err := store.Get(r3); err != session.ErrNotFound {
		t.Errorf("Get() after Destroy error = %v, want ErrNotFound", err)
	}

	cleared := false
	for _, c := range rec2.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}
