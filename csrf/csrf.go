package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

const (
	// CookieName is the token cookie read by browser frontends.
	CookieName = "XSRF-TOKEN"

	// HeaderName is the request header the frontend echoes the token in.
	HeaderName = "X-XSRF-TOKEN"

	// DefaultMaxAge matches the sliding session window.
	DefaultMaxAge = 30 * time.Minute

	secretSize = 32
)

// GenerateSecret returns a new random per-session CSRF secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate CSRF secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// TokenFor derives the client-visible token from a session secret.
// The derivation is deterministic, so the server never stores the token
// itself and any copy of the secret can re-derive it for comparison.
func TokenFor(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Guard issues and validates CSRF token cookies.
type Guard struct {
	secure bool
	maxAge time.Duration
}

// NewGuard creates a guard. The secure flag controls the cookie's Secure
// attribute and should be true everywhere outside local development.
func NewGuard(secure bool, maxAge time.Duration) *Guard {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Guard{secure: secure, maxAge: maxAge}
}

// IssueCookie sets the token cookie for the given session secret. The cookie
// is intentionally readable by scripts so the frontend can copy it into the
// request header.
func (g *Guard) IssueCookie(w http.ResponseWriter, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    TokenFor(secret),
		Path:     "/",
		MaxAge:   int(g.maxAge.Seconds()),
		Secure:   g.secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the token cookie, e.g. on logout.
func (g *Guard) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   g.secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

// Validate checks the X-XSRF-TOKEN header against the session secret using a
// constant-time comparison. A missing header or empty secret fails closed.
func (g *Guard) Validate(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	presented := r.Header.Get(HeaderName)
	if presented == "" {
		return false
	}
	expected := TokenFor(secret)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
