package session

import (
	"errors"
	"net/http"
	"time"
)

const (
	// CookieName is the opaque session ID cookie.
	CookieName = "session"

	// DefaultTTL is the sliding session window.
	DefaultTTL = 30 * time.Minute
)

// ErrNotFound is returned when the request carries no usable session.
var ErrNotFound = errors.New("session not found")

// Role is a role assigned to the user in the authenticating tenant.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Claims is the session record written after a successful callback. Token
// fields are refreshed in place by the refresh middleware; everything else is
// stable for the lifetime of the session.
type Claims struct {
	IsAuthenticated    bool              `json:"isAuthenticated"`
	AccessToken        string            `json:"accessToken"`
	RefreshToken       string            `json:"refreshToken,omitempty"`
	IDToken            string            `json:"idToken,omitempty"`
	ExpiresAt          int64             `json:"expiresAt"` // unix millis
	UserID             string            `json:"userId"`
	TenantID           string            `json:"tenantId"`
	TenantDomainName   string            `json:"tenantDomainName"`
	TenantCustomDomain string            `json:"tenantCustomDomain,omitempty"`
	Email              string            `json:"email,omitempty"`
	FullName           string            `json:"fullName,omitempty"`
	IdpName            string            `json:"idpName,omitempty"`
	Roles              []Role            `json:"roles,omitempty"`
	CSRFSecret         string            `json:"csrfSecret,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// TokenIsExpired reports whether the access token has reached its expiry.
func (c *Claims) TokenIsExpired(now time.Time) bool {
	return now.UnixMilli() >= c.ExpiresAt
}

// Store persists session records keyed by an opaque cookie ID. Get returns
// ErrNotFound when the request carries no cookie or the record is gone; any
// other error means the backend itself failed.
type Store interface {
	Get(r *http.Request) (*Claims, error)
	Put(w http.ResponseWriter, r *http.Request, claims *Claims) error
	Destroy(w http.ResponseWriter, r *http.Request) error
}

// IDFromRequest extracts the session ID cookie, if present.
func IDFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// WriteCookie sets the session ID cookie with a sliding TTL.
func WriteCookie(w http.ResponseWriter, id string, secure bool, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session ID cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
