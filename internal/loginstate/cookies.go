package loginstate

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// CookiePrefix is the prefix of every login state cookie.
	CookiePrefix = "login"

	// cookieSeparator joins the prefix, state nonce, and issue timestamp.
	cookieSeparator = "#"

	// CookieMaxAge is how long a login state cookie lives. One hour is plenty
	// of time for a login to complete, even when debugging.
	CookieMaxAge = time.Hour

	// DefaultMaxConcurrent is the default bound on simultaneous login state
	// cookies. Supports logins from multiple tabs without unbounded growth.
	DefaultMaxConcurrent = 3
)

// CookieName builds the cookie name for a login attempt:
// "login#<state>#<epochMillis>". The timestamp orders concurrent attempts.
func CookieName(state string, issuedAt time.Time) string {
	return CookiePrefix + cookieSeparator + state + cookieSeparator + strconv.FormatInt(issuedAt.UnixMilli(), 10)
}

// SetCookie writes an encrypted login state value under the given name.
// HttpOnly and SameSite=Lax: the cookie must survive the top-level redirect
// back from the identity platform but stays invisible to scripts.
func SetCookie(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// EvictOldest deletes the oldest login state cookies so that after a new
// cookie is appended at most maxConcurrent remain. Cookies whose timestamp
// segment cannot be parsed are treated as oldest and evicted first.
func EvictOldest(r *http.Request, w http.ResponseWriter, maxConcurrent int) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	cookies := loginCookies(r)
	if len(cookies) < maxConcurrent {
		return
	}

	sort.Slice(cookies, func(i, j int) bool {
		return issuedAtMillis(cookies[i].Name) < issuedAtMillis(cookies[j].Name)
	})

	// Keep maxConcurrent-1 so the caller can append the new cookie.
	for _, c := range cookies[:len(cookies)-(maxConcurrent-1)] {
		deleteCookie(w, c.Name)
	}
}

// TakeMatching returns the value of the newest login state cookie matching the
// callback's state parameter, then deletes every login state cookie (matching
// and not) to prevent replay. Returns "" when no cookie matches.
func TakeMatching(r *http.Request, w http.ResponseWriter, state string) string {
	var (
		value  string
		newest int64 = -1
	)

	matchPrefix := CookiePrefix + cookieSeparator + state + cookieSeparator
	for _, c := range loginCookies(r) {
		if strings.HasPrefix(c.Name, matchPrefix) {
			if ts := issuedAtMillis(c.Name); ts > newest {
				newest = ts
				value = c.Value
			}
		}
		deleteCookie(w, c.Name)
	}

	return value
}

// loginCookies returns all cookies carrying login state.
func loginCookies(r *http.Request) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range r.Cookies() {
		if strings.HasPrefix(c.Name, CookiePrefix+cookieSeparator) {
			out = append(out, c)
		}
	}
	return out
}

// issuedAtMillis extracts the epoch-millis segment of a login cookie name.
// Returns 0 for malformed names so they sort as oldest.
func issuedAtMillis(name string) int64 {
	parts := strings.SplitN(name, cookieSeparator, 3)
	if len(parts) != 3 {
		return 0
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

func deleteCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}

// Count reports how many login state cookies the request carries.
// Exposed for tests and diagnostics.
func Count(r *http.Request) int {
	return len(loginCookies(r))
}
