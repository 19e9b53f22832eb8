// Package csrf implements synchronizer-token CSRF protection for
// cookie-based sessions. A per-session secret lives server-side in the
// session record; the derived token travels in a readable cookie that the
// frontend echoes back in the X-XSRF-TOKEN request header.
package csrf
