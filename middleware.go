package tenantkit

import (
	"context"
	"errors"
	"net/http"

	"github.com/tenantkit/tenantkit/provider"
	"github.com/tenantkit/tenantkit/security"
	"github.com/tenantkit/tenantkit/session"
)

type contextKey int

const claimsContextKey contextKey = iota

// ClaimsFromContext returns the session claims attached by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*session.Claims)
	return claims, ok
}

// RequireAuth protects an endpoint: it loads the session, validates the CSRF
// token, refreshes the access token when it has expired, touches the sliding
// session window, and re-issues the CSRF cookie. The claims are attached to
// the request context for ClaimsFromContext.
//
// Responses: 401 when there is no authenticated session or the refresh token
// was rejected (the session is destroyed), 403 on CSRF failure, 500 when the
// platform stays unreachable through the retry budget.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w)

		claims, err := h.sessions.Get(r)
		if err != nil || claims == nil || !claims.IsAuthenticated {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if !h.guard.Validate(r, claims.CSRFSecret) {
			h.auditor.LogCSRFRejected(claims.UserID, h.clientIP(r))
			h.service.inst.Metrics().CSRFRejected.Add(r.Context(), 1)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		refreshed, err := h.service.RefreshTokenIfExpired(r.Context(), claims.RefreshToken, claims.ExpiresAt)
		if err != nil {
			h.handleRefreshFailure(w, r, claims, err)
			return
		}
		if refreshed != nil {
			claims.AccessToken = refreshed.AccessToken
			claims.RefreshToken = refreshed.RefreshToken
			claims.IDToken = refreshed.IDToken
			claims.ExpiresAt = h.service.now().UnixMilli() + int64(refreshed.ExpiresIn)*1000
			h.auditor.LogTokenRefreshed(claims.UserID, claims.TenantID, h.clientIP(r))
		}

		// Touch the sliding window and keep the CSRF cookie's expiry aligned
		// with the session's.
		if err := h.sessions.Put(w, r, claims); err != nil {
			h.logger.Error("failed to update session", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		h.guard.IssueCookie(w, claims.CSRFSecret)

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleRefreshFailure(w http.ResponseWriter, r *http.Request, claims *session.Claims, err error) {
	var validationError *ValidationError

	switch {
	case errors.Is(err, provider.ErrInvalidRefreshToken), errors.As(err, &validationError):
		// The session can no longer be refreshed; force a new login.
		h.auditor.LogAuthFailure(claims.UserID, h.clientIP(r), "refresh token rejected")
		if derr := h.sessions.Destroy(w, r); derr != nil {
			h.logger.Warn("failed to destroy session", "error", derr)
		}
		h.guard.ClearCookie(w)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		h.logger.Error("token refresh failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
