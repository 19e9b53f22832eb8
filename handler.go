package tenantkit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tenantkit/tenantkit/csrf"
	"github.com/tenantkit/tenantkit/security"
	"github.com/tenantkit/tenantkit/session"
)

// HandlerConfig configures the HTTP surface over an AuthService.
type HandlerConfig struct {
	// Service is the auth protocol engine (required).
	Service *AuthService

	// Sessions is the caller-chosen session backend (required).
	Sessions session.Store

	// CSRFGuard issues and validates CSRF tokens. Defaults to a guard whose
	// Secure attribute follows the service configuration.
	CSRFGuard *csrf.Guard

	// RateLimiter optionally throttles per-IP login and callback traffic.
	RateLimiter *security.RateLimiter

	// Auditor optionally records security events.
	Auditor *security.Auditor

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP client IP
	// extraction; TrustedProxyCount is the number of trusted proxies.
	TrustProxyHeaders bool
	TrustedProxyCount int

	// LoginConfig supplies per-deployment login defaults (custom state,
	// default tenant overrides).
	LoginConfig *LoginConfig

	// LogoutRedirectURL is passed to the platform's logout endpoint.
	LogoutRedirectURL string

	// PostLoginRedirectURL is used after a completed callback when the login
	// state carried no return URL. Defaults to "/".
	PostLoginRedirectURL string

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Handler exposes the auth flow over net/http: login, callback, logout, and
// a session introspection endpoint.
type Handler struct {
	service  *AuthService
	sessions session.Store
	guard    *csrf.Guard
	limiter  *security.RateLimiter
	auditor  *security.Auditor
	logger   *slog.Logger

	trustProxy   bool
	proxyCount   int
	loginConfig  *LoginConfig
	logoutURL    string
	postLoginURL string
}

// NewHandler creates the HTTP surface.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Service == nil {
		return nil, configErr("Service", "required")
	}
	if cfg.Sessions == nil {
		return nil, configErr("Sessions", "required")
	}

	guard := cfg.CSRFGuard
	if guard == nil {
		guard = csrf.NewGuard(cfg.Service.cfg.secureCookies(), csrf.DefaultMaxAge)
	}

	auditor := cfg.Auditor
	if auditor == nil {
		auditor = security.NewAuditor(cfg.Logger, false)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	postLogin := cfg.PostLoginRedirectURL
	if postLogin == "" {
		postLogin = "/"
	}

	return &Handler{
		service:      cfg.Service,
		sessions:     cfg.Sessions,
		guard:        guard,
		limiter:      cfg.RateLimiter,
		auditor:      auditor,
		logger:       logger,
		trustProxy:   cfg.TrustProxyHeaders,
		proxyCount:   cfg.TrustedProxyCount,
		loginConfig:  cfg.LoginConfig,
		logoutURL:    cfg.LogoutRedirectURL,
		postLoginURL: postLogin,
	}, nil
}

// RegisterHandlers registers the auth endpoints on the given mux.
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/login", h.ServeLogin)
	mux.HandleFunc("GET /auth/callback", h.ServeCallback)
	mux.HandleFunc("GET /auth/logout", h.ServeLogout)
	mux.Handle("GET /session", h.RequireAuth(http.HandlerFunc(h.ServeSession)))
}

// ServeLogin redirects the browser into the platform's authorize flow.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w)
	if !h.allow(w, r) {
		return
	}

	authorizeURL, err := h.service.Login(w, r, h.loginConfig)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditor.LogLoginStarted(h.clientIP(r), r.URL.Query().Get(paramTenantDomain))
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// ServeCallback finishes the login: on success it writes the session record,
// issues the CSRF cookie, and redirects to the return URL; on a restart
// outcome it redirects back into login.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w)
	if !h.allow(w, r) {
		return
	}

	result, err := h.service.Callback(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.Type == CallbackRedirectRequired {
		h.auditor.LogCallbackRedirect(h.clientIP(r), "login restart")
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
		return
	}

	data := result.Data
	secret, err := csrf.GenerateSecret()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	claims := claimsFromCallback(data, secret, h.service.now())
	if err := h.sessions.Put(w, r, claims); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.guard.IssueCookie(w, secret)

	h.auditor.LogCallbackCompleted(claims.UserID, claims.TenantID, h.clientIP(r))

	target := data.ReturnURL
	if target == "" {
		target = h.postLoginURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ServeLogout destroys the session, clears the CSRF cookie, revokes the
// refresh token, and redirects to the platform logout endpoint.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w)

	logoutCfg := &LogoutConfig{RedirectURL: h.logoutURL}
	claims, err := h.sessions.Get(r)
	if err == nil {
		logoutCfg.RefreshToken = claims.RefreshToken
		logoutCfg.TenantDomainName = claims.TenantDomainName
		logoutCfg.TenantCustomDomain = claims.TenantCustomDomain
	}

	logoutRedirect, err := h.service.Logout(w, r, logoutCfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if claims != nil {
		h.auditor.LogTokenRevoked(claims.UserID, claims.TenantID, h.clientIP(r))
	}

	if err := h.sessions.Destroy(w, r); err != nil {
		h.logger.Warn("failed to destroy session on logout", "error", err)
	}
	h.guard.ClearCookie(w)

	http.Redirect(w, r, logoutRedirect, http.StatusFound)
}

// sessionResponse is the JSON shape of the session endpoint.
type sessionResponse struct {
	IsAuthenticated  bool              `json:"isAuthenticated"`
	UserID           string            `json:"userId"`
	TenantID         string            `json:"tenantId"`
	TenantDomainName string            `json:"tenantDomainName"`
	Email            string            `json:"email,omitempty"`
	FullName         string            `json:"fullName,omitempty"`
	Roles            []Role            `json:"roles,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ServeSession reports the authenticated user's session to the frontend.
// Registered behind RequireAuth.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	security.DisableCaching(w)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionResponse{
		IsAuthenticated:  claims.IsAuthenticated,
		UserID:           claims.UserID,
		TenantID:         claims.TenantID,
		TenantDomainName: claims.TenantDomainName,
		Email:            claims.Email,
		FullName:         claims.FullName,
		Roles:            claims.Roles,
		Metadata:         claims.Metadata,
	})
}

// allow applies the optional per-IP rate limit.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	ip := h.clientIP(r)
	if h.limiter.Allow(ip) {
		return true
	}
	h.auditor.LogRateLimitExceeded(ip)
	h.service.inst.Metrics().RateLimitExceeded.Add(r.Context(), 1)
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	return false
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.trustProxy, h.proxyCount)
}

// writeError maps error types to HTTP statuses: malformed requests are 400,
// protocol errors 502, everything else 500. Details are logged, not leaked.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationError *ValidationError
		authError       *AuthError
	)

	switch {
	case errors.As(err, &validationError):
		h.logger.Warn("rejected malformed auth request", "error", err, "path", r.URL.Path)
		http.Error(w, "bad request", http.StatusBadRequest)
	case errors.As(err, &authError):
		h.logger.Error("auth protocol error", "code", authError.Code, "error", err)
		h.auditor.LogAuthFailure("", h.clientIP(r), authError.Code)
		http.Error(w, "authentication failed", http.StatusBadGateway)
	default:
		h.logger.Error("auth request failed", "error", err, "path", r.URL.Path)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// claimsFromCallback builds the session record for a completed callback.
func claimsFromCallback(data *CallbackData, csrfSecret string, now time.Time) *session.Claims {
	userID, _ := data.UserInfo.TryString("sub")
	tenantID, _ := data.UserInfo.TryString("tnt_id")
	email, _ := data.UserInfo.TryString("email")
	fullName, _ := data.UserInfo.TryString("name")
	idpName, _ := data.UserInfo.TryString("idp_name")

	return &session.Claims{
		IsAuthenticated:    true,
		AccessToken:        data.AccessToken,
		RefreshToken:       data.RefreshToken,
		IDToken:            data.IDToken,
		ExpiresAt:          now.UnixMilli() + int64(data.ExpiresIn)*1000,
		UserID:             userID,
		TenantID:           tenantID,
		TenantDomainName:   data.TenantDomainName,
		TenantCustomDomain: data.TenantCustomDomain,
		Email:              email,
		FullName:           fullName,
		IdpName:            idpName,
		Roles:              data.Roles,
		CSRFSecret:         csrfSecret,
	}
}
