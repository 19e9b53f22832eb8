package tenantkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/tenantkit/tenantkit/instrumentation"
	"github.com/tenantkit/tenantkit/internal/loginstate"
	"github.com/tenantkit/tenantkit/internal/util"
	"github.com/tenantkit/tenantkit/provider"
	"github.com/tenantkit/tenantkit/security"
)

const (
	logoutPath = "/api/v1/logout"

	refreshRetryAttempts = 3
	refreshRetryDelay    = 100 * time.Millisecond
)

// providerClient is the slice of the platform client the auth service uses.
type providerClient interface {
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*provider.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*provider.TokenResponse, error)
	Revoke(ctx context.Context, refreshToken string) error
	FetchUserInfo(ctx context.Context, accessToken string) (provider.UserInfo, error)
}

// AuthService is the protocol engine: it builds login redirects, processes
// callbacks, refreshes tokens on demand, and builds logout redirects.
// Safe for concurrent use.
type AuthService struct {
	cfg    *AuthConfig
	client providerClient
	codec  *loginstate.Codec
	logger *slog.Logger
	inst   *instrumentation.Instrumentation

	// refreshGroup collapses concurrent refreshes of the same refresh token
	// into a single platform call.
	refreshGroup singleflight.Group

	now func() time.Time
}

// NewAuthService validates the configuration and creates the service.
func NewAuthService(cfg *AuthConfig) (*AuthService, error) {
	if cfg == nil {
		return nil, configErr("AuthConfig", "required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := cfg.loginStateKey()
	if err != nil {
		return nil, err
	}
	codec, err := loginstate.NewCodec(key)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := provider.NewClient(&provider.Config{
		ApplicationDomain: cfg.ApplicationDomain,
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		HTTPClient:        cfg.HTTPClient,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "tenantkit"})
	if err != nil {
		return nil, err
	}

	return &AuthService{
		cfg:    cfg,
		client: client,
		codec:  codec,
		logger: logger,
		inst:   inst,
		now:    time.Now,
	}, nil
}

// SetInstrumentation replaces the default no-op instrumentation.
func (s *AuthService) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		s.inst = inst
	}
}

// Login starts a login attempt: it resolves the tenant, creates and encrypts
// the login state, sets the login state cookie, and returns the authorize URL
// the caller should redirect the browser to. When no tenant context can be
// established the app-level login page URL is returned instead.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request, loginCfg *LoginConfig) (string, error) {
	security.DisableCaching(w)
	if loginCfg == nil {
		loginCfg = &LoginConfig{}
	}

	tenantCustomDomain, err := resolveTenantCustomDomain(r)
	if err != nil {
		return "", err
	}
	tenantDomainName, err := s.resolveTenantDomainName(r)
	if err != nil {
		return "", err
	}

	defaultTenant := firstNonEmpty(loginCfg.DefaultTenantDomainName, s.cfg.DefaultTenantDomainName)
	defaultCustom := firstNonEmpty(loginCfg.DefaultTenantCustomDomain, s.cfg.DefaultTenantCustomDomain)

	host := s.platformHost(tenantDomainName, tenantCustomDomain, defaultTenant, defaultCustom)
	if host == "" {
		s.logger.Debug("no tenant context on login, using app login page")
		return s.appLoginURL(), nil
	}

	returnURL := r.URL.Query().Get(paramReturnURL)
	if strings.Contains(returnURL, " ") {
		return "", validationErr("%s must not contain spaces", paramReturnURL)
	}

	effectiveTenant := firstNonEmpty(tenantDomainName, defaultTenant)
	redirectURI := s.tenantRedirectURI(effectiveTenant)

	state, err := loginstate.New(redirectURI, returnURL, effectiveTenant, loginCfg.CustomState)
	if err != nil {
		return "", err
	}
	encrypted, err := s.codec.Encrypt(state)
	if err != nil {
		return "", err
	}
	nonce, err := loginstate.RandomToken()
	if err != nil {
		return "", err
	}

	loginstate.EvictOldest(r, w, loginstate.DefaultMaxConcurrent)
	loginstate.SetCookie(w, loginstate.CookieName(state.State, s.now()), encrypted, s.cfg.secureCookies())

	authorizeURL := s.authorizeURL(authorizeParams{
		host:         host,
		redirectURI:  redirectURI,
		state:        state.State,
		codeVerifier: state.CodeVerifier,
		nonce:        nonce,
		loginHint:    r.URL.Query().Get(paramLoginHint),
	})

	s.inst.Metrics().LoginStarted.Add(r.Context(), 1)
	s.logger.Debug("login started",
		"tenant_domain", effectiveTenant,
		"tenant_custom_domain", tenantCustomDomain,
		"state_prefix", util.SafeTruncate(state.State, 8))

	return authorizeURL, nil
}

// Callback validates the provider callback and exchanges the authorization
// code. The returned CallbackResult is either Completed with the token set
// and user info, or RedirectRequired with the tenant login URL when the
// login must restart (lost state, login_required, rejected code). Malformed
// requests and unexpected provider errors are returned as errors.
func (s *AuthService) Callback(w http.ResponseWriter, r *http.Request) (*CallbackResult, error) {
	security.DisableCaching(w)
	ctx := r.Context()

	if r.URL.RawQuery == "" {
		return nil, validationErr("callback request has no query string")
	}

	q := r.URL.Query()
	states := q[paramState]
	if len(states) != 1 || states[0] == "" {
		return nil, validationErr("callback requires exactly one %s parameter", paramState)
	}
	state := states[0]

	tenantCustomDomain, err := resolveTenantCustomDomain(r)
	if err != nil {
		return nil, err
	}
	tenantDomainName, err := s.resolveTenantDomainName(r)
	if err != nil {
		return nil, err
	}
	if tenantDomainName == "" {
		if s.cfg.UseTenantSubdomains {
			return nil, &AuthError{
				Code:        ErrorCodeMissingTenantSubdomain,
				Description: "callback host carries no tenant subdomain",
			}
		}
		return nil, &AuthError{
			Code:        ErrorCodeMissingTenantDomain,
			Description: "callback carries no tenant_domain parameter",
		}
	}

	restartURL := s.tenantLoginURL(tenantDomainName, tenantCustomDomain)

	raw := loginstate.TakeMatching(r, w, state)
	if raw == "" {
		return s.redirectToLogin(ctx, restartURL, "no login state cookie"), nil
	}
	ls := s.codec.Decrypt(raw)
	if ls == nil || ls.State != state {
		return s.redirectToLogin(ctx, restartURL, "login state invalid"), nil
	}

	if errParam := q.Get(paramError); errParam != "" {
		if errParam == ErrorCodeLoginRequired {
			return s.redirectToLogin(ctx, restartURL, "login required"), nil
		}
		return nil, &AuthError{Code: errParam, Description: q.Get(paramErrorDescription)}
	}

	code := q.Get(paramCode)
	if code == "" {
		return nil, validationErr("callback carries no %s parameter", paramCode)
	}

	start := time.Now()
	token, err := s.client.ExchangeCode(ctx, code, ls.RedirectURI, ls.CodeVerifier)
	s.observeProviderCall(ctx, "exchange_code", start, err)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidGrant) {
			return s.redirectToLogin(ctx, restartURL, "authorization code rejected"), nil
		}
		return nil, err
	}
	s.inst.Metrics().CodeExchanged.Add(ctx, 1)

	start = time.Now()
	info, err := s.client.FetchUserInfo(ctx, token.AccessToken)
	s.observeProviderCall(ctx, "userinfo", start, err)
	if err != nil {
		return nil, err
	}

	s.inst.Metrics().CallbackCompleted.Add(ctx, 1)
	s.logger.Debug("callback completed", "tenant_domain", ls.TenantDomainName)

	return completedResult(&CallbackData{
		AccessToken:        token.AccessToken,
		ExpiresIn:          token.ExpiresIn,
		IDToken:            token.IDToken,
		RefreshToken:       token.RefreshToken,
		UserInfo:           info,
		Roles:              rolesFromUserInfo(info),
		TenantDomainName:   firstNonEmpty(ls.TenantDomainName, tenantDomainName),
		TenantCustomDomain: tenantCustomDomain,
		CustomState:        ls.CustomState,
		ReturnURL:          ls.ReturnURL,
	}), nil
}

// observeProviderCall records call count, duration, and error metrics for one
// platform API round trip.
func (s *AuthService) observeProviderCall(ctx context.Context, operation string, start time.Time, err error) {
	m := s.inst.Metrics()
	attrs := metric.WithAttributes(instrumentation.StringAttr(instrumentation.AttrProviderOperation, operation))
	m.ProviderAPICallsTotal.Add(ctx, 1, attrs)
	m.ProviderAPIDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		m.ProviderAPIErrors.Add(ctx, 1, attrs)
	}
}

func (s *AuthService) redirectToLogin(ctx context.Context, restartURL, reason string) *CallbackResult {
	s.inst.Metrics().CallbackRedirected.Add(ctx, 1)
	s.logger.Debug("callback restarting login", "reason", reason)
	return redirectResult(restartURL)
}

// Logout revokes the session's refresh token (best effort) and returns the
// platform logout URL the caller should redirect the browser to. Clearing
// the session record and cookies is the caller's responsibility.
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request, logoutCfg *LogoutConfig) (string, error) {
	security.DisableCaching(w)
	if logoutCfg == nil {
		logoutCfg = &LogoutConfig{}
	}

	if logoutCfg.RefreshToken != "" {
		start := time.Now()
		err := s.client.Revoke(r.Context(), logoutCfg.RefreshToken)
		s.observeProviderCall(r.Context(), "revoke", start, err)
		if err != nil {
			s.logger.Warn("failed to revoke refresh token", "error", err)
		} else {
			s.inst.Metrics().TokenRevoked.Add(r.Context(), 1)
		}
	}

	tenantCustomDomain := logoutCfg.TenantCustomDomain
	if tenantCustomDomain == "" {
		var err error
		tenantCustomDomain, err = resolveTenantCustomDomain(r)
		if err != nil {
			return "", err
		}
	}
	tenantDomainName := logoutCfg.TenantDomainName
	if tenantDomainName == "" {
		var err error
		tenantDomainName, err = s.resolveTenantDomainName(r)
		if err != nil {
			return "", err
		}
	}

	host := s.platformHost(tenantDomainName, tenantCustomDomain,
		s.cfg.DefaultTenantDomainName, s.cfg.DefaultTenantCustomDomain)
	if host == "" {
		if logoutCfg.RedirectURL != "" {
			return logoutCfg.RedirectURL, nil
		}
		return s.appLoginURL(), nil
	}

	logoutURL := "https://" + host + logoutPath + "?client_id=" + url.QueryEscape(s.cfg.ClientID)
	if logoutCfg.RedirectURL != "" {
		logoutURL += "&redirect_url=" + url.QueryEscape(logoutCfg.RedirectURL)
	}
	return logoutURL, nil
}

// RefreshTokenIfExpired refreshes the token set when the absolute expiry has
// passed. Returns (nil, nil) when the access token is still valid. Transient
// failures are retried up to three times with a fixed delay; a rejected
// refresh token aborts immediately. Concurrent calls sharing a refresh token
// are collapsed into one platform call.
func (s *AuthService) RefreshTokenIfExpired(ctx context.Context, refreshToken string, expiresAt int64) (*TokenData, error) {
	if refreshToken == "" {
		return nil, validationErr("refresh token is required")
	}
	if expiresAt <= 0 {
		return nil, validationErr("token expiry must be positive")
	}

	if s.now().UnixMilli() < expiresAt {
		return nil, nil
	}

	v, err, _ := s.refreshGroup.Do(refreshToken, func() (any, error) {
		return s.refreshWithRetry(ctx, refreshToken)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenData), nil
}

func (s *AuthService) refreshWithRetry(ctx context.Context, refreshToken string) (*TokenData, error) {
	var lastErr error
	for attempt := 1; attempt <= refreshRetryAttempts; attempt++ {
		start := time.Now()
		resp, err := s.client.Refresh(ctx, refreshToken)
		s.observeProviderCall(ctx, "refresh", start, err)
		if err == nil {
			s.inst.Metrics().TokenRefreshed.Add(ctx, 1)
			return &TokenData{
				AccessToken:  resp.AccessToken,
				ExpiresIn:    resp.ExpiresIn,
				IDToken:      resp.IDToken,
				RefreshToken: resp.RefreshToken,
			}, nil
		}

		if errors.Is(err, provider.ErrInvalidRefreshToken) {
			return nil, err
		}

		lastErr = err
		s.logger.Warn("token refresh attempt failed",
			"attempt", attempt,
			"token_prefix", util.SafeTruncate(refreshToken, 8),
			"error", err)

		if attempt < refreshRetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(refreshRetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("token refresh failed after %d attempts: %w", refreshRetryAttempts, lastErr)
}

// rolesFromUserInfo parses the roles claim into typed values. Claims that
// do not match the expected shape are skipped.
func rolesFromUserInfo(info UserInfo) []Role {
	raw, ok := info["roles"].([]any)
	if !ok {
		return nil
	}

	roles := make([]Role, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role := Role{}
		role.ID, _ = m["id"].(string)
		role.Name, _ = m["name"].(string)
		role.DisplayName, _ = m["displayName"].(string)
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil
	}
	return roles
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
