package tenantkit

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
)

// TenantDomainToken is the placeholder substituted with the resolved tenant
// domain in login URL and redirect URI templates.
const TenantDomainToken = "{tenant_domain}"

// defaultScopes are requested when the configuration names none.
var defaultScopes = []string{"openid", "offline_access", "email"}

// AuthConfig configures the auth service. Required fields are validated
// fail-fast by Validate, which NewAuthService calls.
type AuthConfig struct {
	// ClientID and ClientSecret identify this application to the platform.
	ClientID     string `env:"TENANTKIT_CLIENT_ID"`
	ClientSecret string `env:"TENANTKIT_CLIENT_SECRET"`

	// LoginStateSecret is the base64 encoding of the 32-byte AES-256 key
	// that encrypts login state cookies.
	LoginStateSecret string `env:"TENANTKIT_LOGIN_STATE_SECRET"`

	// LoginURL is this application's own login endpoint. In subdomain mode
	// it must contain the {tenant_domain} placeholder.
	LoginURL string `env:"TENANTKIT_LOGIN_URL"`

	// RedirectURI is the callback endpoint registered with the platform.
	// Placeholder rules follow LoginURL.
	RedirectURI string `env:"TENANTKIT_REDIRECT_URI"`

	// ApplicationDomain is the platform application's vanity domain,
	// e.g. "myapp.tenantkit.dev". Tenant hosts are derived from it.
	ApplicationDomain string `env:"TENANTKIT_APPLICATION_DOMAIN"`

	// UseTenantSubdomains selects subdomain tenant resolution. When false,
	// the tenant comes from the tenant_domain query parameter.
	UseTenantSubdomains bool `env:"TENANTKIT_USE_TENANT_SUBDOMAINS"`

	// RootDomain is the domain under which tenant subdomains live.
	// Required in subdomain mode.
	RootDomain string `env:"TENANTKIT_ROOT_DOMAIN"`

	// UseCustomDomains switches tenant host joining from
	// "<tenant>-<applicationDomain>" to "<tenant>.<applicationDomain>".
	UseCustomDomains bool `env:"TENANTKIT_USE_CUSTOM_DOMAINS"`

	// Scopes are the OAuth scopes to request.
	// Defaults to openid, offline_access, email.
	Scopes []string `env:"TENANTKIT_SCOPES"`

	// DefaultTenantDomainName is used when a request resolves no tenant.
	DefaultTenantDomainName string `env:"TENANTKIT_DEFAULT_TENANT_DOMAIN"`

	// DefaultTenantCustomDomain is used when a request resolves no tenant
	// and no default tenant domain applies.
	DefaultTenantCustomDomain string `env:"TENANTKIT_DEFAULT_TENANT_CUSTOM_DOMAIN"`

	// CustomApplicationLoginPageURL overrides the platform-hosted app-level
	// login page used when no tenant context can be established.
	CustomApplicationLoginPageURL string `env:"TENANTKIT_CUSTOM_APP_LOGIN_PAGE_URL"`

	// DangerouslyDisableSecureCookies drops the Secure attribute from all
	// cookies. Local development over plain HTTP only.
	DangerouslyDisableSecureCookies bool `env:"TENANTKIT_DANGEROUSLY_DISABLE_SECURE_COOKIES"`

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger `env:"-"`

	// HTTPClient is an optional custom HTTP client for platform calls.
	HTTPClient *http.Client `env:"-"`
}

// FromEnv builds and validates an AuthConfig from TENANTKIT_* environment
// variables. Slice values such as scopes are comma separated.
func FromEnv() (*AuthConfig, error) {
	var cfg AuthConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields, the login state key, and the tenant-mode
// placeholder rules, and applies scope defaults.
func (c *AuthConfig) Validate() error {
	if c.ClientID == "" {
		return configErr("ClientID", "required")
	}
	if c.ClientSecret == "" {
		return configErr("ClientSecret", "required")
	}
	if c.LoginURL == "" {
		return configErr("LoginURL", "required")
	}
	if c.RedirectURI == "" {
		return configErr("RedirectURI", "required")
	}
	if c.ApplicationDomain == "" {
		return configErr("ApplicationDomain", "required")
	}

	if _, err := c.loginStateKey(); err != nil {
		return err
	}

	if c.UseTenantSubdomains {
		if c.RootDomain == "" {
			return configErr("RootDomain", "required when tenant subdomains are enabled")
		}
		if !strings.Contains(c.LoginURL, TenantDomainToken) {
			return configErr("LoginURL", fmt.Sprintf("must contain %s when tenant subdomains are enabled", TenantDomainToken))
		}
		if !strings.Contains(c.RedirectURI, TenantDomainToken) {
			return configErr("RedirectURI", fmt.Sprintf("must contain %s when tenant subdomains are enabled", TenantDomainToken))
		}
	} else {
		if strings.Contains(c.LoginURL, TenantDomainToken) {
			return configErr("LoginURL", fmt.Sprintf("must not contain %s when tenant subdomains are disabled", TenantDomainToken))
		}
		if strings.Contains(c.RedirectURI, TenantDomainToken) {
			return configErr("RedirectURI", fmt.Sprintf("must not contain %s when tenant subdomains are disabled", TenantDomainToken))
		}
	}

	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), defaultScopes...)
	}

	return nil
}

// loginStateKey decodes the configured login state secret into the AES key.
func (c *AuthConfig) loginStateKey() ([]byte, error) {
	if c.LoginStateSecret == "" {
		return nil, configErr("LoginStateSecret", "required")
	}
	key, err := base64.StdEncoding.DecodeString(c.LoginStateSecret)
	if err != nil {
		return nil, configErr("LoginStateSecret", "must be base64")
	}
	if len(key) != 32 {
		return nil, configErr("LoginStateSecret", fmt.Sprintf("must decode to 32 bytes, got %d", len(key)))
	}
	return key, nil
}

func (c *AuthConfig) secureCookies() bool {
	return !c.DangerouslyDisableSecureCookies
}

// LoginConfig carries per-call overrides for Login.
type LoginConfig struct {
	// CustomState is carried through the login state cookie and returned in
	// CallbackData.CustomState.
	CustomState map[string]any

	// DefaultTenantDomainName overrides AuthConfig.DefaultTenantDomainName
	// for this login.
	DefaultTenantDomainName string

	// DefaultTenantCustomDomain overrides
	// AuthConfig.DefaultTenantCustomDomain for this login.
	DefaultTenantCustomDomain string
}

// LogoutConfig carries per-call overrides for Logout.
type LogoutConfig struct {
	// RedirectURL is where the platform sends the browser after logout.
	RedirectURL string

	// RefreshToken, when set, is revoked best-effort before redirecting.
	RefreshToken string

	// TenantDomainName overrides tenant resolution from the request.
	TenantDomainName string

	// TenantCustomDomain overrides tenant resolution from the request.
	TenantCustomDomain string
}
