package tenantkit

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestSecret() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
}

func testConfig() *AuthConfig {
	return &AuthConfig{
		ClientID:                        "client-id",
		ClientSecret:                    "client-secret",
		LoginStateSecret:                validTestSecret(),
		LoginURL:                        "https://app.example.com/auth/login",
		RedirectURI:                     "https://app.example.com/auth/callback",
		ApplicationDomain:               "auth.example.com",
		DangerouslyDisableSecureCookies: true,
	}
}

func subdomainTestConfig() *AuthConfig {
	cfg := testConfig()
	cfg.UseTenantSubdomains = true
	cfg.RootDomain = "app.example.com"
	cfg.LoginURL = "https://{tenant_domain}.app.example.com/auth/login"
	cfg.RedirectURI = "https://{tenant_domain}.app.example.com/auth/callback"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AuthConfig)
		wantErr string
	}{
		{
			name:   "valid query-param config",
			mutate: func(c *AuthConfig) {},
		},
		{
			name:    "missing client ID",
			mutate:  func(c *AuthConfig) { c.ClientID = "" },
			wantErr: "ClientID",
		},
		{
			name:    "missing client secret",
			mutate:  func(c *AuthConfig) { c.ClientSecret = "" },
			wantErr: "ClientSecret",
		},
		{
			name:    "missing login state secret",
			mutate:  func(c *AuthConfig) { c.LoginStateSecret = "" },
			wantErr: "LoginStateSecret",
		},
		{
			name:    "login state secret not base64",
			mutate:  func(c *AuthConfig) { c.LoginStateSecret = "%%%" },
			wantErr: "LoginStateSecret",
		},
		{
			name: "login state secret wrong length",
			mutate: func(c *AuthConfig) {
				c.LoginStateSecret = base64.StdEncoding.EncodeToString([]byte("short"))
			},
			wantErr: "LoginStateSecret",
		},
		{
			name:    "missing application domain",
			mutate:  func(c *AuthConfig) { c.ApplicationDomain = "" },
			wantErr: "ApplicationDomain",
		},
		{
			name: "subdomain mode without root domain",
			mutate: func(c *AuthConfig) {
				c.UseTenantSubdomains = true
				c.LoginURL = "https://{tenant_domain}.app.example.com/auth/login"
				c.RedirectURI = "https://{tenant_domain}.app.example.com/auth/callback"
			},
			wantErr: "RootDomain",
		},
		{
			name: "subdomain mode without placeholder in login URL",
			mutate: func(c *AuthConfig) {
				c.UseTenantSubdomains = true
				c.RootDomain = "app.example.com"
				c.RedirectURI = "https://{tenant_domain}.app.example.com/auth/callback"
			},
			wantErr: "LoginURL",
		},
		{
			name: "subdomain mode without placeholder in redirect URI",
			mutate: func(c *AuthConfig) {
				c.UseTenantSubdomains = true
				c.RootDomain = "app.example.com"
				c.LoginURL = "https://{tenant_domain}.app.example.com/auth/login"
			},
			wantErr: "RedirectURI",
		},
		{
			name: "query mode with placeholder in login URL",
			mutate: func(c *AuthConfig) {
				c.LoginURL = "https://{tenant_domain}.app.example.com/auth/login"
			},
			wantErr: "LoginURL",
		},
		{
			name: "query mode with placeholder in redirect URI",
			mutate: func(c *AuthConfig) {
				c.RedirectURI = "https://{tenant_domain}.app.example.com/auth/callback"
			},
			wantErr: "RedirectURI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			var configError *ConfigError
			require.ErrorAs(t, err, &configError)
			assert.Equal(t, tt.wantErr, configError.Field)
		})
	}
}

func TestValidateAppliesScopeDefaults(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"openid", "offline_access", "email"}, cfg.Scopes)

	cfg = testConfig()
	cfg.Scopes = []string{"openid", "profile"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TENANTKIT_CLIENT_ID", "env-client")
	t.Setenv("TENANTKIT_CLIENT_SECRET", "env-secret")
	t.Setenv("TENANTKIT_LOGIN_STATE_SECRET", validTestSecret())
	t.Setenv("TENANTKIT_LOGIN_URL", "https://app.example.com/auth/login")
	t.Setenv("TENANTKIT_REDIRECT_URI", "https://app.example.com/auth/callback")
	t.Setenv("TENANTKIT_APPLICATION_DOMAIN", "auth.example.com")
	t.Setenv("TENANTKIT_SCOPES", "openid,email")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, []string{"openid", "email"}, cfg.Scopes)
	assert.False(t, cfg.UseTenantSubdomains)
}

func TestFromEnvInvalid(t *testing.T) {
	t.Setenv("TENANTKIT_CLIENT_ID", "env-client")

	_, err := FromEnv()
	require.Error(t, err)
}
