package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// defaultHTTPTimeout bounds every call to the platform.
	defaultHTTPTimeout = 30 * time.Second

	// API paths on the platform application domain.
	tokenPath    = "/api/v1/oauth2/token"
	userinfoPath = "/api/v1/oauth2/userinfo"
	revokePath   = "/api/v1/oauth2/revoke"
	usersPath    = "/api/v1/users/"
)

// Config holds the platform client configuration.
type Config struct {
	// ApplicationDomain is the platform application's vanity domain,
	// e.g. "myapp.tenantkit.dev" (required).
	ApplicationDomain string

	// ClientID and ClientSecret authenticate token-endpoint calls (required).
	ClientID     string
	ClientSecret string

	// HTTPClient is an optional custom HTTP client. Defaults to a client
	// with a 30-second timeout.
	HTTPClient *http.Client

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Client talks to the platform's OAuth2 and user endpoints.
type Client struct {
	baseURL    string
	conf       *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a platform client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.ApplicationDomain == "" {
		return nil, fmt.Errorf("application domain is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: "https://" + cfg.ApplicationDomain,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: "https://" + cfg.ApplicationDomain + tokenPath,
				// The platform requires HTTP Basic client authentication.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// TokenResponse is the parsed token-endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// UserInfo is the opaque claim set returned by the userinfo endpoint.
type UserInfo map[string]any

// TryGet looks up a claim, reporting whether it is present.
func (u UserInfo) TryGet(key string) (any, bool) {
	v, ok := u[key]
	return v, ok
}

// Get looks up a claim, returning an error when it is absent.
func (u UserInfo) Get(key string) (any, error) {
	v, ok := u[key]
	if !ok {
		return nil, fmt.Errorf("userinfo claim %q not found", key)
	}
	return v, nil
}

// TryString looks up a claim as a string. Non-string values report false.
func (u UserInfo) TryString(key string) (string, bool) {
	v, ok := u[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr looks up a string claim, falling back to def when absent.
func (u UserInfo) StringOr(key, def string) string {
	if s, ok := u.TryString(key); ok {
		return s
	}
	return def
}

// ExchangeCode exchanges an authorization code plus PKCE verifier for tokens.
// A provider rejection with error code "invalid_grant" is surfaced as
// ErrInvalidGrant so callers can restart the login instead of failing hard.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	conf := *c.conf
	conf.RedirectURL = redirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	return tokenResponseFrom(token), nil
}

// Refresh obtains a fresh token set using a refresh token.
// 4xx responses are classified as ErrInvalidRefreshToken (non-retryable);
// 5xx responses and transport failures are wrapped in RetryableError.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}

	resp := tokenResponseFrom(token)
	if resp.RefreshToken == "" {
		// The platform does not rotate refresh tokens; keep the current one.
		resp.RefreshToken = refreshToken
	}
	return resp, nil
}

// Revoke revokes a refresh token at the platform. Uses HTTP Basic client
// authentication per RFC 7009.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+revokePath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.conf.ClientID, c.conf.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Err: fmt.Errorf("revoke request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token revocation failed with status %d", resp.StatusCode)
	}
	return nil
}

// FetchUserInfo retrieves the authenticated user's claims with a Bearer token.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+userinfoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return info, nil
}

// GetUser retrieves a user record from the platform's user API.
// The token is typically supplied by a MachineTokenSource.
func (c *Client) GetUser(ctx context.Context, accessToken, userID string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usersPath+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user request failed with status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return info, nil
}

// PatchUser applies a partial update to a user record.
func (c *Client) PatchUser(ctx context.Context, accessToken, userID string, patch map[string]any) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to serialize user patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+usersPath+url.PathEscape(userID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build user patch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("user patch request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("user patch failed with status %d", resp.StatusCode)
	}
	return nil
}

// tokenResponseFrom converts an oauth2.Token into the platform response shape.
func tokenResponseFrom(token *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}

	if idToken, ok := token.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		resp.Scope = scope
	}

	if token.ExpiresIn > 0 {
		resp.ExpiresIn = int(token.ExpiresIn)
	} else if !token.Expiry.IsZero() {
		resp.ExpiresIn = int(time.Until(token.Expiry).Seconds())
	}

	return resp
}

// classifyExchangeError maps a code-exchange failure to a typed outcome.
// A 400 response carrying "invalid_grant" means the code was already used or
// expired; everything else during exchange is fatal.
func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %s", ErrInvalidGrant, re.ErrorDescription)
		}
		return fmt.Errorf("code exchange failed with status %d: %s", re.Response.StatusCode, re.ErrorCode)
	}
	return fmt.Errorf("code exchange failed: %w", err)
}

// classifyRefreshError maps a refresh failure to a typed outcome: 4xx means
// the refresh token is no longer usable, 5xx and transport failures are
// retryable, and anything else (such as an unparseable 200 response) is fatal.
func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := re.Response.StatusCode
		if status >= 400 && status < 500 {
			return fmt.Errorf("%w: status %d", ErrInvalidRefreshToken, status)
		}
		return &RetryableError{Err: fmt.Errorf("refresh failed with status %d", status)}
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return &RetryableError{Err: fmt.Errorf("refresh request failed: %w", err)}
	}

	return fmt.Errorf("refresh response invalid: %w", err)
}
