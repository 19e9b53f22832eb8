package loginstate

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// State is the ephemeral record of one login attempt. It is created when the
// login flow starts, round-trips through the browser as an encrypted cookie,
// and is consumed exactly once when the callback arrives.
type State struct {
	// State is the OAuth2 state nonce bound to this attempt.
	State string `json:"state"`

	// CodeVerifier is the PKCE code verifier whose S256 challenge was sent
	// to the authorize endpoint.
	CodeVerifier string `json:"codeVerifier"`

	// RedirectURI is the callback URI the authorization code was issued for.
	RedirectURI string `json:"redirectUri"`

	// ReturnURL is where the user should land after the login completes.
	ReturnURL string `json:"returnUrl,omitempty"`

	// TenantDomainName is the tenant resolved when the flow started.
	TenantDomainName string `json:"tenantDomainName,omitempty"`

	// CustomState carries opaque application-defined values through the flow.
	CustomState map[string]any `json:"customState,omitempty"`
}

// New creates a login state with a fresh state nonce and PKCE code verifier.
func New(redirectURI, returnURL, tenantDomainName string, customState map[string]any) (*State, error) {
	state, err := RandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state nonce: %w", err)
	}
	verifier, err := RandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &State{
		State:            state,
		CodeVerifier:     verifier,
		RedirectURI:      redirectURI,
		ReturnURL:        returnURL,
		TenantDomainName: tenantDomainName,
		CustomState:      customState,
	}, nil
}

// RandomToken returns 32 bytes of cryptographic randomness, URL-safe encoded.
func RandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
