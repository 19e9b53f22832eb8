package tenantkit

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
)

const authorizePath = "/api/v1/oauth2/authorize"

// authorizeParams collects everything needed to build the authorize URL.
type authorizeParams struct {
	host         string
	redirectURI  string
	state        string
	codeVerifier string
	nonce        string
	loginHint    string
}

// authorizeURL builds the platform's authorize-endpoint URL with the PKCE
// S256 challenge derived from the code verifier.
func (s *AuthService) authorizeURL(p authorizeParams) string {
	q := url.Values{}
	q.Set("client_id", s.cfg.ClientID)
	q.Set("redirect_uri", p.redirectURI)
	q.Set("response_type", "code")
	q.Set("state", p.state)
	q.Set("scope", strings.Join(s.cfg.Scopes, " "))
	q.Set("code_challenge", codeChallenge(p.codeVerifier))
	q.Set("code_challenge_method", "S256")
	q.Set("nonce", p.nonce)
	if p.loginHint != "" {
		q.Set("login_hint", p.loginHint)
	}

	return "https://" + p.host + authorizePath + "?" + q.Encode()
}

// codeChallenge derives the S256 PKCE challenge: unpadded URL-safe base64 of
// the verifier's SHA-256 digest.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
