// Package provider implements the HTTP client for the identity platform's
// OAuth2 endpoints: authorization-code exchange, token refresh, revocation,
// and userinfo retrieval.
//
// All token-endpoint operations authenticate with HTTP Basic using the
// configured client credentials. HTTP failures are classified into typed
// outcomes so callers can distinguish a rejected grant (restart the login)
// from a transient failure (retry) without inspecting status codes.
package provider
