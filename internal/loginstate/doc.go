// Package loginstate manages the ephemeral state of an in-flight login attempt.
//
// A login attempt must survive the browser redirect to the identity platform and
// back without any server-side storage. The state record (CSRF state nonce, PKCE
// code verifier, redirect URI, tenant context) is therefore encrypted with
// AES-256-GCM and carried entirely in a client-held cookie. Multiple concurrent
// attempts (e.g. several tabs) are supported through a bounded FIFO set of
// cookies keyed by state nonce and issue time.
package loginstate
