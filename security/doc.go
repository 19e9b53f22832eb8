// Package security provides supporting security features for the auth flow:
// audit logging with PII hashing, per-client rate limiting, client IP
// extraction behind proxies, and response header hardening.
package security
