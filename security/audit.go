package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	TenantID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"tenant_id", event.TenantID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs the start of an authorization redirect
func (a *Auditor) LogLoginStarted(ipAddress, tenantDomain string) {
	a.LogEvent(Event{
		Type:      "login_started",
		IPAddress: ipAddress,
		Details: map[string]any{
			"tenant_domain": tenantDomain,
		},
	})
}

// LogCallbackCompleted logs a callback that produced a session
func (a *Auditor) LogCallbackCompleted(userID, tenantID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "callback_completed",
		UserID:    userID,
		TenantID:  tenantID,
		IPAddress: ipAddress,
	})
}

// LogCallbackRedirect logs a callback that had to restart the login
func (a *Auditor) LogCallbackRedirect(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "callback_redirect",
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogTokenRefreshed logs when a session's tokens are refreshed
func (a *Auditor) LogTokenRefreshed(userID, tenantID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "token_refreshed",
		UserID:    userID,
		TenantID:  tenantID,
		IPAddress: ipAddress,
	})
}

// LogTokenRevoked logs when a refresh token is revoked at logout
func (a *Auditor) LogTokenRevoked(userID, tenantID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "token_revoked",
		UserID:    userID,
		TenantID:  tenantID,
		IPAddress: ipAddress,
	})
}

// LogCSRFRejected logs a request rejected by CSRF validation
func (a *Auditor) LogCSRFRejected(userID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "csrf_rejected",
		UserID:    userID,
		IPAddress: ipAddress,
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "auth_failure",
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
