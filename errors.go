package tenantkit

import "fmt"

// Protocol error codes surfaced in AuthError.
const (
	// ErrorCodeLoginRequired is reported by the platform when the user must
	// authenticate again. It is handled internally as a login restart and
	// never reaches callers as an error.
	ErrorCodeLoginRequired = "login_required"

	// ErrorCodeInvalidGrant is reported when an authorization code or
	// refresh token is rejected.
	ErrorCodeInvalidGrant = "invalid_grant"

	// ErrorCodeMissingTenantSubdomain means the callback host carried no
	// tenant subdomain in subdomain mode.
	ErrorCodeMissingTenantSubdomain = "missing_tenant_subdomain"

	// ErrorCodeMissingTenantDomain means the callback carried no
	// tenant_domain query parameter in query-parameter mode.
	ErrorCodeMissingTenantDomain = "missing_tenant_domain"
)

// AuthError is a fatal protocol error: the platform reported an error other
// than login_required, or the callback request violated the tenant contract.
type AuthError struct {
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("auth protocol error: %s", e.Code)
	}
	return fmt.Sprintf("auth protocol error: %s: %s", e.Code, e.Description)
}

// ConfigError reports an invalid or contradictory configuration option.
// Raised at construction; never recoverable at runtime.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// ValidationError reports a malformed request: missing or duplicated query
// parameters, disallowed characters, an empty callback query string.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

func configErr(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

func validationErr(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
