package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the auth flow
type Metrics struct {
	// Login flow
	LoginStarted       metric.Int64Counter
	CallbackCompleted  metric.Int64Counter
	CallbackRedirected metric.Int64Counter
	CodeExchanged      metric.Int64Counter
	TokenRefreshed     metric.Int64Counter
	TokenRevoked       metric.Int64Counter

	// Security
	CSRFRejected      metric.Int64Counter
	RateLimitExceeded metric.Int64Counter

	// Platform API calls
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	authMeter := inst.Meter("auth")
	securityMeter := inst.Meter("security")
	providerMeter := inst.Meter("provider")

	m := &Metrics{}

	var err error
	m.LoginStarted, err = authMeter.Int64Counter(
		"auth.login.started",
		metric.WithDescription("Number of login redirects constructed"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login.started counter: %w", err)
	}

	m.CallbackCompleted, err = authMeter.Int64Counter(
		"auth.callback.completed",
		metric.WithDescription("Number of callbacks that produced a session"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.completed counter: %w", err)
	}

	m.CallbackRedirected, err = authMeter.Int64Counter(
		"auth.callback.redirected",
		metric.WithDescription("Number of callbacks that restarted the login"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.redirected counter: %w", err)
	}

	m.CodeExchanged, err = authMeter.Int64Counter(
		"auth.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = authMeter.Int64Counter(
		"auth.token.refreshed",
		metric.WithDescription("Number of access tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.TokenRevoked, err = authMeter.Int64Counter(
		"auth.token.revoked",
		metric.WithDescription("Number of refresh tokens revoked at logout"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	m.CSRFRejected, err = securityMeter.Int64Counter(
		"security.csrf.rejected",
		metric.WithDescription("Number of requests rejected by CSRF validation"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create csrf.rejected counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"security.ratelimit.exceeded",
		metric.WithDescription("Number of requests rejected by rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"provider.api.calls.total",
		metric.WithDescription("Total number of platform API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"provider.api.duration",
		metric.WithDescription("Platform API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	m.ProviderAPIErrors, err = providerMeter.Int64Counter(
		"provider.api.errors",
		metric.WithDescription("Number of failed platform API calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.errors counter: %w", err)
	}

	return m, nil
}
