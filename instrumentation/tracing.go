package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// Never put credential values (access tokens, refresh tokens, authorization
// codes, CSRF secrets) on spans. Attributes carry metadata only: tenant
// names, result kinds, error codes.
const (
	AttrTenantDomain       = "auth.tenant_domain"
	AttrTenantCustomDomain = "auth.tenant_custom_domain"
	AttrCallbackResult     = "auth.callback.result"
	AttrErrorCode          = "auth.error_code"
	AttrRefreshAttempt     = "auth.refresh.attempt"
	AttrProviderOperation  = "provider.operation"
	AttrProviderStatus     = "provider.status"
)

// RecordError marks the span as failed and records the error event.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StringAttr builds a string span attribute.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// IntAttr builds an int span attribute.
func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}
