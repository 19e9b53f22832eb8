// Package instrumentation provides OpenTelemetry meters and tracers for the
// auth flow. Providers start as no-ops so callers never need nil checks
// around metric recording; SetProviders installs real SDK providers when the
// embedding service exports telemetry.
package instrumentation
