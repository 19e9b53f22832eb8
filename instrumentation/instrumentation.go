package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceVersion is used when none is provided
	DefaultServiceVersion = "unknown"

	scopePrefix = "github.com/tenantkit/tenantkit/"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service embedding the SDK
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Resource allows custom resource attributes.
	// If nil, a default resource is created with service name and version.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics
}

// New creates a new instrumentation instance. Providers start as no-ops so
// recording is always safe; telemetry flows only after SetProviders installs
// real providers, typically SDK providers built with this instance's Resource.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "tenantkit"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:         config,
		resource:       res,
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// SetProviders installs caller-supplied providers, e.g. an SDK meter provider
// with a Prometheus or OTLP exporter. Must be called before metrics are used.
func (i *Instrumentation) SetProviders(mp metric.MeterProvider, tp trace.TracerProvider) error {
	if mp != nil {
		i.meterProvider = mp
	}
	if tp != nil {
		i.tracerProvider = tp
	}

	metrics, err := newMetrics(i)
	if err != nil {
		return fmt.Errorf("failed to recreate metrics: %w", err)
	}
	i.metrics = metrics
	return nil
}

// Meter returns a named meter for the given scope, typically a layer name
// like "auth", "provider", or "session".
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Resource returns the resource describing this service. Attach it to the
// SDK providers handed to SetProviders so exported telemetry carries the
// service name and version.
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}
