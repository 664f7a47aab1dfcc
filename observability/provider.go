// Package observability exports the metrics labkit records about its outbound
// calls. When metrics are disabled every operation is a no-op.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/field-workshops/labkit/config"
)

const (
	// EndpointStdout writes metrics to the provider output instead of a collector.
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"
)

// Provider owns the meter provider of one labctl run.
type Provider interface {
	MeterProvider() metric.MeterProvider
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Service identifies the process in exported resources.
type Service struct {
	Name    string
	Version string
}

type provider struct {
	meterProvider *sdkmetric.MeterProvider
}

// NewProvider builds a Provider from cfg. Stdout exports go to out, or to
// stderr when out is nil. A disabled config yields a no-op provider.
func NewProvider(cfg config.MetricsConfig, svc Service, out io.Writer) (Provider, error) {
	if !cfg.Enabled {
		return newNoopProvider(), nil
	}

	res, err := createResource(svc)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(cfg, out)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	return &provider{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		),
	}, nil
}

// Install builds a Provider and registers it as the global meter provider,
// which the clients of every labkit package fall back to.
func Install(cfg config.MetricsConfig, svc Service, out io.Writer) (Provider, error) {
	p, err := NewProvider(cfg, svc, out)
	if err != nil {
		return nil, err
	}
	if cfg.Enabled {
		otel.SetMeterProvider(p.MeterProvider())
	}
	return p, nil
}

func (p *provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

func (p *provider) ForceFlush(ctx context.Context) error {
	return p.meterProvider.ForceFlush(ctx)
}

// Shutdown exports pending measurements and releases the exporter.
func (p *provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

func createResource(svc Service) (*resource.Resource, error) {
	custom, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(svc.Name),
			semconv.ServiceVersion(svc.Version),
		),
	)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), custom)
}

func createExporter(cfg config.MetricsConfig, out io.Writer) (sdkmetric.Exporter, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, ErrMissingEndpoint
	case cfg.Endpoint == EndpointStdout:
		if out == nil {
			out = os.Stderr
		}
		return stdoutmetric.New(stdoutmetric.WithWriter(out), stdoutmetric.WithPrettyPrint())
	}

	switch cfg.Protocol {
	case ProtocolHTTP, "":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case ProtocolGRPC:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("metrics protocol '%s': %w", cfg.Protocol, ErrInvalidProtocol)
	}
}

// noopProvider is used when metrics are disabled.
type noopProvider struct {
	meterProvider metric.MeterProvider
}

func newNoopProvider() *noopProvider {
	return &noopProvider{meterProvider: metricnoop.NewMeterProvider()}
}

func (n *noopProvider) MeterProvider() metric.MeterProvider {
	return n.meterProvider
}

func (n *noopProvider) ForceFlush(_ context.Context) error {
	return nil
}

func (n *noopProvider) Shutdown(_ context.Context) error {
	return nil
}
