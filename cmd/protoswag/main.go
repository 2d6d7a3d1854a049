// Command protoswag serves the methods of a protobuf service as plain HTTP
// operations described by a generated OpenAPI document.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/i2y/protoswag/configs"
)

const (
	serviceName = "protoswag"
	version     = "0.1.0"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Serve protobuf RPC methods as OpenAPI described HTTP operations",
		Long: `protoswag maps the methods of a protobuf service onto HTTP operations.

Method tags decide where each request field travels (query, path, header or
body). The resulting plans are published as an OpenAPI 3.0 document and served
by a plain HTTP server which assembles the binary request and dispatches it.

Example:
  protoswag gen -i demo.proto -c 'Add:get,flat' -o openapi.yaml
  PROTOSWAG_UPSTREAM=localhost:50051 protoswag serve`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newGenCommand(), newCallCommand())
	return root
}

// newLogger writes text logs to stderr. In stdio MCP mode stdout carries the
// protocol, so logs go to a file instead.
func newLogger(cfg *configs.Config) *slog.Logger {
	level := cfg.ParsedLogLevel()
	var w io.Writer = os.Stderr
	if cfg.MCPTransport == "stdio" {
		logFile, err := os.OpenFile(filepath.Join(os.TempDir(), "protoswag.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w = io.Discard
		} else {
			w = logFile
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// initOtelProvider initializes the OpenTelemetry SDK: an OTLP trace exporter
// when an endpoint is configured, and stdout span and metric exporters when
// requested. It returns a shutdown function to be called on application exit.
func initOtelProvider(ctx context.Context, cfg *configs.Config, logger *slog.Logger) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if cfg.OtelExporterOtlpEndpoint == "" && !cfg.OtelExporterStdout {
		logger.Info("No OpenTelemetry exporter configured, tracing disabled.")
		return func(context.Context) error { return nil }, nil
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(r)}

	if cfg.OtelExporterOtlpEndpoint != "" {
		logger.Info("Initializing OTLP exporter.", slog.String("endpoint", cfg.OtelExporterOtlpEndpoint))

		var creds grpc.DialOption
		if cfg.OtlpInsecure() {
			creds = grpc.WithTransportCredentials(insecure.NewCredentials())
			logger.Warn("Using insecure connection for OTLP exporter.")
		} else {
			creds = grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
		}
		conn, err := grpc.NewClient(cfg.OtelExporterOtlpEndpoint, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection to OTLP endpoint: %w", err)
		}
		shutdowns = append(shutdowns, func(context.Context) error { return conn.Close() })

		traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExporter))
	}

	if cfg.OtelExporterStdout {
		traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExporter))

		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(r),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
		logger.Info("OpenTelemetry stdout exporters configured.")
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown)
	logger.Info("OpenTelemetry TracerProvider configured.")

	return shutdown, nil
}
