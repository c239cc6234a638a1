package harness

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/log/global"
	olog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/msykam-r7/policy-content/evidence"
)

const meterName = "github.com/msykam-r7/policy-content/harness"

var serviceName = semconv.ServiceNameKey.String("policyharness")

// SetupTelemetry wires the OTel SDK to an OTLP gRPC endpoint and returns
// an evidence emitter plus a shutdown function. With an empty endpoint the
// global no-op providers stay in place and the emitter is inert, so
// callers never branch on whether telemetry is on.
func SetupTelemetry(ctx context.Context, endpoint string) (*evidence.Emitter, func(context.Context) error, error) {
	noShutdown := func(context.Context) error { return nil }

	if endpoint == "" {
		observer, err := evidence.NewObserver(otel.Meter(meterName))
		if err != nil {
			return nil, noShutdown, err
		}
		return evidence.NewEmitter(observer), noShutdown, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, noShutdown, err
	}

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	res, err := resource.New(ctx, resource.WithAttributes(serviceName))
	if err != nil {
		return nil, noShutdown, err
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, noShutdown, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(3*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	logExporter, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, noShutdown, err
	}
	logProvider := olog.NewLoggerProvider(
		olog.WithProcessor(olog.NewSimpleProcessor(logExporter)),
		olog.WithResource(res),
	)
	global.SetLoggerProvider(logProvider)

	shutdownFuncs = append(shutdownFuncs, logProvider.Shutdown, meterProvider.Shutdown)

	observer, err := evidence.NewObserver(otel.Meter(meterName))
	if err != nil {
		return nil, shutdown, err
	}
	return evidence.NewEmitter(observer), shutdown, nil
}
