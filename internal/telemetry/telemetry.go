package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config for observability setup.
type Config struct {
	ServiceName string            // e.g., "nyc-taxi-ingest"
	Exporter    string            // "none", "stdout" or "otlp"
	Endpoint    string            // OTLP endpoint, e.g., "localhost:4317" (required for "otlp")
	Protocol    string            // "grpc" or "http" (default "grpc" for "otlp")
	Insecure    bool              // Disable TLS for OTLP (development only)
	Headers     map[string]string // Custom headers for OTLP, e.g., for auth
	LogFile     string            // Run log path; appended to across runs
	LogLevel    string            // "debug", "info", "warn", "error" (default "info")
}

// fileCore builds the run-log core: one plain-text line per event,
// "<timestamp> - <LEVEL> - <message>", appended to the same file run after
// run. Lumberjack only rotates past 100MB, well beyond a single run.
func fileCore(path string, level zap.AtomicLevel) zapcore.Core {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.CallerKey = zapcore.OmitKey
	enc.ConsoleSeparator = " - "
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 5,
	})
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), writer, level)
}

func logLevel(s string) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if s == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		// Fallback to info on invalid
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// Init sets up tracer, meter and the run logger. With exporter "none" the
// OTEL providers are no-ops and only the file log is written.
func Init(
	cfg Config,
) (trace.Tracer, metric.Meter, *zap.SugaredLogger, func(context.Context) error, error) {
	ctx := context.Background()
	level := logLevel(cfg.LogLevel)

	var cores []zapcore.Core
	if cfg.LogFile != "" {
		cores = append(cores, fileCore(cfg.LogFile, level))
	}

	if cfg.Exporter == "none" || cfg.Exporter == "" {
		zapLogger := zap.New(zapcore.NewTee(cores...))
		tracer := tracenoop.NewTracerProvider().Tracer(cfg.ServiceName)
		meter := metricnoop.NewMeterProvider().Meter(cfg.ServiceName)
		shutdown := func(context.Context) error {
			_ = zapLogger.Sync()
			return nil
		}
		return tracer, meter, zapLogger.Sugar(), shutdown, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var traceExp sdktrace.SpanExporter
	var logExp log.Exporter
	var metricExp sdkmetric.Exporter
	switch cfg.Exporter {
	case "stdout":
		traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		logExp, err = stdoutlog.New()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		metricExp, err = stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, nil, nil, err
		}
	case "otlp":
		if cfg.Endpoint == "" {
			return nil, nil, nil, nil, fmt.Errorf("OTLP endpoint required")
		}
		if cfg.Protocol == "" {
			cfg.Protocol = "grpc"
		}
		traceExp, logExp, metricExp, err = otlpExporters(ctx, cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	default:
		return nil, nil, nil, nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	lp := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(logExp)),
		log.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	tracer := otel.Tracer(cfg.ServiceName)
	meter := otel.Meter(cfg.ServiceName)

	cores = append(cores, otelzap.NewCore(
		cfg.ServiceName,
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	))
	zapLogger := zap.New(zapcore.NewTee(cores...))

	shutdown := func(ctx context.Context) error {
		var shutdownErr error
		if err := tp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := lp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := mp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		_ = zapLogger.Sync()
		return shutdownErr
	}

	return tracer, meter, zapLogger.Sugar(), shutdown, nil
}

func otlpExporters(
	ctx context.Context,
	cfg Config,
) (sdktrace.SpanExporter, log.Exporter, sdkmetric.Exporter, error) {
	var traceClient otlptrace.Client
	var logExp log.Exporter
	var metricExp sdkmetric.Exporter
	var err error
	switch cfg.Protocol {
	case "grpc":
		topts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		lopts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
		mopts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			topts = append(topts, otlptracegrpc.WithInsecure())
			lopts = append(lopts, otlploggrpc.WithInsecure())
			mopts = append(mopts, otlpmetricgrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			topts = append(topts, otlptracegrpc.WithHeaders(cfg.Headers))
			lopts = append(lopts, otlploggrpc.WithHeaders(cfg.Headers))
			mopts = append(mopts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		traceClient = otlptracegrpc.NewClient(topts...)
		logExp, err = otlploggrpc.New(ctx, lopts...)
		if err != nil {
			return nil, nil, nil, err
		}
		metricExp, err = otlpmetricgrpc.New(ctx, mopts...)
		if err != nil {
			return nil, nil, nil, err
		}
	case "http":
		topts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		lopts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		mopts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			topts = append(topts, otlptracehttp.WithInsecure())
			lopts = append(lopts, otlploghttp.WithInsecure())
			mopts = append(mopts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			topts = append(topts, otlptracehttp.WithHeaders(cfg.Headers))
			lopts = append(lopts, otlploghttp.WithHeaders(cfg.Headers))
			mopts = append(mopts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		traceClient = otlptracehttp.NewClient(topts...)
		logExp, err = otlploghttp.New(ctx, lopts...)
		if err != nil {
			return nil, nil, nil, err
		}
		metricExp, err = otlpmetrichttp.New(ctx, mopts...)
		if err != nil {
			return nil, nil, nil, err
		}
	default:
		return nil, nil, nil, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
	}
	traceExp, err := otlptrace.New(ctx, traceClient)
	if err != nil {
		return nil, nil, nil, err
	}
	return traceExp, logExp, metricExp, nil
}
