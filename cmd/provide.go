package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"

	"github.com/webitel/chat-delivery-service/config"
)

// ProvideLogger builds the process-wide structured logger. The level is
// mutable: a config file change re-applies it without a restart.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel())

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	if cfg.Otel.Enabled {
		handler = teeHandler{handler, otelslog.NewHandler(ServiceName)}
	}

	logger := slog.New(handler).With(
		"service", cfg.Service.Name,
		"node_id", cfg.Service.NodeID,
	)
	slog.SetDefault(logger)

	cfg.Watch(logger, func(next *config.Config) {
		level.Set(next.LogLevel())
	})

	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

// ProvideTracing installs the OTLP trace pipeline when enabled. Tracers are
// acquired through the otel global, so a disabled pipeline costs nothing.
func ProvideTracing(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Otel.Enabled {
		return
	}

	var tp *sdktrace.TracerProvider
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			exporter, err := otlptracehttp.New(ctx,
				otlptracehttp.WithEndpoint(cfg.Otel.Endpoint),
				otlptracehttp.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("otlp exporter: %w", err)
			}

			res, err := resource.New(ctx,
				resource.WithAttributes(
					semconv.ServiceName(cfg.Service.Name),
					semconv.ServiceNamespace(ServiceNamespace),
					semconv.ServiceVersion(version),
					semconv.ServiceInstanceID(cfg.Service.NodeID),
				),
			)
			if err != nil {
				return fmt.Errorf("otel resource: %w", err)
			}

			tp = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(tp)
			logger.Info("tracing enabled", "endpoint", cfg.Otel.Endpoint)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if tp == nil {
				return nil
			}
			return tp.Shutdown(ctx)
		},
	})
}

// teeHandler duplicates records to every wrapped handler.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithGroup(name)
	}
	return next
}
