package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/referly/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the process logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process-wide logger, installs it as the zap global and
// flushes it on shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(firstNonEmpty(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	core := zapcore.NewCore(newEncoder(cfg), zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	if !cfg.Debug {
		core = zapcore.NewSamplerWithOptions(core,
			durationOr(cfg.SamplingWindow, time.Second),
			intOr(cfg.SamplingInitial, 100),
			intOr(cfg.SamplingThereafter, 100),
		)
	}

	options := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log := zap.New(core, options...).With(
		zap.String("service", firstNonEmpty(cfg.ServiceName, "referly")),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.StopHook(func() {
			_ = log.Sync()
		}))
	}
	return log, nil
}

func newEncoder(cfg Config) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// FromContext returns the global logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the request, contractor, actor and trace identifiers
// carried by ctx. Identifiers that are not set are omitted.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	role, actorID := obscontext.ActorFromContext(ctx)
	pairs := [][2]string{
		{"request_id", obscontext.RequestIDFromContext(ctx)},
		{"contractor_id", obscontext.ContractorIDFromContext(ctx)},
		{"actor_role", role},
		{"actor_id", actorID},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		pairs = append(pairs,
			[2]string{"trace_id", sc.TraceID().String()},
			[2]string{"span_id", sc.SpanID().String()},
		)
	}

	fields := make([]zap.Field, 0, len(pairs))
	for _, pair := range pairs {
		if pair[1] != "" {
			fields = append(fields, zap.String(pair[0], pair[1]))
		}
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func firstNonEmpty(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func intOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
