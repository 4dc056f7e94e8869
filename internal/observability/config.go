package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/referly/internal/config"
	"github.com/spf13/viper"
)

// Config holds logging, tracing and metrics settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// DBLogLevel is one of silent, error, warn or info.
	DBLogLevel    string
	DBSlowQuery   time.Duration
	LogPublicMiss bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig reads observability settings from the environment, falling back
// to the application config for identity fields.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("DB_SLOW_QUERY_MS", 200)
	v.SetDefault("LOG_PUBLIC_LOOKUP_MISSES", false)
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	protocol := v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")
	if strings.TrimSpace(protocol) == "" {
		protocol = v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	}

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "referly"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          trimmed(v, "DEPLOYMENT_ENV"),
		Version:              trimmed(v, "SERVICE_VERSION"),
		LogLevel:             lowered(v, "LOG_LEVEL", "info"),
		LogFormat:            lowered(v, "LOG_FORMAT", "json"),
		DBLogLevel:           lowered(v, "DB_LOG_LEVEL", "warn"),
		DBSlowQuery:          time.Duration(v.GetInt("DB_SLOW_QUERY_MS")) * time.Millisecond,
		LogPublicMiss:        v.GetBool("LOG_PUBLIC_LOOKUP_MISSES"),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: trimmed(v, "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRatio:    clampRatio(v.GetFloat64("OTEL_SAMPLING_RATIO")),
	}
}

// Debug is true for debug logging or any non-production environment name
// used by local and CI runs.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func lowered(v *viper.Viper, key, fallback string) string {
	value := strings.ToLower(trimmed(v, key))
	if value == "" {
		return fallback
	}
	return value
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}
