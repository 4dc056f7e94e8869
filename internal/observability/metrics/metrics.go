package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	referralsCreated  metric.Int64Counter
	referralsUpdated  metric.Int64Counter
	referralsVerified metric.Int64Counter
	codeCollisions    metric.Int64Counter
	metricsRecomputed metric.Int64Counter
	notifications     metric.Int64Counter
	rewardPayouts     metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled metrics get a
// no-op provider so instruments can always be created.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	log.Info("metrics exporter configured",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the referral program counters on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(orDefault(cfg.ServiceName, "referly"))
	m := &Metrics{}

	instruments := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.referralsCreated, "referly_referrals_created_total", "Referrals opened, including ones opened from a standing code."},
		{&m.referralsUpdated, "referly_referrals_updated_total", "Referral updates by resulting status."},
		{&m.referralsVerified, "referly_referrals_verified_total", "Installations verified against a code."},
		{&m.codeCollisions, "referly_referral_code_collisions_total", "Generated codes discarded because they were taken."},
		{&m.metricsRecomputed, "referly_referral_metrics_recomputed_total", "Dashboard snapshot recomputations."},
		{&m.notifications, "referly_notifications_total", "Notification attempts by channel and outcome."},
		{&m.rewardPayouts, "referly_reward_payouts_total", "Reward payout attempts by provider and status."},
		{&m.rateLimitAllowed, "referly_rate_limit_allowed_total", "Requests admitted by a rate limiter."},
		{&m.rateLimitDenied, "referly_rate_limit_denied_total", "Requests rejected by a rate limiter."},
	}
	for _, inst := range instruments {
		counter, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", inst.name, err)
		}
		*inst.dst = counter
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil || counter == nil {
		return
	}
	if len(attrs) == 0 {
		counter.Add(ctx, 1)
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func (m *Metrics) RecordReferralCreated(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.referralsCreated)
	}
}

// RecordReferralUpdated labels by the status the referral ended up in.
func (m *Metrics) RecordReferralUpdated(ctx context.Context, status string) {
	if m != nil {
		m.add(ctx, m.referralsUpdated, label("status", status))
	}
}

func (m *Metrics) RecordReferralVerified(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.referralsVerified)
	}
}

func (m *Metrics) RecordCodeCollision(ctx context.Context, policy string) {
	if m != nil {
		m.add(ctx, m.codeCollisions, label("policy", policy))
	}
}

// RecordMetricsRecomputed labels by what triggered the recompute and whether
// the stored snapshot changed.
func (m *Metrics) RecordMetricsRecomputed(ctx context.Context, trigger string, changed bool) {
	if m != nil {
		m.add(ctx, m.metricsRecomputed, label("trigger", trigger), attribute.Bool("changed", changed))
	}
}

func (m *Metrics) RecordNotification(ctx context.Context, channel, outcome string) {
	if m != nil {
		m.add(ctx, m.notifications, label("channel", channel), label("outcome", outcome))
	}
}

func (m *Metrics) RecordRewardPayout(ctx context.Context, provider, status string) {
	if m != nil {
		m.add(ctx, m.rewardPayouts, label("provider", provider), label("status", status))
	}
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m != nil {
		m.add(ctx, m.rateLimitAllowed, label("endpoint", endpoint))
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m != nil {
		m.add(ctx, m.rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status":      {},
	"status_code": {},
	"policy":      {},
	"trigger":     {},
	"changed":     {},
	"channel":     {},
	"outcome":     {},
	"provider":    {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
