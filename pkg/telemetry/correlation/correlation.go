// Package correlation ties together the analytics events, notifications and
// payouts produced by a single referral operation.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/referly/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// ExtractCorrelationID returns the correlation id on ctx, or "".
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID keeps an existing id. Otherwise an HTTP request id is
// reused so events can be joined to the access log; background work with
// neither gets a fresh ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := obscontext.RequestIDFromContext(ctx)
	if id == "" {
		id = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, id), id
}

// AnnotateEventData copies the request and trace identifiers on ctx into an
// analytics payload without overwriting keys already present.
func AnnotateEventData(ctx context.Context, data map[string]any) {
	if data == nil {
		return
	}
	set := func(key, value string) {
		if _, exists := data[key]; !exists && value != "" {
			data[key] = value
		}
	}
	set("request_id", obscontext.RequestIDFromContext(ctx))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		set("trace_id", sc.TraceID().String())
		set("span_id", sc.SpanID().String())
	}
}
