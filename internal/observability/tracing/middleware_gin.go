package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/referly/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "referly/http"

// GinMiddleware opens a server span per request. The span is named after the
// matched route once routing is done, and carries the contractor and actor
// role resolved by the auth middleware. Referral codes stay out of spans.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Bool("referral.code_resolved", c.GetString("referral_code") != ""),
		}
		// The auth middleware swaps c.Request, so read identity after Next.
		reqCtx := c.Request.Context()
		if contractorID := obscontext.ContractorIDFromContext(reqCtx); contractorID != "" {
			attrs = append(attrs, attribute.String("contractor.id", contractorID))
		}
		if role, _ := obscontext.ActorFromContext(reqCtx); role != "" {
			attrs = append(attrs, attribute.String("actor.role", role))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			if safeErr := SafeError(last.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
