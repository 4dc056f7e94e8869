package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/referly/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	RequestIDHeader = "X-Request-Id"

	// ReferralCodeKey is the gin key handlers set once a request resolves a
	// referral code, so the access log can be searched by code.
	ReferralCodeKey = "referral_code"

	publicLookupPrefix = "/public/referrals"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
	// LogPublicLookupMisses keeps 404s on the public code lookup at info.
	// They are mostly mistyped or expired share links and default to debug.
	LogPublicLookupMisses bool
}

// GinMiddleware assigns a request id and writes one access log line per
// request once the handler chain has run.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if code := c.GetString(ReferralCodeKey); code != "" {
			fields = append(fields, zap.String("referral_code", code))
		}

		var errorType string
		if last := c.Errors.Last(); last != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.NamedError("cause", last.Err))
			}
		}

		level := accessLogLevel(cfg, route, status, errorType)
		if ce := FromContext(c.Request.Context()).Check(level, "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	// Header lookup is canonicalised, so X-Request-ID matches too.
	if id := strings.TrimSpace(c.GetHeader(RequestIDHeader)); id != "" && len(id) <= 128 {
		return id
	}
	if id := strings.TrimSpace(c.GetString("request_id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func accessLogLevel(cfg MiddlewareConfig, route string, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/metrics" || route == "/health":
		return zapcore.DebugLevel
	case strings.HasPrefix(route, publicLookupPrefix) && status == http.StatusNotFound && errorType == "not_found" && !cfg.LogPublicLookupMisses:
		return zapcore.DebugLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
