package server

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referly/internal/actorcontext"
	obscontext "github.com/smallbiznis/referly/internal/observability/context"
	"github.com/smallbiznis/referly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	contextUserIDKey   = "user_id"
	contextReferralKey = logger.ReferralCodeKey

	rateLimitEndpointPublicLookup = "public_referral_lookup"
	rateLimitReasonClientRate     = "client-rate"
)

// AuthRequired resolves the session cookie into the request actor.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		actor := actorcontext.ActorFor(principal.User)
		ctx := actorcontext.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, string(actor.Role), actor.UserID.String())
		if actor.ContractorID != 0 {
			ctx = obscontext.WithContractorID(ctx, actor.ContractorID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, actor.UserID.String())
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorcontext.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func requestActor(c *gin.Context) (actorcontext.Actor, bool) {
	return actorcontext.ActorFromContext(c.Request.Context())
}

// PublicLookupRateLimit throttles anonymous code checks per client address.
// A failing limiter lets the request through.
func (s *Server) PublicLookupRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.lookupLimit.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.lookupLimit.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("public lookup rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			denyPublicLookup(c, result.RetryAfter.Seconds(), s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, rateLimitEndpointPublicLookup, s.obsMetrics)
		c.Next()
	}
}

func denyPublicLookup(c *gin.Context, retryAfter float64, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("public lookup rate limit exceeded",
		zap.String("reason", rateLimitReasonClientRate),
		zap.String("endpoint", rateLimitEndpointPublicLookup),
	)
	recordRateLimitDenied(ctx, rateLimitEndpointPublicLookup, rateLimitReasonClientRate, metrics)

	seconds := int(retryAfter)
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonClientRate)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}
