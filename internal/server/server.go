package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/referly/internal/analytics"
	analyticsdomain "github.com/smallbiznis/referly/internal/analytics/domain"
	"github.com/smallbiznis/referly/internal/auth"
	authdomain "github.com/smallbiznis/referly/internal/auth/domain"
	"github.com/smallbiznis/referly/internal/auth/session"
	"github.com/smallbiznis/referly/internal/authorization"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/notification"
	"github.com/smallbiznis/referly/internal/observability"
	obsmiddleware "github.com/smallbiznis/referly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	obstracing "github.com/smallbiznis/referly/internal/observability/tracing"
	"github.com/smallbiznis/referly/internal/providers"
	"github.com/smallbiznis/referly/internal/ratelimit"
	"github.com/smallbiznis/referly/internal/referral"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referralmetric"
	referralmetricdomain "github.com/smallbiznis/referly/internal/referralmetric/domain"
	"github.com/smallbiznis/referly/internal/reward"
	rewarddomain "github.com/smallbiznis/referly/internal/reward/domain"
	"github.com/smallbiznis/referly/internal/user"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	auth.Module,
	user.Module,
	referral.Module,
	referralmetric.Module,
	reward.Module,
	analytics.Module,
	notification.Module,
	providers.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:                 obsCfg.Debug(),
		ErrorClassifier:       classifyErrorForLog,
		LogPublicLookupMisses: obsCfg.LogPublicMiss,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	authsvc      authdomain.Service
	sessions     *session.Manager
	authzSvc     authorization.Service
	userSvc      userdomain.Service
	referralSvc  referraldomain.Service
	metricSvc    referralmetricdomain.Service
	rewardSvc    rewarddomain.Service
	analyticsSvc analyticsdomain.Service
	lookupLimit  *ratelimit.PublicLookupLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Authsvc      authdomain.Service
	Sessions     *session.Manager
	AuthzSvc     authorization.Service
	UserSvc      userdomain.Service
	ReferralSvc  referraldomain.Service
	MetricSvc    referralmetricdomain.Service
	RewardSvc    rewarddomain.Service
	AnalyticsSvc analyticsdomain.Service
	LookupLimit  *ratelimit.PublicLookupLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http"),
		authsvc:      p.Authsvc,
		sessions:     p.Sessions,
		authzSvc:     p.AuthzSvc,
		userSvc:      p.UserSvc,
		referralSvc:  p.ReferralSvc,
		metricSvc:    p.MetricSvc,
		rewardSvc:    p.RewardSvc,
		analyticsSvc: p.AnalyticsSvc,
		lookupLimit:  p.LookupLimit,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerPublicRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	group := s.engine.Group("/auth")

	group.POST("/register", s.Register)
	group.POST("/login", s.Login)
	group.POST("/logout", s.Logout)
	group.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.POST("/homeowners", s.authorize(authorization.ObjectHomeowner, authorization.ActionHomeownerCreate), s.CreateHomeowner)
	api.POST("/homeowners/import", s.authorize(authorization.ObjectHomeowner, authorization.ActionHomeownerImport), s.ImportHomeowners)
	api.GET("/homeowners", s.authorize(authorization.ObjectHomeowner, authorization.ActionHomeownerView), s.ListHomeowners)

	api.GET("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionReferralView), s.ListReferrals)
	api.POST("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionReferralCreate), s.CreateReferral)
	api.POST("/referrals/verify", s.authorize(authorization.ObjectReferral, authorization.ActionReferralVerify), s.VerifyReferral)
	api.GET("/referrals/:code", s.authorize(authorization.ObjectReferral, authorization.ActionReferralView), s.GetReferral)
	api.PATCH("/referrals/:id", s.authorize(authorization.ObjectReferral, authorization.ActionReferralUpdate), s.UpdateReferral)

	api.GET("/metrics/referrals", s.authorize(authorization.ObjectReferralMetric, authorization.ActionReferralMetricView), s.GetReferralMetrics)

	api.GET("/rewards", s.authorize(authorization.ObjectReward, authorization.ActionRewardView), s.ListRewards)
	api.POST("/rewards/:referral_id/payout", s.authorize(authorization.ObjectReward, authorization.ActionRewardPayout), s.TriggerPayout)

	api.GET("/analytics/events", s.authorize(authorization.ObjectAnalyticsEvent, authorization.ActionAnalyticsEventView), s.ListAnalyticsEvents)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public")
	public.GET("/referrals/:code", s.PublicLookupRateLimit(), s.LookupReferral)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
