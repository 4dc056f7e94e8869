package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/analytics"
	"github.com/smallbiznis/referly/internal/auth"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/notification"
	"github.com/smallbiznis/referly/internal/observability"
	"github.com/smallbiznis/referly/internal/providers"
	"github.com/smallbiznis/referly/internal/ratelimit"
	"github.com/smallbiznis/referly/internal/referral"
	"github.com/smallbiznis/referly/internal/referralmetric"
	"github.com/smallbiznis/referly/internal/reward"
	"github.com/smallbiznis/referly/internal/scheduler"
	"github.com/smallbiznis/referly/internal/user"
	"github.com/smallbiznis/referly/pkg/db"
	"go.uber.org/fx"
)

// A sweep-only worker for deployments that keep the HTTP replicas free of
// background jobs. The API binary should then run with SCHEDULER_ENABLED=false.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services the sweep drives
		user.Module,
		auth.Module,
		referral.Module,
		referralmetric.Module,
		reward.Module,
		analytics.Module,
		notification.Module,
		providers.Module,
		ratelimit.Module,

		// No server module!
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
