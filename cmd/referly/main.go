package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/migration"
	"github.com/smallbiznis/referly/internal/observability"
	"github.com/smallbiznis/referly/internal/scheduler"
	"github.com/smallbiznis/referly/internal/server"
	"github.com/smallbiznis/referly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the referral domains behind it
		server.Module,

		// Background sweeps
		scheduler.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

// RegisterSnowflake builds the ID node; each replica needs its own NODE_ID.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
