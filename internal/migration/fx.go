package migration

import (
	"github.com/smallbiznis/referly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		if cfg.Type != db.TypePostgres {
			log.Info("building schema from models", zap.String("db_type", cfg.Type))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
