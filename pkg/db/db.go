package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/referly/internal/config"
	obslogger "github.com/smallbiznis/referly/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(ConfigFrom),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	AppConfig config.Config
	Config    Config
	Log       *zap.Logger
	GormLog   obslogger.GormLoggerConfig `optional:"true"`
}

func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	gormLog := p.GormLog
	if gormLog == (obslogger.GormLoggerConfig{}) {
		gormLog = obslogger.DefaultGormLoggerConfig()
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(gormLog),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Config.Name))); err != nil {
		return nil, fmt.Errorf("register tracing plugin: %w", err)
	}

	if err := conn.Use(prometheus.New(prometheus.Config{
		DBName:          p.Config.Name,
		RefreshInterval: 15,
		StartServer:     false,
		Labels:          map[string]string{"service": p.AppConfig.AppName},
	})); err != nil {
		p.Log.Warn("failed to register gorm prometheus plugin", zap.Error(err))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Config.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Config.MaxIdleConn)
	}
	if p.Config.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Config.MaxOpenConn)
	}
	if p.Config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.Config.ConnMaxLifetime)
	}
	if p.Config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.Config.ConnMaxIdleTime)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}
