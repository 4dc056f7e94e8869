package payout

import (
	"github.com/smallbiznis/referly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.payout",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Payout.Provider != "tremendous" || cfg.Payout.APIKey == "" {
		return DisabledProvider{}
	}
	return NewTremendous(TremendousConfig{
		BaseURL: cfg.Payout.BaseURL,
		APIKey:  cfg.Payout.APIKey,
	}, log)
}
