package sms

import (
	"github.com/smallbiznis/referly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMS.Provider != "twilio" || cfg.SMS.AccountSID == "" {
		return NewNoOp(log)
	}
	return NewTwilio(TwilioConfig{
		BaseURL:    cfg.SMS.BaseURL,
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		FromNumber: cfg.SMS.FromNumber,
	}, log)
}
