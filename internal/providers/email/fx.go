package email

import (
	"strings"

	"github.com/smallbiznis/referly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns the SMTP provider, or a logging no-op when SMTP_HOST
// is blank.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	smtpCfg := Config{
		Host:     strings.TrimSpace(cfg.Email.SMTPHost),
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	}
	if smtpCfg.Host == "" {
		log.Info("smtp host not set; referral emails are disabled")
		return NewNoOp(log)
	}
	return NewSMTP(smtpCfg)
}
