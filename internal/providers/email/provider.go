package email

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	TemplateReferralCode     = "referral_code"
	TemplateHomeownerWelcome = "homeowner_welcome"
	TemplateReferralInvite   = "referral_invite"
)

var ErrNoRecipients = errors.New("no_recipients")

// Provider delivers homeowner-facing mail. Templates are addressed by name
// without the .html suffix.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error
}

// NoOpProvider is used when no SMTP host is configured. Deliveries succeed
// and are only visible at debug level.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.skipped(to, zap.String("subject", subject))
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	p.skipped(to, zap.String("template", templateName))
	return nil
}

func (p *NoOpProvider) skipped(to []string, field zap.Field) {
	if p == nil || p.log == nil {
		return
	}
	p.log.Debug("email delivery disabled", field, zap.Int("recipients", len(to)))
}
