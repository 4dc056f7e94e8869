package sms

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var (
	ErrNoRecipient = errors.New("no_recipient")
	ErrNotAccepted = errors.New("sms_not_accepted")
)

type Provider interface {
	Send(ctx context.Context, to string, body string) error
}

// NoOpProvider stands in when Twilio is not configured.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("sms.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, to string, body string) error {
	if p != nil && p.log != nil {
		p.log.Debug("sms delivery disabled", zap.Int("body_len", len(body)))
	}
	return nil
}
