// Package notification delivers referral codes to homeowners over email and SMS.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/referly/internal/errs"
	"github.com/smallbiznis/referly/internal/observability/metrics"
	"github.com/smallbiznis/referly/internal/providers/email"
	"github.com/smallbiznis/referly/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Kind picks the message template.
type Kind string

const (
	KindReferralCode     Kind = "referral_code"
	KindHomeownerWelcome Kind = "homeowner_welcome"
	// KindReferralInvite goes to the referred party named on a new referral.
	KindReferralInvite Kind = "referral_invite"
)

var ErrDeliveryFailed = errs.New(errs.KindDependency, "notification_delivery_failed")

type Recipient struct {
	Name  string
	Email string
	Phone string
}

type Message struct {
	Kind         Kind
	ReferralCode string
	CompanyName  string
	Link         string
	ReferrerName string
}

//go:generate mockgen -source=notification.go -destination=mocks/mock_dispatcher.go -package=mocks
type Dispatcher interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	SMS     sms.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type dispatcher struct {
	log     *zap.Logger
	email   email.Provider
	sms     sms.Provider
	metrics *metrics.Metrics
}

func New(p Params) Dispatcher {
	return &dispatcher{
		log:     p.Log.Named("notification.dispatcher"),
		email:   p.Email,
		sms:     p.SMS,
		metrics: p.Metrics,
	}
}

// Send tries every channel the recipient has. A failure on one channel does
// not stop the other; the joined failures come back as ErrDeliveryFailed.
func (d *dispatcher) Send(ctx context.Context, to Recipient, msg Message) error {
	if msg.Kind == "" {
		msg.Kind = KindReferralCode
	}

	var failures []error
	if addr := strings.TrimSpace(to.Email); addr != "" && d.email != nil {
		err := d.email.SendTemplate(ctx, []string{addr}, string(msg.Kind), map[string]interface{}{
			"name":          to.Name,
			"company_name":  msg.CompanyName,
			"referral_code": msg.ReferralCode,
			"link":          msg.Link,
			"referrer_name": msg.ReferrerName,
		})
		d.record(ctx, ChannelEmail, err)
		if err != nil {
			failures = append(failures, fmt.Errorf("email: %w", err))
		}
	}

	if phone := strings.TrimSpace(to.Phone); phone != "" && d.sms != nil {
		err := d.sms.Send(ctx, phone, smsBody(msg))
		d.record(ctx, ChannelSMS, err)
		if err != nil {
			failures = append(failures, fmt.Errorf("sms: %w", err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(failures...))
	}
	return nil
}

func (d *dispatcher) record(ctx context.Context, channel string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
		d.log.Warn("notification channel failed", zap.String("channel", channel), zap.Error(err))
	}
	d.metrics.RecordNotification(ctx, channel, outcome)
}

func smsBody(msg Message) string {
	var b strings.Builder
	if msg.CompanyName != "" {
		fmt.Fprintf(&b, "%s: ", msg.CompanyName)
	}
	if msg.Kind == KindReferralInvite {
		referrer := msg.ReferrerName
		if referrer == "" {
			referrer = "A neighbour"
		}
		fmt.Fprintf(&b, "%s referred you. Mention code %s when you book.", referrer, msg.ReferralCode)
	} else {
		fmt.Fprintf(&b, "Thank you for being a valued customer! Your referral code is %s.", msg.ReferralCode)
	}
	if msg.Link != "" {
		fmt.Fprintf(&b, " %s", msg.Link)
	}
	return b.String()
}

var Module = fx.Module("notification",
	fx.Provide(New),
)
