package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/referly/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendTemplateRendersReferralCode(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg string
	p := NewSMTP(Config{Host: "mail.local", Port: 1025, From: "noreply@referly.local"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"home@example.com"}, TemplateReferralCode, map[string]interface{}{
		"company_name":  "Acme Roofing",
		"referral_code": "AB12CD34",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"home@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your referral code from Acme Roofing")
	assert.Contains(t, gotMsg, "AB12CD34")
	assert.True(t, strings.Contains(gotMsg, "Content-Type: text/html"))
}

func TestSendRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 1025})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestSendTemplateUnknownTemplate(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 1025})
	err := p.SendTemplate(context.Background(), []string{"a@example.com"}, "missing", nil)
	assert.Error(t, err)
}

func TestNewFromConfigFallsBackToNoOp(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	provider := NewFromConfig(config.Config{}, zap.New(core))

	noop, ok := provider.(*NoOpProvider)
	require.True(t, ok)
	require.NoError(t, noop.SendTemplate(context.Background(), []string{"a@example.com"}, TemplateReferralCode, nil))

	skipped := logs.FilterMessage("email delivery disabled").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, TemplateReferralCode, skipped[0].ContextMap()["template"])
	assert.Equal(t, 1, logs.FilterMessage("smtp host not set; referral emails are disabled").Len())
}

func TestSendTemplateRendersReferralInvite(t *testing.T) {
	var gotMsg string
	p := NewSMTP(Config{Host: "mail.local", Port: 1025, From: "noreply@referly.local"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"lee@example.com"}, TemplateReferralInvite, map[string]interface{}{
		"company_name":  "Acme Roofing",
		"referral_code": "AB12CD34",
		"referrer_name": "Pat",
	})
	require.NoError(t, err)
	assert.Contains(t, gotMsg, "Subject: You were referred to Acme Roofing")
	assert.Contains(t, gotMsg, "Pat recommended Acme Roofing")
}
