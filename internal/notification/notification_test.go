package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/referly/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEmail struct {
	to       []string
	template string
	data     map[string]interface{}
	err      error
}

func (f *fakeEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return f.err
}

func (f *fakeEmail) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	f.to = to
	f.template = templateName
	f.data, _ = data.(map[string]interface{})
	return f.err
}

type fakeSMS struct {
	to   string
	body string
	err  error
}

func (f *fakeSMS) Send(ctx context.Context, to string, body string) error {
	f.to = to
	f.body = body
	return f.err
}

func TestSendBothChannels(t *testing.T) {
	mail := &fakeEmail{}
	text := &fakeSMS{}
	d := New(Params{Log: zaptest.NewLogger(t), Email: mail, SMS: text})

	err := d.Send(context.Background(), Recipient{Email: "pat@example.com", Phone: "+15550001111"}, Message{
		ReferralCode: "AB12CD34",
		CompanyName:  "Acme Roofing",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pat@example.com"}, mail.to)
	assert.Equal(t, string(KindReferralCode), mail.template)
	assert.Equal(t, "AB12CD34", mail.data["referral_code"])
	assert.Equal(t, "+15550001111", text.to)
	assert.Contains(t, text.body, "AB12CD34")
}

func TestSendSkipsMissingChannels(t *testing.T) {
	mail := &fakeEmail{}
	text := &fakeSMS{}
	d := New(Params{Log: zaptest.NewLogger(t), Email: mail, SMS: text})

	require.NoError(t, d.Send(context.Background(), Recipient{Phone: "+15550001111"}, Message{ReferralCode: "AB12CD34"}))
	assert.Nil(t, mail.to)
	assert.Equal(t, "+15550001111", text.to)
}

func TestSendFailureIsDependencyError(t *testing.T) {
	boom := errors.New("smtp down")
	mail := &fakeEmail{err: boom}
	text := &fakeSMS{}
	d := New(Params{Log: zaptest.NewLogger(t), Email: mail, SMS: text})

	err := d.Send(context.Background(), Recipient{Email: "pat@example.com", Phone: "+15550001111"}, Message{ReferralCode: "AB12CD34"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, errs.KindDependency, errs.KindOf(err))
	assert.True(t, errs.IsRetryable(err))
	// SMS still went out.
	assert.Equal(t, "+15550001111", text.to)
}

func TestSendReferralInvite(t *testing.T) {
	mail := &fakeEmail{}
	text := &fakeSMS{}
	d := New(Params{Log: zaptest.NewLogger(t), Email: mail, SMS: text})

	err := d.Send(context.Background(), Recipient{Email: "lee@example.com", Phone: "+15550002222"}, Message{
		Kind:         KindReferralInvite,
		ReferralCode: "AB12CD34",
		CompanyName:  "Acme Roofing",
		ReferrerName: "Pat",
	})
	require.NoError(t, err)
	assert.Equal(t, string(KindReferralInvite), mail.template)
	assert.Equal(t, "Pat", mail.data["referrer_name"])
	assert.Equal(t, "Acme Roofing: Pat referred you. Mention code AB12CD34 when you book.", text.body)
}
