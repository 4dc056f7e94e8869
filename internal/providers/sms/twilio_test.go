package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTwilioSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001111", r.PostForm.Get("To"))
		assert.Equal(t, "+15559998888", r.PostForm.Get("From"))
		assert.Contains(t, r.PostForm.Get("Body"), "AB12CD34")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued","error_code":null}`))
	}))
	defer srv.Close()

	p := NewTwilio(TwilioConfig{
		BaseURL:    srv.URL,
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "+15559998888",
	}, zaptest.NewLogger(t))

	err := p.Send(context.Background(), "+15550001111", "Your referral code: AB12CD34")
	require.NoError(t, err)
}

func TestTwilioSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	p := NewTwilio(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "secret"}, zaptest.NewLogger(t))
	err := p.Send(context.Background(), "nope", "hi")
	assert.ErrorIs(t, err, ErrNotAccepted)
	assert.Contains(t, err.Error(), "21211")
}

func TestTwilioSendRequiresRecipient(t *testing.T) {
	p := NewTwilio(TwilioConfig{AccountSID: "AC123"}, zaptest.NewLogger(t))
	assert.ErrorIs(t, p.Send(context.Background(), " ", "hi"), ErrNoRecipient)
}
