package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTremendousPayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "referral-42", r.Header.Get("Idempotency-Key"))

		var body tremendousOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "referral-42", body.ExternalID)
		assert.Equal(t, 50.0, body.Reward.Value.Denomination)
		assert.Equal(t, "USD", body.Reward.Value.CurrencyCode)
		assert.Equal(t, []string{"GIFTCARD"}, body.Reward.Products)
		assert.Equal(t, "pat@example.com", body.Reward.Recipient.Email)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order":{"id":"ORD-1","status":"EXECUTED"}}`))
	}))
	defer srv.Close()

	p := NewTremendous(TremendousConfig{BaseURL: srv.URL, APIKey: "key-1"}, zaptest.NewLogger(t))
	res, err := p.Payout(context.Background(), Request{
		IdempotencyKey: "referral-42",
		Recipient:      Recipient{Name: "Pat", Email: "pat@example.com"},
		Amount:         50,
		RewardType:     "gift_card",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", res.TransactionID)
	assert.Equal(t, StatusSent, res.Status)
}

func TestTremendousPayoutRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"message":"insufficient funds"}}`))
	}))
	defer srv.Close()

	p := NewTremendous(TremendousConfig{BaseURL: srv.URL, APIKey: "key-1"}, zaptest.NewLogger(t))
	_, err := p.Payout(context.Background(), Request{IdempotencyKey: "referral-1", Amount: 10})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestMapOrderStatus(t *testing.T) {
	assert.Equal(t, StatusSent, mapOrderStatus("executed"))
	assert.Equal(t, StatusFailed, mapOrderStatus("CANCELED"))
	assert.Equal(t, StatusPending, mapOrderStatus("PENDING_APPROVAL"))
}

func TestDisabledProvider(t *testing.T) {
	_, err := DisabledProvider{}.Payout(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
