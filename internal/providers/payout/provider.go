// Package payout sends referral rewards through an external payout vendor.
package payout

import (
	"context"
	"errors"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

var (
	ErrRejected      = errors.New("payout_rejected")
	ErrNotConfigured = errors.New("payout_not_configured")
)

type Recipient struct {
	Name  string
	Email string
}

type Request struct {
	// IdempotencyKey is stable per referral so retries never double pay.
	IdempotencyKey string
	Recipient      Recipient
	Amount         float64
	Currency       string
	RewardType     string
}

type Result struct {
	TransactionID string
	Status        string
}

//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks
type Provider interface {
	Name() string
	Payout(ctx context.Context, req Request) (Result, error)
}

// DisabledProvider refuses every payout; used when no vendor is configured.
type DisabledProvider struct{}

func (DisabledProvider) Name() string { return "disabled" }

func (DisabledProvider) Payout(ctx context.Context, req Request) (Result, error) {
	return Result{}, ErrNotConfigured
}
