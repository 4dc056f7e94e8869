package payout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type TremendousConfig struct {
	BaseURL string
	APIKey  string
}

type tremendousOrderRequest struct {
	ExternalID string            `json:"external_id"`
	Payment    tremendousPayment `json:"payment"`
	Reward     tremendousReward  `json:"reward"`
}

type tremendousPayment struct {
	FundingSourceID string `json:"funding_source_id"`
}

type tremendousReward struct {
	Value     tremendousValue     `json:"value"`
	Recipient tremendousRecipient `json:"recipient"`
	Delivery  tremendousDelivery  `json:"delivery"`
	Products  []string            `json:"products,omitempty"`
}

type tremendousValue struct {
	Denomination float64 `json:"denomination"`
	CurrencyCode string  `json:"currency_code"`
}

type tremendousRecipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type tremendousDelivery struct {
	Method string `json:"method"`
}

type tremendousOrderResponse struct {
	Order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
}

type tremendousErrorResponse struct {
	Errors struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// TremendousProvider places reward orders with the Tremendous REST API.
type TremendousProvider struct {
	httpClient *resty.Client
	log        *zap.Logger
}

func NewTremendous(cfg TremendousConfig, log *zap.Logger) *TremendousProvider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TremendousProvider{
		httpClient: client,
		log:        log.Named("payout.tremendous"),
	}
}

func (p *TremendousProvider) Name() string { return "tremendous" }

func (p *TremendousProvider) Payout(ctx context.Context, req Request) (Result, error) {
	body := tremendousOrderRequest{
		ExternalID: req.IdempotencyKey,
		Payment:    tremendousPayment{FundingSourceID: "balance"},
		Reward: tremendousReward{
			Value: tremendousValue{
				Denomination: req.Amount,
				CurrencyCode: defaultCurrency(req.Currency),
			},
			Recipient: tremendousRecipient{
				Name:  req.Recipient.Name,
				Email: req.Recipient.Email,
			},
			Delivery: tremendousDelivery{Method: "EMAIL"},
			Products: productsFor(req.RewardType),
		},
	}

	var response tremendousOrderResponse
	var apiErr tremendousErrorResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(body).
		SetResult(&response).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return Result{}, fmt.Errorf("tremendous request: %w", err)
	}
	if resp.IsError() {
		p.log.Warn("tremendous rejected order",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("external_id", req.IdempotencyKey),
		)
		return Result{}, fmt.Errorf("%w: %s", ErrRejected, apiErr.Errors.Message)
	}

	return Result{
		TransactionID: response.Order.ID,
		Status:        mapOrderStatus(response.Order.Status),
	}, nil
}

func productsFor(rewardType string) []string {
	switch rewardType {
	case "gift_card":
		return []string{"GIFTCARD"}
	case "direct_payment":
		return []string{"PAYMENT"}
	default:
		return nil
	}
}

func mapOrderStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "EXECUTED", "DELIVERED":
		return StatusSent
	case "FAILED", "CANCELED", "REJECTED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func defaultCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}
