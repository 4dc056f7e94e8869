package sms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	FromNumber string
}

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// TwilioProvider sends SMS through the Twilio Messages REST API.
type TwilioProvider struct {
	httpClient *resty.Client
	cfg        TwilioConfig
	log        *zap.Logger
}

func NewTwilio(cfg TwilioConfig, log *zap.Logger) *TwilioProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioProvider{
		httpClient: client,
		cfg:        cfg,
		log:        log.Named("sms.twilio"),
	}
}

func (p *TwilioProvider) Send(ctx context.Context, to string, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}

	var message twilioMessage
	var apiErr twilioError
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetPathParam("sid", p.cfg.AccountSID).
		SetFormData(map[string]string{
			"To":   to,
			"From": p.cfg.FromNumber,
			"Body": body,
		}).
		SetResult(&message).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}

	if resp.IsError() {
		p.log.Warn("twilio rejected message",
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("twilio_code", apiErr.Code),
		)
		return fmt.Errorf("%w: %d %s", ErrNotAccepted, apiErr.Code, apiErr.Message)
	}
	if message.ErrorCode != nil {
		return fmt.Errorf("%w: %d %s", ErrNotAccepted, *message.ErrorCode, message.ErrorMessage)
	}

	p.log.Debug("sms queued", zap.String("sid", message.SID), zap.String("status", message.Status))
	return nil
}
