package service

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	analyticsdomain "github.com/smallbiznis/referly/internal/analytics/domain"
	analyticsrepository "github.com/smallbiznis/referly/internal/analytics/repository"
	analyticsservice "github.com/smallbiznis/referly/internal/analytics/service"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/errs"
	"github.com/smallbiznis/referly/internal/providers/payout"
	payoutmocks "github.com/smallbiznis/referly/internal/providers/payout/mocks"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	referralrepository "github.com/smallbiznis/referly/internal/referral/repository"
	"github.com/smallbiznis/referly/internal/reward/domain"
	"github.com/smallbiznis/referly/internal/reward/repository"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	userrepository "github.com/smallbiznis/referly/internal/user/repository"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	provider *payoutmocks.MockProvider
	events   analyticsdomain.Service
	referral referraldomain.Referral
}

func newFixture(t *testing.T, rewardCfg config.RewardConfig) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&userdomain.User{},
		&referraldomain.Referral{},
		&domain.RewardPayout{},
		&analyticsdomain.Event{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	ctrl := gomock.NewController(t)
	provider := payoutmocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("tremendous").AnyTimes()

	company := "Sunny Roofs"
	contractorID := snowflake.ID(100)
	require.NoError(t, conn.Create(&userdomain.User{
		ID: contractorID, Email: "owner@sunny.test", DisplayName: "Owner",
		Role: userdomain.RoleContractor, CompanyName: &company,
		CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}).Error)
	require.NoError(t, conn.Create(&userdomain.User{
		ID: 200, Email: "pat@home.test", DisplayName: "Pat",
		Role: userdomain.RoleExistingHomeowner, ContractorID: &contractorID,
		CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}).Error)

	install := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	referral := referraldomain.Referral{
		ID:               300,
		ReferralCode:     "ABCD1234",
		ContractorID:     contractorID,
		ReferrerID:       200,
		Status:           lifecycle.StatusComplete,
		Verified:         true,
		InstallationDate: &install,
		Version:          2,
		CreatedAt:        clk.Now(),
		UpdatedAt:        clk.Now(),
	}
	require.NoError(t, conn.Create(&referral).Error)

	events := analyticsservice.NewService(analyticsservice.Params{
		DB: conn, Log: zaptest.NewLogger(t), GenID: node, Repo: analyticsrepository.Provide(), Clock: clk,
	})

	svc := New(Params{
		DB:        conn,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Repo:      repository.Provide(),
		Referrals: referralrepository.Provide(),
		Users:     userrepository.Provide(),
		Provider:  provider,
		Rewards:   config.NewStaticRewardConfigHolder(rewardCfg),
		Clock:     clk,
		Config:    config.Config{TimeZone: "UTC"},
		Events:    events,
	})
	return &fixture{svc: svc, db: conn, provider: provider, events: events, referral: referral}
}

func TestDispatchPaysOnce(t *testing.T) {
	f := newFixture(t, config.DefaultRewardConfig())
	ctx := context.Background()

	f.provider.EXPECT().
		Payout(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req payout.Request) (payout.Result, error) {
			assert.Equal(t, "referral-300", req.IdempotencyKey)
			assert.Equal(t, "pat@home.test", req.Recipient.Email)
			assert.Equal(t, 50.0, req.Amount)
			assert.Equal(t, "USD", req.Currency)
			assert.Equal(t, config.RewardTypeGiftCard, req.RewardType)
			return payout.Result{TransactionID: "ORD-1", Status: payout.StatusSent}, nil
		}).
		Times(1)

	record, err := f.svc.DispatchForReferral(ctx, f.referral)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.PayoutStatusSent, record.Status)
	assert.Equal(t, int64(5000), record.Amount)
	assert.Equal(t, "ORD-1", *record.TransactionID)
	assert.NotNil(t, record.PaidAt)

	// A second completion signal must not pay again.
	again, err := f.svc.DispatchForReferral(ctx, f.referral)
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)

	_, err = f.svc.TriggerPayout(ctx, 100, 300)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

	resp, err := f.events.List(ctx, analyticsdomain.ListRequest{ContractorID: 100, Type: string(analyticsdomain.EventRewardPaid)})
	require.NoError(t, err)
	assert.Len(t, resp.Events, 1)
}

func TestDispatchFailureThenManualRetry(t *testing.T) {
	f := newFixture(t, config.DefaultRewardConfig())
	ctx := context.Background()

	gomock.InOrder(
		f.provider.EXPECT().Payout(gomock.Any(), gomock.Any()).Return(payout.Result{}, errors.New("vendor down")),
		f.provider.EXPECT().Payout(gomock.Any(), gomock.Any()).Return(payout.Result{TransactionID: "ORD-2", Status: payout.StatusSent}, nil),
	)

	record, err := f.svc.DispatchForReferral(ctx, f.referral)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPayoutFailed)
	assert.Equal(t, errs.KindDependency, errs.KindOf(err))
	assert.Equal(t, domain.PayoutStatusFailed, record.Status)
	assert.Equal(t, 1, record.Attempts)

	paid, err := f.svc.TriggerPayout(ctx, 100, 300)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusSent, paid.Status)
	assert.Equal(t, 2, paid.Attempts)
	assert.Nil(t, paid.LastError)
	assert.Equal(t, record.ID, paid.ID)

	failed, err := f.events.List(ctx, analyticsdomain.ListRequest{ContractorID: 100, Type: string(analyticsdomain.EventRewardFailed)})
	require.NoError(t, err)
	assert.Len(t, failed.Events, 1)
}

func TestRetryFailedRespectsAttemptBudget(t *testing.T) {
	cfg := config.DefaultRewardConfig()
	cfg.MaxAttempts = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.provider.EXPECT().Payout(gomock.Any(), gomock.Any()).Return(payout.Result{}, errors.New("vendor down")).Times(2)

	_, err := f.svc.DispatchForReferral(ctx, f.referral)
	require.Error(t, err)

	sent, err := f.svc.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// Budget spent: nothing left to retry and manual triggers are refused.
	sent, err = f.svc.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	_, err = f.svc.TriggerPayout(ctx, 100, 300)
	assert.ErrorIs(t, err, domain.ErrAttemptsExhausted)
}

func TestTriggerPayoutGuards(t *testing.T) {
	f := newFixture(t, config.DefaultRewardConfig())
	ctx := context.Background()

	_, err := f.svc.TriggerPayout(ctx, 999, 300)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.TriggerPayout(ctx, 100, 12345)
	assert.ErrorIs(t, err, domain.ErrReferralNotFound)

	require.NoError(t, f.db.Model(&referraldomain.Referral{}).Where("id = ?", 300).
		Updates(map[string]any{"verified": false, "installation_date": nil, "status": lifecycle.StatusPending}).Error)
	_, err = f.svc.TriggerPayout(ctx, 100, 300)
	assert.ErrorIs(t, err, domain.ErrReferralNotComplete)
}

func TestDispatchSkippedWhenAutoPayoutOff(t *testing.T) {
	cfg := config.DefaultRewardConfig()
	cfg.AutoPayout = false
	f := newFixture(t, cfg)

	record, err := f.svc.DispatchForReferral(context.Background(), f.referral)
	require.NoError(t, err)
	assert.Nil(t, record)

	items, err := f.svc.List(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5000), toMinorUnits(50))
	assert.Equal(t, int64(1999), toMinorUnits(19.99))
	assert.Equal(t, int64(1050), toMinorUnits(10.5))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))

	// "é" is two bytes; cutting inside it backs off to the previous rune.
	got := truncate("caféé", 4)
	assert.Equal(t, "caf", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate("payout failed: 受取人が見つかりません", 20)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 20)
}
