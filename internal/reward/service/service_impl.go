package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/smallbiznis/referly/internal/analytics/domain"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"github.com/smallbiznis/referly/internal/providers/payout"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	"github.com/smallbiznis/referly/internal/reward/domain"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"github.com/smallbiznis/referly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxErrorLength = 500

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Referrals referraldomain.Repository
	Users     userdomain.Repository
	Provider  payout.Provider
	Rewards   *config.RewardConfigHolder
	Clock     clock.Clock
	Config    config.Config
	Events    analyticsdomain.Service `optional:"true"`
	Metrics   *obsmetrics.Metrics     `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	referrals referraldomain.Repository
	users     userdomain.Repository
	provider  payout.Provider
	rewards   *config.RewardConfigHolder
	clock     clock.Clock
	loc       *time.Location
	events    analyticsdomain.Service
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("reward.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		referrals: p.Referrals,
		users:     p.Users,
		provider:  p.Provider,
		rewards:   p.Rewards,
		clock:     p.Clock,
		loc:       p.Config.Location(),
		events:    p.Events,
		metrics:   p.Metrics,
	}
}

func (s *Service) DispatchForReferral(ctx context.Context, referral referraldomain.Referral) (*domain.RewardPayout, error) {
	cfg := s.rewards.Get()
	if !cfg.Enabled || !cfg.AutoPayout {
		return nil, nil
	}
	if !s.isComplete(referral) {
		return nil, domain.ErrReferralNotComplete
	}

	record, err := s.ensureRecord(ctx, referral, cfg)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.PayoutStatusSent {
		return record, nil
	}
	if record.Attempts >= cfg.MaxAttempts {
		return record, domain.ErrAttemptsExhausted
	}
	err = s.attempt(ctx, record)
	return record, err
}

func (s *Service) TriggerPayout(ctx context.Context, contractorID, referralID snowflake.ID) (domain.RewardPayout, error) {
	cfg := s.rewards.Get()
	if !cfg.Enabled {
		return domain.RewardPayout{}, domain.ErrRewardsDisabled
	}

	referral, err := s.referrals.FindByID(ctx, s.db, referralID)
	if err != nil {
		return domain.RewardPayout{}, err
	}
	if referral == nil {
		return domain.RewardPayout{}, domain.ErrReferralNotFound
	}
	if referral.ContractorID != contractorID {
		return domain.RewardPayout{}, domain.ErrForbidden
	}
	if !s.isComplete(*referral) {
		return domain.RewardPayout{}, domain.ErrReferralNotComplete
	}

	record, err := s.ensureRecord(ctx, *referral, cfg)
	if err != nil {
		return domain.RewardPayout{}, err
	}
	if record.Status == domain.PayoutStatusSent {
		return *record, domain.ErrAlreadyPaid
	}
	if record.Attempts >= cfg.MaxAttempts {
		return *record, domain.ErrAttemptsExhausted
	}
	if err := s.attempt(ctx, record); err != nil {
		return *record, err
	}
	return *record, nil
}

func (s *Service) List(ctx context.Context, contractorID snowflake.ID) ([]domain.RewardPayout, error) {
	items, err := s.repo.ListByContractor(ctx, s.db, contractorID)
	if err != nil {
		return nil, err
	}
	payouts := make([]domain.RewardPayout, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payouts = append(payouts, *item)
	}
	return payouts, nil
}

func (s *Service) RetryFailed(ctx context.Context, limit int) (int, error) {
	cfg := s.rewards.Get()
	if !cfg.Enabled {
		return 0, nil
	}
	items, err := s.repo.ListRetryable(ctx, s.db, cfg.MaxAttempts, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.attempt(ctx, item); err != nil {
			continue
		}
		if item.Status == domain.PayoutStatusSent {
			sent++
		}
	}
	return sent, nil
}

// ensureRecord returns the payout row for a referral, creating it with the
// current reward policy on first use. Later retries keep the original terms.
func (s *Service) ensureRecord(ctx context.Context, referral referraldomain.Referral, cfg config.RewardConfig) (*domain.RewardPayout, error) {
	existing, err := s.repo.FindByReferral(ctx, s.db, referral.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	record := &domain.RewardPayout{
		ID:             s.genID.Generate(),
		ReferralID:     referral.ID,
		ContractorID:   referral.ContractorID,
		RecipientID:    referral.ReferrerID,
		Provider:       s.provider.Name(),
		RewardType:     cfg.RewardType,
		Amount:         toMinorUnits(cfg.Amount),
		Currency:       strings.ToUpper(cfg.Currency),
		Status:         domain.PayoutStatusPending,
		IdempotencyKey: domain.IdempotencyKeyFor(referral.ID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the race to a concurrent dispatch; use its row.
			existing, findErr := s.repo.FindByReferral(ctx, s.db, referral.ID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) attempt(ctx context.Context, record *domain.RewardPayout) error {
	recipient, err := s.recipientFor(ctx, record.RecipientID)
	if err == nil {
		var result payout.Result
		result, err = s.provider.Payout(ctx, payout.Request{
			IdempotencyKey: record.IdempotencyKey,
			Recipient:      recipient,
			Amount:         float64(record.Amount) / 100,
			Currency:       record.Currency,
			RewardType:     record.RewardType,
		})
		if err == nil {
			s.markResult(record, result)
			if record.Status == domain.PayoutStatusFailed {
				err = payout.ErrRejected
			}
		}
	}
	record.Attempts++
	record.UpdatedAt = s.clock.Now()
	if err != nil {
		msg := truncate(err.Error(), maxErrorLength)
		record.Status = domain.PayoutStatusFailed
		record.LastError = &msg
	}

	if updateErr := s.repo.Update(ctx, s.db, record); updateErr != nil {
		s.log.Error("failed to persist payout outcome",
			zap.String("referral_id", record.ReferralID.String()),
			zap.Error(updateErr),
		)
		return updateErr
	}

	s.metrics.RecordRewardPayout(ctx, record.Provider, string(record.Status))
	s.recordEvent(ctx, record, err)

	if err != nil {
		s.log.Warn("reward payout failed",
			zap.String("referral_id", record.ReferralID.String()),
			zap.Int("attempts", record.Attempts),
			zap.Error(err),
		)
		if errors.Is(err, domain.ErrRecipientUnreachable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrPayoutFailed, err)
	}

	s.log.Info("reward payout submitted",
		zap.String("referral_id", record.ReferralID.String()),
		zap.String("status", string(record.Status)),
	)
	return nil
}

func (s *Service) markResult(record *domain.RewardPayout, result payout.Result) {
	if result.TransactionID != "" {
		txID := result.TransactionID
		record.TransactionID = &txID
	}
	record.LastError = nil
	switch result.Status {
	case payout.StatusSent:
		record.Status = domain.PayoutStatusSent
		paidAt := s.clock.Now()
		record.PaidAt = &paidAt
	case payout.StatusFailed:
		record.Status = domain.PayoutStatusFailed
	default:
		record.Status = domain.PayoutStatusPending
	}
}

func (s *Service) recipientFor(ctx context.Context, userID snowflake.ID) (payout.Recipient, error) {
	user, err := s.users.FindByID(ctx, s.db, userID)
	if err != nil {
		return payout.Recipient{}, err
	}
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return payout.Recipient{}, domain.ErrRecipientUnreachable
	}
	return payout.Recipient{Name: user.DisplayName, Email: user.Email}, nil
}

func (s *Service) recordEvent(ctx context.Context, record *domain.RewardPayout, cause error) {
	if s.events == nil {
		return
	}
	eventType := analyticsdomain.EventRewardPaid
	data := map[string]any{
		"status":   string(record.Status),
		"amount":   record.Amount,
		"currency": record.Currency,
		"attempts": record.Attempts,
	}
	if cause != nil {
		eventType = analyticsdomain.EventRewardFailed
		data["error"] = truncate(cause.Error(), maxErrorLength)
	}
	referralID := record.ReferralID
	if err := s.events.Record(ctx, analyticsdomain.RecordInput{
		ContractorID: record.ContractorID,
		Type:         eventType,
		ReferralID:   &referralID,
		Data:         data,
	}); err != nil {
		s.log.Debug("analytics event dropped", zap.Error(err))
	}
}

func (s *Service) isComplete(referral referraldomain.Referral) bool {
	today := clock.Today(s.clock, s.loc)
	return lifecycle.Evaluate(referral.InstallationDate, referral.Verified, today) == lifecycle.StatusComplete
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// truncate caps value at limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
