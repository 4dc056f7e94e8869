package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/smallbiznis/referly/internal/analytics/domain"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	"github.com/smallbiznis/referly/internal/notification"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"github.com/smallbiznis/referly/internal/ratelimit"
	"github.com/smallbiznis/referly/internal/referral/code"
	"github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	referralmetricdomain "github.com/smallbiznis/referly/internal/referralmetric/domain"
	rewarddomain "github.com/smallbiznis/referly/internal/reward/domain"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/smallbiznis/referly/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKeyPattern    = "referral:lock:%s"
	defaultPromoLimit = 500
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Users     userdomain.Repository
	Codes     code.Generator
	Clock     clock.Clock
	Config    config.Config
	Metrics   referralmetricdomain.Service `optional:"true"`
	Notifier  notification.Dispatcher      `optional:"true"`
	Rewards   rewarddomain.Service         `optional:"true"`
	Events    analyticsdomain.Service      `optional:"true"`
	Locker    *ratelimit.Locker            `optional:"true"`
	Telemetry *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	users       userdomain.Repository
	codes       code.Generator
	clock       clock.Clock
	cfg         config.Config
	loc         *time.Location
	maxAttempts int
	lockTTL     time.Duration
	metrics     referralmetricdomain.Service
	notifier    notification.Dispatcher
	rewards     rewarddomain.Service
	events      analyticsdomain.Service
	locker      *ratelimit.Locker
	telemetry   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	attempts := p.Config.Referral.CodeMaxAttempts
	if attempts <= 0 {
		attempts = code.MaxAttempts
	}
	lockTTL := time.Duration(p.Config.Referral.LockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("referral.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		users:       p.Users,
		codes:       p.Codes,
		clock:       p.Clock,
		cfg:         p.Config,
		loc:         p.Config.Location(),
		maxAttempts: attempts,
		lockTTL:     lockTTL,
		metrics:     p.Metrics,
		notifier:    p.Notifier,
		rewards:     p.Rewards,
		events:      p.Events,
		locker:      p.Locker,
		telemetry:   p.Telemetry,
	}
}

func (s *Service) CreateReferral(ctx context.Context, req domain.CreateReferralRequest) (domain.Referral, error) {
	ctx, _ = correlation.EnsureCorrelationID(ctx)

	referral, referrer, contractor, err := s.create(ctx, req)
	if err != nil {
		return domain.Referral{}, err
	}

	s.telemetry.RecordReferralCreated(ctx)
	s.recordEvent(ctx, referral, analyticsdomain.EventReferralCreated, map[string]any{
		"referral_code": referral.ReferralCode,
		"referrer_id":   referral.ReferrerID.String(),
	})
	s.recomputeMetrics(ctx, referral.ContractorID)
	s.notifyReferrer(ctx, referral, referrer, contractor)
	s.notifyReferred(ctx, referral, referrer, contractor)

	return referral, nil
}

func (s *Service) create(ctx context.Context, req domain.CreateReferralRequest) (domain.Referral, *userdomain.User, *userdomain.User, error) {
	email, err := optionalEmail(req.ReferredEmail)
	if err != nil {
		return domain.Referral{}, nil, nil, err
	}

	contractor, err := s.users.FindByID(ctx, s.db, req.ContractorID)
	if err != nil {
		return domain.Referral{}, nil, nil, err
	}
	if contractor == nil || contractor.Role != userdomain.RoleContractor {
		return domain.Referral{}, nil, nil, domain.ErrInvalidContractor
	}

	referrer, err := s.users.FindByID(ctx, s.db, req.ReferrerID)
	if err != nil {
		return domain.Referral{}, nil, nil, err
	}
	if referrer == nil || referrer.Role != userdomain.RoleExistingHomeowner || !referrer.BelongsTo(contractor.ID) {
		return domain.Referral{}, nil, nil, domain.ErrInvalidReferrer
	}

	address := optionalString(req.ReferredAddress)
	addressKey := domain.AddressKey(req.ReferredAddress)
	if addressKey != nil {
		taken, err := s.repo.AddressTaken(ctx, s.db, contractor.ID, *addressKey, 0)
		if err != nil {
			return domain.Referral{}, nil, nil, err
		}
		if taken {
			return domain.Referral{}, nil, nil, domain.ErrDuplicateAddress
		}
	}

	now := s.clock.Now()
	referral := domain.Referral{
		ID:                      s.genID.Generate(),
		ContractorID:            contractor.ID,
		ReferrerID:              referrer.ID,
		ReferredCustomerAddress: address,
		ReferredAddressKey:      addressKey,
		ReferredEmail:           email,
		ReferredPhone:           optionalString(req.ReferredPhone),
		Status:                  lifecycle.StatusPending,
		Verified:                false,
		Version:                 1,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	// Pre-check collisions and unique-index rejections draw on one budget.
	budget := s.maxAttempts
	input := code.GenerateInput{ContractorName: contractor.Company()}
	for {
		used := 0
		candidate, err := code.IssueUnique(ctx, s.codes, input, s.codeExists, budget, func(string) {
			used++
			s.telemetry.RecordCodeCollision(ctx, s.cfg.Referral.CodePolicy)
		})
		if err != nil {
			if errors.Is(err, code.ErrCodeGenerationExhausted) {
				s.log.Error("referral code space exhausted",
					zap.String("contractor_id", contractor.ID.String()),
					zap.Int("attempts", s.maxAttempts),
				)
			}
			return domain.Referral{}, nil, nil, err
		}
		budget -= used + 1

		referral.ReferralCode = candidate
		err = s.repo.Insert(ctx, s.db, &referral)
		if err == nil {
			return referral, referrer, contractor, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Referral{}, nil, nil, err
		}
		if addressKey != nil {
			taken, checkErr := s.repo.AddressTaken(ctx, s.db, contractor.ID, *addressKey, referral.ID)
			if checkErr != nil {
				return domain.Referral{}, nil, nil, checkErr
			}
			if taken {
				return domain.Referral{}, nil, nil, domain.ErrDuplicateAddress
			}
		}
		s.telemetry.RecordCodeCollision(ctx, s.cfg.Referral.CodePolicy)
		if budget <= 0 {
			return domain.Referral{}, nil, nil, code.ErrCodeGenerationExhausted
		}
	}
}

func (s *Service) ListByContractor(ctx context.Context, contractorID snowflake.ID) ([]domain.Referral, error) {
	items, err := s.repo.ListByContractor(ctx, s.db, contractorID)
	if err != nil {
		return nil, err
	}
	return s.present(items), nil
}

func (s *Service) ListByReferrer(ctx context.Context, referrerID snowflake.ID) ([]domain.Referral, error) {
	items, err := s.repo.ListByReferrer(ctx, s.db, referrerID)
	if err != nil {
		return nil, err
	}
	return s.present(items), nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Referral, error) {
	referral, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Referral{}, err
	}
	if referral == nil {
		return domain.Referral{}, domain.ErrNotFound
	}
	referral.Refresh(s.today())
	return *referral, nil
}

func (s *Service) GetByCode(ctx context.Context, raw string) (domain.Referral, error) {
	normalized := code.Normalize(raw)
	if !code.Valid(normalized) {
		return domain.Referral{}, domain.ErrInvalidCode
	}
	referral, err := s.repo.FindByCode(ctx, s.db, normalized)
	if err != nil {
		return domain.Referral{}, err
	}
	if referral == nil {
		return domain.Referral{}, domain.ErrNotFound
	}
	referral.Refresh(s.today())
	return *referral, nil
}

// LookupPublic resolves a shared code to the contractor behind it. Unknown
// and malformed codes both report not found.
func (s *Service) LookupPublic(ctx context.Context, raw string) (domain.PublicReferral, error) {
	normalized := code.Normalize(raw)
	if !code.Valid(normalized) {
		return domain.PublicReferral{}, domain.ErrNotFound
	}

	var contractorID snowflake.ID
	valid := true
	referral, err := s.repo.FindByCode(ctx, s.db, normalized)
	if err != nil {
		return domain.PublicReferral{}, err
	}
	if referral != nil {
		contractorID = referral.ContractorID
		valid = !referral.Verified
	} else {
		owner, err := s.users.FindByReferralCode(ctx, s.db, normalized)
		if err != nil {
			return domain.PublicReferral{}, err
		}
		if owner == nil || owner.ContractorID == nil {
			return domain.PublicReferral{}, domain.ErrNotFound
		}
		contractorID = *owner.ContractorID
	}

	contractor, err := s.users.FindByID(ctx, s.db, contractorID)
	if err != nil {
		return domain.PublicReferral{}, err
	}
	if contractor == nil {
		return domain.PublicReferral{}, domain.ErrNotFound
	}
	return domain.PublicReferral{
		ReferralCode: normalized,
		CompanyName:  contractor.Company(),
		Valid:        valid,
	}, nil
}

func (s *Service) UpdateReferral(ctx context.Context, id snowflake.ID, patch domain.Patch) (domain.Referral, error) {
	ctx, _ = correlation.EnsureCorrelationID(ctx)

	if patch.IsEmpty() {
		return domain.Referral{}, domain.ErrEmptyPatch
	}
	if patch.InstallationDate != nil && patch.ClearInstallationDate {
		return domain.Referral{}, domain.ErrInvalidInstallDate
	}
	if patch.ReferredEmail != nil {
		if _, err := optionalEmail(*patch.ReferredEmail); err != nil {
			return domain.Referral{}, err
		}
	}

	before, after, err := s.mutate(ctx, id, patch.ExpectedVersion, func(current *domain.Referral, today time.Time) error {
		if patch.ExpectedVersion == nil {
			if err := s.guardOverwrite(current, patch); err != nil {
				return err
			}
		}
		return s.applyPatch(current, patch, today)
	})
	if err != nil {
		return domain.Referral{}, err
	}

	s.afterUpdate(ctx, before, after)
	return after, nil
}

func (s *Service) Verify(ctx context.Context, req domain.VerifyRequest) (domain.Referral, error) {
	ctx, _ = correlation.EnsureCorrelationID(ctx)

	normalized := code.Normalize(req.Code)
	if !code.Valid(normalized) {
		return domain.Referral{}, domain.ErrInvalidCode
	}
	if req.InstallationDate.IsZero() {
		return domain.Referral{}, domain.ErrInvalidInstallDate
	}

	referral, err := s.repo.FindByCode(ctx, s.db, normalized)
	if err != nil {
		return domain.Referral{}, err
	}
	if referral != nil && req.ContractorID != 0 && referral.ContractorID != req.ContractorID {
		return domain.Referral{}, domain.ErrNotFound
	}
	opened := false
	if referral == nil {
		// A homeowner's standing code opens a fresh referral for this verification.
		created, err := s.createFromStandingCode(ctx, normalized, req.ReferredAddress, req.ContractorID)
		if err != nil {
			return domain.Referral{}, err
		}
		referral = &created
		opened = true
	}
	if referral.Verified {
		return domain.Referral{}, domain.ErrAlreadyVerified
	}

	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}
	installation := lifecycle.Day(req.InstallationDate, s.loc)
	version := referral.Version
	patch := domain.Patch{
		ReferredID:       req.ReferredID,
		Verified:         &verified,
		InstallationDate: &installation,
		ExpectedVersion:  &version,
	}
	if address := strings.TrimSpace(req.ReferredAddress); address != "" {
		patch.ReferredCustomerAddress = &address
	}

	verifiedReferral, err := s.UpdateReferral(ctx, referral.ID, patch)
	if err != nil && opened {
		// The opened referral stays pending; keep the dashboard counting it.
		s.log.Warn("standing code referral left pending",
			zap.String("referral_id", referral.ID.String()),
			zap.Error(err),
		)
		s.recomputeMetrics(ctx, referral.ContractorID)
	}
	return verifiedReferral, err
}

func (s *Service) PromoteDue(ctx context.Context, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = defaultPromoLimit
	}
	today := s.today()
	cutoff := today.AddDate(0, 0, 1)

	due, err := s.repo.ListDuePromotions(ctx, s.db, cutoff, limit)
	if err != nil {
		return nil, err
	}

	seen := map[snowflake.ID]struct{}{}
	contractors := []snowflake.ID{}
	for _, item := range due {
		if err := ctx.Err(); err != nil {
			return contractors, err
		}
		before, after, err := s.mutate(ctx, item.ID, nil, func(current *domain.Referral, today time.Time) error {
			if !current.Refresh(today) {
				return errNoChange
			}
			return nil
		})
		if errors.Is(err, errNoChange) {
			continue
		}
		if err != nil {
			s.log.Warn("failed to promote referral",
				zap.String("referral_id", item.ID.String()),
				zap.Error(err),
			)
			continue
		}

		s.telemetry.RecordReferralUpdated(ctx, string(after.Status))
		s.recordEvent(ctx, after, analyticsdomain.EventReferralUpdated, map[string]any{
			"from_status": string(before.Status),
			"to_status":   string(after.Status),
			"trigger":     "schedule",
		})
		s.dispatchReward(ctx, before, after)
		if _, ok := seen[after.ContractorID]; !ok {
			seen[after.ContractorID] = struct{}{}
			contractors = append(contractors, after.ContractorID)
		}
	}

	for _, contractorID := range contractors {
		s.recomputeMetrics(ctx, contractorID)
	}
	return contractors, nil
}

var errNoChange = errors.New("no change")

// mutate serialises a read-modify-write of one referral: an optional
// distributed lock, a locking read inside a transaction and a
// version-guarded write.
func (s *Service) mutate(
	ctx context.Context,
	id snowflake.ID,
	expectedVersion *int64,
	apply func(current *domain.Referral, today time.Time) error,
) (domain.Referral, domain.Referral, error) {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return domain.Referral{}, domain.Referral{}, err
	}
	defer release()

	var before, after domain.Referral
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return domain.ErrStaleWrite
		}
		before = *current

		next := *current
		today := s.today()
		if err := apply(&next, today); err != nil {
			return err
		}

		if next.ReferredAddressKey != nil && !equalStringPtr(next.ReferredAddressKey, before.ReferredAddressKey) {
			taken, err := s.repo.AddressTaken(ctx, tx, next.ContractorID, *next.ReferredAddressKey, next.ID)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrDuplicateAddress
			}
		}

		now := s.clock.Now()
		if next.Verified && !before.Verified {
			next.VerifiedAt = &now
		}
		next.Version = before.Version + 1
		next.UpdatedAt = now

		ok, err := s.repo.UpdateVersioned(ctx, tx, &next, before.Version)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateAddress
			}
			return err
		}
		if !ok {
			return domain.ErrStaleWrite
		}
		after = next
		return nil
	})
	if err != nil {
		return domain.Referral{}, domain.Referral{}, err
	}
	return before, after, nil
}

// guardOverwrite lets a patch without an expected version fill empty fields
// or repeat current values, but not replace a value someone else already set.
func (s *Service) guardOverwrite(r *domain.Referral, patch domain.Patch) error {
	if patch.ReferredID != nil && r.ReferredID != nil && *r.ReferredID != *patch.ReferredID {
		return domain.ErrVersionRequired
	}
	if patch.ReferredCustomerAddress != nil && r.ReferredAddressKey != nil &&
		!equalStringPtr(r.ReferredAddressKey, domain.AddressKey(*patch.ReferredCustomerAddress)) {
		return domain.ErrVersionRequired
	}
	if r.InstallationDate != nil {
		if patch.ClearInstallationDate {
			return domain.ErrVersionRequired
		}
		if patch.InstallationDate != nil && !lifecycle.Day(*patch.InstallationDate, s.loc).Equal(*r.InstallationDate) {
			return domain.ErrVersionRequired
		}
	}
	if patch.Verified != nil && r.Verified && !*patch.Verified {
		return domain.ErrVersionRequired
	}
	return nil
}

func (s *Service) applyPatch(r *domain.Referral, patch domain.Patch, today time.Time) error {
	if patch.ReferredID != nil {
		referredID := *patch.ReferredID
		r.ReferredID = &referredID
	}
	if patch.ReferredCustomerAddress != nil {
		r.ReferredCustomerAddress = optionalString(*patch.ReferredCustomerAddress)
		r.ReferredAddressKey = domain.AddressKey(*patch.ReferredCustomerAddress)
	}
	if patch.ReferredEmail != nil {
		r.ReferredEmail, _ = optionalEmail(*patch.ReferredEmail)
	}
	if patch.ReferredPhone != nil {
		r.ReferredPhone = optionalString(*patch.ReferredPhone)
	}
	if patch.ClearInstallationDate {
		r.InstallationDate = nil
	}
	if patch.InstallationDate != nil {
		day := lifecycle.Day(*patch.InstallationDate, s.loc)
		r.InstallationDate = &day
	}
	if patch.Verified != nil {
		r.Verified = *patch.Verified
	}
	// Verification without an installation date has no consistent status.
	if r.Verified && r.InstallationDate == nil {
		return domain.ErrInvalidInstallDate
	}
	r.Status = lifecycle.Evaluate(r.InstallationDate, r.Verified, today)
	return nil
}

func (s *Service) afterUpdate(ctx context.Context, before, after domain.Referral) {
	s.telemetry.RecordReferralUpdated(ctx, string(after.Status))

	eventType := analyticsdomain.EventReferralUpdated
	if after.Verified && !before.Verified {
		eventType = analyticsdomain.EventReferralVerified
		s.telemetry.RecordReferralVerified(ctx)
	}
	s.recordEvent(ctx, after, eventType, map[string]any{
		"from_status": string(before.Status),
		"to_status":   string(after.Status),
		"version":     after.Version,
	})

	if statusAffecting(before, after) {
		s.recomputeMetrics(ctx, after.ContractorID)
	}
	s.dispatchReward(ctx, before, after)
}

func (s *Service) createFromStandingCode(ctx context.Context, standing, address string, scope snowflake.ID) (domain.Referral, error) {
	owner, err := s.users.FindByReferralCode(ctx, s.db, standing)
	if err != nil {
		return domain.Referral{}, err
	}
	if owner == nil || owner.ContractorID == nil || !owner.Role.IsHomeowner() {
		return domain.Referral{}, domain.ErrNotFound
	}
	if scope != 0 && *owner.ContractorID != scope {
		return domain.Referral{}, domain.ErrNotFound
	}

	referral, _, _, err := s.create(ctx, domain.CreateReferralRequest{
		ContractorID:    *owner.ContractorID,
		ReferrerID:      owner.ID,
		ReferredAddress: address,
	})
	if err != nil {
		return domain.Referral{}, err
	}
	s.telemetry.RecordReferralCreated(ctx)
	s.recordEvent(ctx, referral, analyticsdomain.EventReferralCreated, map[string]any{
		"referral_code": referral.ReferralCode,
		"standing_code": standing,
		"referrer_id":   referral.ReferrerID.String(),
	})
	return referral, nil
}

func (s *Service) acquire(ctx context.Context, id snowflake.ID) (func(), error) {
	lease, err := s.locker.Acquire(ctx, fmt.Sprintf(lockKeyPattern, id.String()), s.lockTTL)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		return nil, domain.ErrLocked
	case err != nil:
		// Redis trouble degrades to the database guards alone.
		s.log.Warn("referral lock unavailable", zap.String("referral_id", id.String()), zap.Error(err))
		return func() {}, nil
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release referral lock", zap.String("referral_id", id.String()), zap.Error(err))
		}
	}, nil
}

func (s *Service) recomputeMetrics(ctx context.Context, contractorID snowflake.ID) {
	if s.metrics == nil {
		return
	}
	if _, err := s.metrics.Recompute(ctx, contractorID); err != nil {
		s.log.Warn("failed to recompute referral metrics",
			zap.String("contractor_id", contractorID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) dispatchReward(ctx context.Context, before, after domain.Referral) {
	if s.rewards == nil {
		return
	}
	if after.Status != lifecycle.StatusComplete || before.Status == lifecycle.StatusComplete {
		return
	}
	if _, err := s.rewards.DispatchForReferral(ctx, after); err != nil {
		s.log.Warn("reward dispatch failed",
			zap.String("referral_id", after.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyReferrer(ctx context.Context, referral domain.Referral, referrer, contractor *userdomain.User) {
	if s.notifier == nil || referrer == nil || contractor == nil {
		return
	}
	recipient := notification.Recipient{Name: referrer.DisplayName, Email: referrer.Email}
	if referrer.Phone != nil {
		recipient.Phone = *referrer.Phone
	}
	s.notify(ctx, referral, "referrer", recipient, notification.Message{
		Kind:         notification.KindReferralCode,
		ReferralCode: referral.ReferralCode,
		CompanyName:  contractor.Company(),
		Link:         s.publicLink(referral.ReferralCode),
	})
}

// notifyReferred sends the code to the referred party when the referral
// carries their contact details.
func (s *Service) notifyReferred(ctx context.Context, referral domain.Referral, referrer, contractor *userdomain.User) {
	if s.notifier == nil || contractor == nil {
		return
	}
	recipient := notification.Recipient{}
	if referral.ReferredEmail != nil {
		recipient.Email = *referral.ReferredEmail
	}
	if referral.ReferredPhone != nil {
		recipient.Phone = *referral.ReferredPhone
	}
	if recipient.Email == "" && recipient.Phone == "" {
		return
	}
	msg := notification.Message{
		Kind:         notification.KindReferralInvite,
		ReferralCode: referral.ReferralCode,
		CompanyName:  contractor.Company(),
		Link:         s.publicLink(referral.ReferralCode),
	}
	if referrer != nil {
		msg.ReferrerName = referrer.DisplayName
	}
	s.notify(ctx, referral, "referred", recipient, msg)
}

func (s *Service) notify(ctx context.Context, referral domain.Referral, audience string, to notification.Recipient, msg notification.Message) {
	err := s.notifier.Send(ctx, to, msg)
	if err == nil {
		return
	}
	s.log.Warn("failed to send referral notification",
		zap.String("referral_id", referral.ID.String()),
		zap.String("audience", audience),
		zap.Error(err),
	)
	s.recordEvent(ctx, referral, analyticsdomain.EventNotificationFailed, map[string]any{
		"audience": audience,
		"kind":     string(msg.Kind),
		"error":    err.Error(),
	})
}

func (s *Service) recordEvent(ctx context.Context, referral domain.Referral, eventType analyticsdomain.EventType, data map[string]any) {
	if s.events == nil {
		return
	}
	referralID := referral.ID
	if err := s.events.Record(ctx, analyticsdomain.RecordInput{
		ContractorID: referral.ContractorID,
		Type:         eventType,
		ReferralID:   &referralID,
		Data:         data,
	}); err != nil {
		s.log.Debug("analytics event dropped", zap.Error(err))
	}
}

func (s *Service) codeExists(ctx context.Context, candidate string) (bool, error) {
	return s.repo.CodeExists(ctx, s.db, candidate)
}

// present re-derives status for today so callers never see a stale value.
func (s *Service) present(items []*domain.Referral) []domain.Referral {
	today := s.today()
	out := make([]domain.Referral, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		item.Refresh(today)
		out = append(out, *item)
	}
	return out
}

func (s *Service) today() time.Time {
	return clock.Today(s.clock, s.loc)
}

func (s *Service) publicLink(referralCode string) string {
	if s.cfg.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/public/referrals/" + referralCode
}

func statusAffecting(before, after domain.Referral) bool {
	return before.Status != after.Status ||
		before.Verified != after.Verified ||
		!equalTimePtr(before.InstallationDate, after.InstallationDate)
}

func optionalEmail(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	email := strings.ToLower(addr.Address)
	return &email, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
