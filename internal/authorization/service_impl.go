package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/referly/internal/actorcontext"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectReferral       = "referral"
	ObjectHomeowner      = "homeowner"
	ObjectReferralMetric = "referral_metric"
	ObjectReward         = "reward"
	ObjectAnalyticsEvent = "analytics_event"
)

const (
	ActionReferralView   = "referral.view"
	ActionReferralCreate = "referral.create"
	ActionReferralUpdate = "referral.update"
	ActionReferralVerify = "referral.verify"

	ActionHomeownerView   = "homeowner.view"
	ActionHomeownerCreate = "homeowner.create"
	ActionHomeownerImport = "homeowner.import"

	ActionReferralMetricView = "referral_metric.view"

	ActionRewardView   = "reward.view"
	ActionRewardPayout = "reward.payout"

	ActionAnalyticsEventView = "analytics_event.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error {
	if actor.UserID == 0 {
		return ErrInvalidActor
	}
	if _, err := userdomain.ParseRole(string(actor.Role)); err != nil {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", actor.UserID.String())
	if err := s.ensureGrouping(subject, roleName(actor.Role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject. Roles never change
// in practice, but a stale link must not outlive an account edit.
func (s *ServiceImpl) ensureGrouping(subject string, role string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == role {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role)
	return err
}

func roleName(role userdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	contractor := roleName(userdomain.RoleContractor)
	existing := roleName(userdomain.RoleExistingHomeowner)
	referred := roleName(userdomain.RoleReferredHomeowner)

	policies := [][]string{
		{contractor, ObjectReferral, ActionReferralView},
		{contractor, ObjectReferral, ActionReferralCreate},
		{contractor, ObjectReferral, ActionReferralUpdate},
		{contractor, ObjectReferral, ActionReferralVerify},
		{contractor, ObjectHomeowner, ActionHomeownerView},
		{contractor, ObjectHomeowner, ActionHomeownerCreate},
		{contractor, ObjectHomeowner, ActionHomeownerImport},
		{contractor, ObjectReferralMetric, ActionReferralMetricView},
		{contractor, ObjectReward, ActionRewardView},
		{contractor, ObjectReward, ActionRewardPayout},
		{contractor, ObjectAnalyticsEvent, ActionAnalyticsEventView},

		// Existing homeowners share codes and watch their own referrals.
		{existing, ObjectReferral, ActionReferralView},
		{existing, ObjectReferral, ActionReferralCreate},
		{existing, ObjectReward, ActionRewardView},

		// Referred homeowners confirm the referral that brought them in.
		{referred, ObjectReferral, ActionReferralView},
		{referred, ObjectReferral, ActionReferralVerify},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
