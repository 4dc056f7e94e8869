package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/referly/internal/actorcontext"
	"github.com/smallbiznis/referly/internal/errs"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestAuthorizeByRole(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	contractor := actorcontext.Actor{UserID: 1, Role: userdomain.RoleContractor, ContractorID: 1}
	homeowner := actorcontext.Actor{UserID: 2, Role: userdomain.RoleExistingHomeowner, ContractorID: 1}
	referred := actorcontext.Actor{UserID: 3, Role: userdomain.RoleReferredHomeowner, ContractorID: 1}

	tests := []struct {
		name    string
		actor   actorcontext.Actor
		object  string
		action  string
		allowed bool
	}{
		{"contractor imports homeowners", contractor, ObjectHomeowner, ActionHomeownerImport, true},
		{"contractor pays rewards", contractor, ObjectReward, ActionRewardPayout, true},
		{"homeowner issues code", homeowner, ObjectReferral, ActionReferralCreate, true},
		{"homeowner cannot patch", homeowner, ObjectReferral, ActionReferralUpdate, false},
		{"homeowner cannot see metrics", homeowner, ObjectReferralMetric, ActionReferralMetricView, false},
		{"referred verifies", referred, ObjectReferral, ActionReferralVerify, true},
		{"referred cannot issue", referred, ObjectReferral, ActionReferralCreate, false},
		{"object and action must agree", contractor, ObjectReward, ActionReferralView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tt.actor, tt.object, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))
		})
	}
}

func TestAuthorizeRejectsUnknownActors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	err := svc.Authorize(ctx, actorcontext.Actor{}, ObjectReferral, ActionReferralView)
	assert.ErrorIs(t, err, ErrInvalidActor)

	err = svc.Authorize(ctx, actorcontext.Actor{UserID: 9, Role: "admin"}, ObjectReferral, ActionReferralView)
	assert.ErrorIs(t, err, ErrInvalidActor)

	err = svc.Authorize(ctx, actorcontext.Actor{UserID: 9, Role: userdomain.RoleContractor}, " ", ActionReferralView)
	assert.ErrorIs(t, err, ErrInvalidObject)
}

func TestRoleChangeReplacesGrouping(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	actor := actorcontext.Actor{UserID: 7, Role: userdomain.RoleContractor}
	require.NoError(t, svc.Authorize(ctx, actor, ObjectReward, ActionRewardPayout))

	actor.Role = userdomain.RoleReferredHomeowner
	assert.ErrorIs(t, svc.Authorize(ctx, actor, ObjectReward, ActionRewardPayout), ErrForbidden)
}
