package actorcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"github.com/stretchr/testify/assert"
)

func TestActorFor(t *testing.T) {
	contractorID := snowflake.ID(10)
	homeowner := userdomain.User{ID: 20, Role: userdomain.RoleExistingHomeowner, ContractorID: &contractorID}
	actor := ActorFor(homeowner)
	assert.Equal(t, snowflake.ID(20), actor.UserID)
	assert.Equal(t, contractorID, actor.ContractorID)
	assert.False(t, actor.IsContractor())

	contractor := ActorFor(userdomain.User{ID: 10, Role: userdomain.RoleContractor})
	assert.Equal(t, snowflake.ID(10), contractor.ContractorID)
	assert.True(t, contractor.IsContractor())
}

func TestActorRoundTrip(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), Actor{UserID: 5, Role: userdomain.RoleContractor, ContractorID: 5})
	actor, ok := ActorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(5), actor.UserID)
}
