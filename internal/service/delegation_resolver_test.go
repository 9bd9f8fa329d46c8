package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
)

func resolverStore() *memory.Store {
	s := memory.New()
	s.PutUser(&repository.User{ID: "sup-1", Role: repository.RoleSuperintendent, VesselAssignments: []string{vessel}})
	s.PutUser(&repository.User{ID: "sup-relief", Role: repository.RoleSuperintendent})
	s.PutUser(&repository.User{ID: "sup-other", Role: repository.RoleSuperintendent})
	return s
}

func delegation(id, to, vesselID string, start, end, created time.Time) *repository.Delegation {
	return &repository.Delegation{
		ID:         id,
		FromUserID: "sup-1",
		ToUserID:   to,
		VesselID:   vesselID,
		StartDate:  start,
		EndDate:    end,
		Reason:     "leave",
		CreatedAt:  created,
	}
}

func TestResolveDefaultApprover(t *testing.T) {
	r := NewDelegationResolver(resolverStore(), logger.Nop())

	res, err := r.ResolveApprover(context.Background(), repository.RoleSuperintendent, vessel, march15)
	require.NoError(t, err)
	assert.Equal(t, "sup-1", res.ApproverID)
	assert.False(t, res.Delegated)
	assert.Empty(t, res.OriginalApproverID)
}

func TestResolveActiveDelegation(t *testing.T) {
	s := resolverStore()
	day := 24 * time.Hour
	s.PutDelegation(delegation("d-1", "sup-relief", vessel, march15.Add(-day), march15.Add(day), march15.Add(-2*day)))
	r := NewDelegationResolver(s, logger.Nop())

	res, err := r.ResolveApprover(context.Background(), repository.RoleSuperintendent, vessel, march15)
	require.NoError(t, err)
	assert.Equal(t, "sup-relief", res.ApproverID)
	assert.True(t, res.Delegated)
	assert.Equal(t, "sup-1", res.OriginalApproverID)
	assert.Equal(t, "d-1", res.DelegationID)
	assert.False(t, res.Ambiguous)
}

func TestResolveIgnoresInactiveAndForeignDelegations(t *testing.T) {
	s := resolverStore()
	day := 24 * time.Hour
	s.PutDelegation(delegation("expired", "sup-relief", vessel, march15.Add(-10*day), march15.Add(-day), march15.Add(-10*day)))
	s.PutDelegation(delegation("future", "sup-relief", vessel, march15.Add(day), march15.Add(3*day), march15))
	s.PutDelegation(delegation("other-vessel", "sup-other", "v-2", march15.Add(-day), march15.Add(day), march15))
	r := NewDelegationResolver(s, logger.Nop())

	res, err := r.ResolveApprover(context.Background(), repository.RoleSuperintendent, vessel, march15)
	require.NoError(t, err)
	assert.Equal(t, "sup-1", res.ApproverID)
	assert.False(t, res.Delegated)
}

func TestResolveOverlappingDelegationsPicksMostRecent(t *testing.T) {
	s := resolverStore()
	day := 24 * time.Hour
	s.PutDelegation(delegation("older", "sup-other", vessel, march15.Add(-day), march15.Add(day), march15.Add(-3*day)))
	s.PutDelegation(delegation("newer", "sup-relief", vessel, march15.Add(-day), march15.Add(day), march15.Add(-2*day)))
	r := NewDelegationResolver(s, logger.Nop())

	res, err := r.ResolveApprover(context.Background(), repository.RoleSuperintendent, vessel, march15)
	require.NoError(t, err)
	assert.Equal(t, "sup-relief", res.ApproverID)
	assert.Equal(t, "newer", res.DelegationID)
	assert.True(t, res.Ambiguous)
}

func TestResolveWithoutApproverIsConfigurationError(t *testing.T) {
	r := NewDelegationResolver(resolverStore(), logger.Nop())

	_, err := r.ResolveApprover(context.Background(), repository.RoleSeniorManagement, vessel, march15)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestCanActFor(t *testing.T) {
	s := resolverStore()
	day := 24 * time.Hour
	s.PutDelegation(delegation("d-1", "sup-relief", vessel, march15.Add(-day), march15.Add(day), march15))
	r := NewDelegationResolver(s, logger.Nop())
	ctx := context.Background()

	ok, err := r.CanActFor(ctx, "sup-1", "sup-1", vessel, march15)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanActFor(ctx, "sup-1", "sup-relief", vessel, march15)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanActFor(ctx, "sup-1", "sup-relief", vessel, march15.Add(2*day))
	require.NoError(t, err)
	assert.False(t, ok, "delegation window has closed")

	ok, err = r.CanActFor(ctx, "sup-1", "sup-other", vessel, march15)
	require.NoError(t, err)
	assert.False(t, ok)
}
