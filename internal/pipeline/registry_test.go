package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmonteiro/brands-ai/internal/approval"
	"github.com/drmonteiro/brands-ai/internal/config"
	"github.com/drmonteiro/brands-ai/internal/model"
)

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(newFuncStage("a", nil), newFuncStage("a", nil))
	assert.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	reg, err := NewRegistry(newFuncStage("a", nil), NewDiscoveryGate(), newFuncStage("b", nil))
	require.NoError(t, err)

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"a", "gate:discovery", "b"}, reg.Names())

	i, ok := reg.Index("b")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	g, gi, ok := reg.Gate("discovery")
	require.True(t, ok)
	assert.Equal(t, 1, gi)
	assert.Equal(t, "discovery", g.Gate())

	_, _, ok = reg.Gate("persistence")
	assert.False(t, ok)
}

func TestDefaultRegistry_Order(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.DiscoveryGate = true
	cfg.Pipeline.PersistenceGate = true

	reg, err := DefaultRegistry(cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"initialize", "gate:discovery", "discovery", "validation", "gate:persistence", "persistence",
	}, reg.Names())

	cfg.Pipeline.DiscoveryGate = false
	cfg.Pipeline.PersistenceGate = false
	reg, err = DefaultRegistry(cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"initialize", "discovery", "validation", "persistence"}, reg.Names())
}

func TestGateStage_RunAndApply(t *testing.T) {
	state := &model.RunState{
		SearchQueries:   []string{"q"},
		PotentialBrands: []model.BrandLead{{Name: "A"}},
	}

	res := NewDiscoveryGate().Run(context.Background(), testStageContext(), state)
	assert.Equal(t, OutcomeSuspend, res.Outcome)
	assert.Equal(t, approval.GateDiscovery, res.Gate)
	assert.Equal(t, []string{"q"}, res.Payload.Queries)

	res = NewPersistenceGate().Run(context.Background(), testStageContext(), state)
	assert.Equal(t, approval.GatePersistence, res.Gate)
	assert.Len(t, res.Payload.Brands, 1)

	NewDiscoveryGate().Apply(state, approval.Decision{Action: approval.ActionApprove})
	assert.True(t, state.QueriesApproved)
	assert.Equal(t, []string{"q"}, state.SearchQueries)

	NewPersistenceGate().Apply(state, approval.Decision{Action: approval.ActionModify, Brands: []model.BrandLead{}})
	assert.True(t, state.BrandsApproved)
	assert.Empty(t, state.PotentialBrands)
}

func TestPersistenceGate_NothingToReview(t *testing.T) {
	state := &model.RunState{}
	res := NewPersistenceGate().Run(context.Background(), testStageContext(), state)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, "No brands to review", res.Message)
	assert.False(t, state.BrandsApproved)

	res = NewDiscoveryGate().Run(context.Background(), testStageContext(), state)
	assert.Equal(t, OutcomeSuspend, res.Outcome)
}
