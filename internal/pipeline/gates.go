package pipeline

import (
	"context"

	"github.com/drmonteiro/brands-ai/internal/approval"
	"github.com/drmonteiro/brands-ai/internal/model"
)

func gateStageName(gate string) string { return "gate:" + gate }

// GateStage suspends the run for human review of the data the next stage
// will consume, and merges the reviewer's decision back on resume. The
// persistence gate is passed through when there are no brands to review.
type GateStage struct {
	gate string
}

// NewDiscoveryGate reviews the search queries before discovery runs.
func NewDiscoveryGate() *GateStage { return &GateStage{gate: approval.GateDiscovery} }

// NewPersistenceGate reviews the selected brands before they are saved.
func NewPersistenceGate() *GateStage { return &GateStage{gate: approval.GatePersistence} }

func (g *GateStage) Name() string { return gateStageName(g.gate) }

// Gate returns the gate name used on the wire.
func (g *GateStage) Gate() string { return g.gate }

func (g *GateStage) Description() string { return "Waiting for approval: " + g.gate }

func (g *GateStage) Run(_ context.Context, _ *StageContext, state *model.RunState) StageResult {
	switch g.gate {
	case approval.GateDiscovery:
		return Suspend(g.gate, approval.Payload{Queries: state.SearchQueries})
	default:
		if len(state.PotentialBrands) == 0 {
			return ContinueWith("No brands to review")
		}
		return Suspend(g.gate, approval.Payload{Brands: state.PotentialBrands})
	}
}

// Apply merges an approving decision into state. Replacement data, when
// present, overrides what the gate put up for review.
func (g *GateStage) Apply(state *model.RunState, d approval.Decision) {
	switch g.gate {
	case approval.GateDiscovery:
		if d.Queries != nil {
			state.SearchQueries = d.Queries
		}
		state.QueriesApproved = true
	case approval.GatePersistence:
		if d.Brands != nil {
			state.PotentialBrands = d.Brands
		}
		state.BrandsApproved = true
	}
}
