// Package approval translates between suspended runs and the human
// decisions that resume them.
package approval

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// Gate names. They double as the next_node value of a waiting_approval event.
const (
	GateDiscovery   = "discovery"
	GatePersistence = "persistence"
)

// Action is the caller's verdict on a suspended run.
type Action string

const (
	ActionApprove Action = "approve"
	// ActionModify approves with edited data.
	ActionModify Action = "modify"
	ActionReject Action = "reject"
)

// ErrInvalidDecision marks a decision that cannot be applied.
var ErrInvalidDecision = eris.New("approval: invalid decision")

// Payload is the data a gate puts up for review.
type Payload struct {
	Queries []string          `json:"queries,omitempty"`
	Brands  []model.BrandLead `json:"potential_brands,omitempty"`
}

// Decision is a parsed resume request. Queries and Brands are nil when the
// caller sent no replacement.
type Decision struct {
	Gate    string
	Action  Action
	Queries []string
	Brands  []model.BrandLead
}

// Rejected reports whether the decision ends the run.
func (d Decision) Rejected() bool { return d.Action == ActionReject }

// decisionData accepts both the payload's own key and the shorter alias.
type decisionData struct {
	Queries         *[]string          `json:"queries"`
	Brands          *[]model.BrandLead `json:"brands"`
	PotentialBrands *[]model.BrandLead `json:"potential_brands"`
}

// KnownGate reports whether name is a gate this service can suspend at.
func KnownGate(name string) bool {
	return name == GateDiscovery || name == GatePersistence
}

// ParseDecision validates a resume request for gate. A blank action means
// approve. Data is optional for approve, required for modify and ignored
// for reject.
func ParseDecision(gate, action string, raw json.RawMessage) (Decision, error) {
	if !KnownGate(gate) {
		return Decision{}, eris.Wrapf(ErrInvalidDecision, "unknown gate %q", gate)
	}
	d := Decision{Gate: gate, Action: Action(strings.ToLower(strings.TrimSpace(action)))}
	if d.Action == "" {
		d.Action = ActionApprove
	}
	switch d.Action {
	case ActionApprove, ActionModify:
	case ActionReject:
		return d, nil
	default:
		return Decision{}, eris.Wrapf(ErrInvalidDecision, "unknown action %q", action)
	}

	raw = bytes.TrimSpace(raw)
	hasData := len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
	if !hasData {
		if d.Action == ActionModify {
			return Decision{}, eris.Wrap(ErrInvalidDecision, "modify requires data")
		}
		return d, nil
	}

	var data decisionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Decision{}, eris.Wrapf(ErrInvalidDecision, "malformed data: %v", err)
	}

	switch gate {
	case GateDiscovery:
		if data.Queries != nil {
			queries := cleanQueries(*data.Queries)
			if len(queries) == 0 {
				return Decision{}, eris.Wrap(ErrInvalidDecision, "queries must not be empty")
			}
			d.Queries = queries
		}
	case GatePersistence:
		brands := data.Brands
		if brands == nil {
			brands = data.PotentialBrands
		}
		if brands != nil {
			d.Brands = *brands
			if d.Brands == nil {
				d.Brands = []model.BrandLead{}
			}
		}
	}
	if d.Action == ActionModify && d.Queries == nil && d.Brands == nil {
		return Decision{}, eris.Wrapf(ErrInvalidDecision, "modify carries no data for gate %s", gate)
	}
	return d, nil
}

func cleanQueries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// WaitingEvent builds the event announcing that threadID is suspended at gate.
// The persistence gate always carries a brand list, even an empty one.
func WaitingEvent(threadID, gate string, p Payload) model.Event {
	if gate == GatePersistence && p.Brands == nil {
		p.Brands = []model.BrandLead{}
	}
	return model.Event{
		Type:            model.EventWaitingApproval,
		ThreadID:        threadID,
		NextNode:        gate,
		Queries:         p.Queries,
		PotentialBrands: p.Brands,
	}
}
