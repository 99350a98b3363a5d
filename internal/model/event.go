package model

import "encoding/json"

// EventType discriminates stream events.
type EventType string

const (
	EventProgress        EventType = "progress"
	EventWaitingApproval EventType = "waiting_approval"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

// Event is one message on a run's event stream. Only the fields relevant
// to Type are serialised.
type Event struct {
	Type EventType `json:"type"`

	// progress, error
	Message string `json:"message,omitempty"`

	// waiting_approval
	ThreadID        string      `json:"thread_id,omitempty"`
	NextNode        string      `json:"next_node,omitempty"`
	Queries         []string    `json:"queries,omitempty"`
	PotentialBrands []BrandLead `json:"potential_brands,omitempty"`

	// complete
	VerifiedBrands []BrandLead `json:"verifiedBrands,omitempty"`
	ExchangeRate   float64     `json:"exchangeRate,omitempty"`
	Cached         bool        `json:"cached,omitempty"`
}

// Progress builds a progress event.
func Progress(msg string) Event {
	return Event{Type: EventProgress, Message: msg}
}

// Failure builds an error event.
func Failure(msg string) Event {
	return Event{Type: EventError, Message: msg}
}

// Complete builds a completion event. A nil brand list is sent as [].
func Complete(brands []BrandLead, rate float64, cached bool) Event {
	if brands == nil {
		brands = []BrandLead{}
	}
	return Event{Type: EventComplete, VerifiedBrands: brands, ExchangeRate: rate, Cached: cached}
}

// IsTerminal reports whether the event ends its stream.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventComplete, EventError, EventWaitingApproval:
		return true
	}
	return false
}

type progressWire struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type waitingWire struct {
	Type            EventType   `json:"type"`
	ThreadID        string      `json:"thread_id"`
	NextNode        string      `json:"next_node"`
	Queries         []string     `json:"queries,omitempty"`
	PotentialBrands *[]BrandLead `json:"potential_brands,omitempty"`
}

type completeWire struct {
	Type           EventType   `json:"type"`
	VerifiedBrands []BrandLead `json:"verifiedBrands"`
	ExchangeRate   float64     `json:"exchangeRate"`
	Cached         bool        `json:"cached,omitempty"`
}

// MarshalJSON emits the per-type wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventWaitingApproval:
		w := waitingWire{
			Type:     e.Type,
			ThreadID: e.ThreadID,
			NextNode: e.NextNode,
			Queries:  e.Queries,
		}
		// A non-nil empty list is sent as [] so reviewers can tell
		// "nothing selected" from a gate that carries no brands.
		if e.PotentialBrands != nil {
			w.PotentialBrands = &e.PotentialBrands
		}
		return json.Marshal(w)
	case EventComplete:
		brands := e.VerifiedBrands
		if brands == nil {
			brands = []BrandLead{}
		}
		return json.Marshal(completeWire{
			Type:           e.Type,
			VerifiedBrands: brands,
			ExchangeRate:   e.ExchangeRate,
			Cached:         e.Cached,
		})
	default:
		return json.Marshal(progressWire{Type: e.Type, Message: e.Message})
	}
}
