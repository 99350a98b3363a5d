package pipeline

import (
	"github.com/rotisserie/eris"
)

// Registry is the ordered list of stages a run walks through.
type Registry struct {
	stages []Stage
	index  map[string]int
}

// NewRegistry registers stages in order.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{index: make(map[string]int)}
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends s. Names must be unique.
func (r *Registry) Register(s Stage) error {
	if _, dup := r.index[s.Name()]; dup {
		return eris.Errorf("pipeline: stage %q already registered", s.Name())
	}
	r.index[s.Name()] = len(r.stages)
	r.stages = append(r.stages, s)
	return nil
}

// Len returns the number of registered stages.
func (r *Registry) Len() int { return len(r.stages) }

// At returns the stage at index i.
func (r *Registry) At(i int) Stage { return r.stages[i] }

// Index returns the position of the named stage.
func (r *Registry) Index(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

// Names lists stage names in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name()
	}
	return names
}

// Gate returns the gate stage suspending at gate, if registered.
func (r *Registry) Gate(gate string) (*GateStage, int, bool) {
	i, ok := r.index[gateStageName(gate)]
	if !ok {
		return nil, 0, false
	}
	g, ok := r.stages[i].(*GateStage)
	return g, i, ok
}
