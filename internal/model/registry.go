package model

import (
	"fmt"
	"slices"
	"sync"

	"github.com/SacredTexts/huly/internal/ir"
)

// Registry holds validated process definitions and answers the engine's
// definition lookups. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	hierarchy *Hierarchy
	processes map[string]Process
	order     []string
}

// NewRegistry returns an empty registry. When h is non-nil, master tags
// must be defined in it.
func NewRegistry(h *Hierarchy) *Registry {
	return &Registry{hierarchy: h, processes: map[string]Process{}}
}

// Register validates p and adds it. Transitions are stored sorted by
// (from, trigger, rank).
func (r *Registry) Register(p Process) error {
	p, err := r.normalize(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processes[p.ID]; ok {
		return &DefinitionError{Code: ErrCodeDuplicate, Message: "process already registered", Process: p.ID}
	}
	r.processes[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

func (r *Registry) normalize(p Process) (Process, error) {
	if p.ID == "" {
		return p, &DefinitionError{Code: ErrCodeInvalid, Message: "process has no id"}
	}
	if p.MasterTag == "" {
		return p, &DefinitionError{Code: ErrCodeInvalid, Message: "process has no master tag", Process: p.ID}
	}
	if r.hierarchy != nil && !r.hierarchy.Has(p.MasterTag) {
		return p, &DefinitionError{Code: ErrCodeUnknownClass, Message: fmt.Sprintf("master tag %s is not defined", p.MasterTag), Process: p.ID}
	}
	if len(p.States) == 0 {
		return p, &DefinitionError{Code: ErrCodeInvalid, Message: "process has no states", Process: p.ID}
	}
	seen := map[string]bool{}
	for _, s := range p.States {
		if s.ID == "" || seen[s.ID] {
			return p, &DefinitionError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("state %q is empty or repeated", s.ID), Process: p.ID}
		}
		seen[s.ID] = true
	}
	if p.InitialState == "" {
		p.InitialState = p.States[0].ID
	}
	if !seen[p.InitialState] {
		return p, &DefinitionError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("initial state %q is not a state of the process", p.InitialState), Process: p.ID}
	}

	type slot struct {
		from    string
		trigger TriggerKind
		rank    int
	}
	ranks := map[slot]string{}
	ids := map[string]bool{}
	transitions := make([]Transition, len(p.Transitions))
	for i, t := range p.Transitions {
		if t.ID == "" {
			t.ID = fmt.Sprintf("%s/%d", p.ID, i)
		}
		if ids[t.ID] {
			return p, &DefinitionError{Code: ErrCodeDuplicate, Message: "transition id repeated", Process: p.ID, Transition: t.ID}
		}
		ids[t.ID] = true
		if t.Process == "" {
			t.Process = p.ID
		}
		if t.Process != p.ID {
			return p, &DefinitionError{Code: ErrCodeInvalid, Message: fmt.Sprintf("transition belongs to process %s", t.Process), Process: p.ID, Transition: t.ID}
		}
		if !seen[t.From] {
			return p, &DefinitionError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("from state %q is not a state of the process", t.From), Process: p.ID, Transition: t.ID}
		}
		if !seen[t.To] {
			return p, &DefinitionError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("to state %q is not a state of the process", t.To), Process: p.ID, Transition: t.ID}
		}
		if !t.Trigger.Valid() {
			return p, &DefinitionError{Code: ErrCodeInvalidTrigger, Message: fmt.Sprintf("unknown trigger %q", t.Trigger), Process: p.ID, Transition: t.ID}
		}
		key := slot{t.From, t.Trigger, t.Rank}
		if other, ok := ranks[key]; ok {
			return p, &DefinitionError{Code: ErrCodeRankConflict, Message: fmt.Sprintf("rank %d already used by %s", t.Rank, other), Process: p.ID, Transition: t.ID}
		}
		ranks[key] = t.ID
		transitions[i] = t
	}
	slices.SortStableFunc(transitions, func(a, b Transition) int {
		if a.From != b.From {
			if a.From < b.From {
				return -1
			}
			return 1
		}
		if c := triggerOrder(a.Trigger) - triggerOrder(b.Trigger); c != 0 {
			return c
		}
		return a.Rank - b.Rank
	})
	p.Transitions = transitions
	return p, nil
}

func triggerOrder(k TriggerKind) int {
	return slices.Index(TriggerKinds, k)
}

// Process returns the process with the given id.
func (r *Registry) Process(id string) (Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processes[id]
	return p, ok
}

// Processes returns every process in registration order.
func (r *Registry) Processes() []Process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Process, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.processes[id])
	}
	return out
}

// AutostartProcesses returns the autostart processes whose master tag is
// one of tags, in registration order.
func (r *Registry) AutostartProcesses(tags []ir.ClassRef) []Process {
	var out []Process
	for _, p := range r.Processes() {
		if p.AutoStart && slices.Contains(tags, p.MasterTag) {
			out = append(out, p)
		}
	}
	return out
}

// Transitions returns the transitions of process leaving from whose
// trigger is one of kinds, ordered by ascending rank. Equal ranks across
// different kinds fall back to the TriggerKinds order.
func (r *Registry) Transitions(process, from string, kinds ...TriggerKind) []Transition {
	p, ok := r.Process(process)
	if !ok {
		return nil
	}
	var out []Transition
	for _, t := range p.Transitions {
		if t.From == from && slices.Contains(kinds, t.Trigger) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b Transition) int {
		if a.Rank != b.Rank {
			return a.Rank - b.Rank
		}
		return triggerOrder(a.Trigger) - triggerOrder(b.Trigger)
	})
	return out
}

// State returns a state of process.
func (r *Registry) State(process, state string) (State, bool) {
	p, ok := r.Process(process)
	if !ok {
		return State{}, false
	}
	return p.State(state)
}
