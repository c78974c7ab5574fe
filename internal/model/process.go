package model

import (
	"slices"

	"github.com/SacredTexts/huly/internal/ir"
)

// TriggerKind is the closed set of events a transition can fire on.
type TriggerKind string

const (
	// TriggerOnCardUpdate fires on any update of the execution's card.
	TriggerOnCardUpdate TriggerKind = "on_card_update"
	// TriggerWhenFieldChanges fires when an update touches a given field.
	TriggerWhenFieldChanges TriggerKind = "when_field_changes"
	// TriggerOnToDoClose fires when a checkpoint of the execution is completed.
	TriggerOnToDoClose TriggerKind = "on_todo_close"
	// TriggerOnApproveApproved fires when an approval checkpoint is approved.
	TriggerOnApproveApproved TriggerKind = "on_approve_approved"
	// TriggerOnApproveRejected fires when an approval checkpoint is rejected.
	TriggerOnApproveRejected TriggerKind = "on_approve_rejected"
)

// TriggerKinds lists every valid trigger kind.
var TriggerKinds = []TriggerKind{
	TriggerOnCardUpdate,
	TriggerWhenFieldChanges,
	TriggerOnToDoClose,
	TriggerOnApproveApproved,
	TriggerOnApproveRejected,
}

// Valid reports whether k is one of TriggerKinds.
func (k TriggerKind) Valid() bool {
	return slices.Contains(TriggerKinds, k)
}

// Process is a workflow definition bound to a master document type.
type Process struct {
	ID           string      `json:"id"`
	Name         string      `json:"name,omitempty"`
	MasterTag    ir.ClassRef `json:"master_tag"`
	AutoStart    bool        `json:"auto_start"`
	InitialState string      `json:"initial_state"`
	States       []State     `json:"states"`
	Transitions  []Transition `json:"transitions"`
}

// State returns the state with the given id.
func (p Process) State(id string) (State, bool) {
	for _, s := range p.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// State is a node of the process graph.
type State struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

// Transition is an edge fired by a trigger whose parameters hold.
type Transition struct {
	ID            string      `json:"id"`
	Process       string      `json:"process"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	Trigger       TriggerKind `json:"trigger"`
	TriggerParams ir.Object   `json:"trigger_params,omitempty"`
	Actions       []Action    `json:"actions,omitempty"`
	Rank          int         `json:"rank"`
}

// Action is executed, in order, when its transition fires.
type Action struct {
	Method  string          `json:"method"`
	Params  ir.Object       `json:"params,omitempty"`
	Results []ResultBinding `json:"results,omitempty"`
}

// ResultBinding copies checkpoint attribute Slot into context key Key
// once the checkpoint is completed.
type ResultBinding struct {
	Slot string `json:"slot"`
	Key  string `json:"key"`
}

// ResultBindingsToValue renders bindings as stored on a checkpoint.
func ResultBindingsToValue(bindings []ResultBinding) ir.Array {
	arr := make(ir.Array, len(bindings))
	for i, b := range bindings {
		arr[i] = ir.Object{"slot": ir.String(b.Slot), "key": ir.String(b.Key)}
	}
	return arr
}

// ResultBindingsFromValue parses bindings stored on a checkpoint.
// Malformed entries are skipped.
func ResultBindingsFromValue(v ir.Value) []ResultBinding {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil
	}
	var out []ResultBinding
	for _, elem := range arr {
		obj, ok := elem.(ir.Object)
		if !ok {
			continue
		}
		slot, _ := obj["slot"].(ir.String)
		key, _ := obj["key"].(ir.String)
		if slot == "" {
			continue
		}
		if key == "" {
			key = slot
		}
		out = append(out, ResultBinding{Slot: string(slot), Key: string(key)})
	}
	return out
}
