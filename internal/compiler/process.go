package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// CompileProcess parses a CUE value into a process definition.
//
// The value is the process struct itself, labelled by the process id:
//
//	process: "review": {
//		master_tag: "card:class:Task"
//		states: [{id: "open"}, {id: "done", terminal: true}]
//		transitions: [{
//			from: "open", to: "done", trigger: "on_card_update"
//			params: { "card.status": "closed" }
//		}]
//	}
//
// A transition without an explicit rank takes its position in the list.
func CompileProcess(v cue.Value) (model.Process, error) {
	if err := v.Err(); err != nil {
		return model.Process{}, formatCUEError(err)
	}

	p := model.Process{ID: labelOf(v)}

	masterTag, _, err := requiredString(v, "master_tag", "master_tag")
	if err != nil {
		return model.Process{}, err
	}
	p.MasterTag = ir.ClassRef(masterTag)

	if p.Name, err = optionalString(v, "name"); err != nil {
		return model.Process{}, err
	}
	if p.AutoStart, err = optionalBool(v, "auto_start"); err != nil {
		return model.Process{}, err
	}
	if p.InitialState, err = optionalString(v, "initial_state"); err != nil {
		return model.Process{}, err
	}

	if p.States, err = parseStates(v); err != nil {
		return model.Process{}, err
	}
	if p.Transitions, err = parseTransitions(v, p.ID); err != nil {
		return model.Process{}, err
	}

	return p, nil
}

func parseStates(v cue.Value) ([]model.State, error) {
	statesVal := v.LookupPath(cue.ParsePath("states"))
	if !statesVal.Exists() {
		return nil, &CompileError{
			Field:   "states",
			Message: "states are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := statesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var states []model.State
	for i := 0; iter.Next(); i++ {
		sv := iter.Value()
		field := fmt.Sprintf("states[%d]", i)
		id, _, err := requiredString(sv, "id", field+".id")
		if err != nil {
			return nil, err
		}
		name, err := optionalString(sv, "name")
		if err != nil {
			return nil, err
		}
		terminal, err := optionalBool(sv, "terminal")
		if err != nil {
			return nil, err
		}
		states = append(states, model.State{ID: id, Name: name, Terminal: terminal})
	}
	return states, nil
}

func parseTransitions(v cue.Value, processID string) ([]model.Transition, error) {
	transVal := v.LookupPath(cue.ParsePath("transitions"))
	if !transVal.Exists() {
		return nil, nil
	}
	iter, err := transVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var transitions []model.Transition
	for i := 0; iter.Next(); i++ {
		t, err := parseTransition(iter.Value(), fmt.Sprintf("transitions[%d]", i), i)
		if err != nil {
			return nil, err
		}
		t.Process = processID
		transitions = append(transitions, t)
	}
	return transitions, nil
}

func parseTransition(v cue.Value, field string, index int) (model.Transition, error) {
	var t model.Transition
	var err error

	if t.ID, err = optionalString(v, "id"); err != nil {
		return t, err
	}
	if t.From, _, err = requiredString(v, "from", field+".from"); err != nil {
		return t, err
	}
	if t.To, _, err = requiredString(v, "to", field+".to"); err != nil {
		return t, err
	}

	trigger, triggerVal, err := requiredString(v, "trigger", field+".trigger")
	if err != nil {
		return t, err
	}
	t.Trigger = model.TriggerKind(trigger)
	if !t.Trigger.Valid() {
		return t, &CompileError{
			Field:   field + ".trigger",
			Message: fmt.Sprintf("unknown trigger %q", trigger),
			Pos:     triggerVal.Pos(),
		}
	}

	t.Rank = index
	if rankVal := v.LookupPath(cue.ParsePath("rank")); rankVal.Exists() {
		rank, err := rankVal.Int64()
		if err != nil {
			return t, formatCUEError(err)
		}
		t.Rank = int(rank)
	}

	if t.TriggerParams, err = optionalObject(v, "params", field+".params"); err != nil {
		return t, err
	}

	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if actionsVal.Exists() {
		aiter, err := actionsVal.List()
		if err != nil {
			return t, formatCUEError(err)
		}
		for j := 0; aiter.Next(); j++ {
			a, err := parseAction(aiter.Value(), fmt.Sprintf("%s.actions[%d]", field, j))
			if err != nil {
				return t, err
			}
			t.Actions = append(t.Actions, a)
		}
	}
	return t, nil
}

func parseAction(v cue.Value, field string) (model.Action, error) {
	var a model.Action
	var err error

	if a.Method, _, err = requiredString(v, "method", field+".method"); err != nil {
		return a, err
	}
	if a.Params, err = optionalObject(v, "params", field+".params"); err != nil {
		return a, err
	}

	resultsVal := v.LookupPath(cue.ParsePath("results"))
	if !resultsVal.Exists() {
		return a, nil
	}
	iter, err := resultsVal.List()
	if err != nil {
		return a, formatCUEError(err)
	}
	for k := 0; iter.Next(); k++ {
		rv := iter.Value()
		rfield := fmt.Sprintf("%s.results[%d]", field, k)
		slot, _, err := requiredString(rv, "slot", rfield+".slot")
		if err != nil {
			return a, err
		}
		key, err := optionalString(rv, "key")
		if err != nil {
			return a, err
		}
		if key == "" {
			key = slot
		}
		a.Results = append(a.Results, model.ResultBinding{Slot: slot, Key: key})
	}
	return a, nil
}
