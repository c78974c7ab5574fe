package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/SacredTexts/huly/internal/model"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedType = "E100" // value is not a definition

	// Process errors (E101-E119)
	ErrMasterTagEmpty      = "E101" // master_tag is required
	ErrNoStates            = "E102" // at least one state required
	ErrDuplicateState      = "E103" // empty or repeated state id
	ErrUnknownInitialState = "E104" // initial_state names no state
	ErrUnknownState        = "E105" // transition endpoint names no state
	ErrInvalidTrigger      = "E106" // trigger outside the closed set
	ErrRankConflict        = "E107" // two transitions share (from, trigger, rank)
	ErrDuplicateTransition = "E108" // repeated transition id
	ErrLeavesTerminal      = "E109" // transition out of a terminal state
	ErrFieldParamMissing   = "E110" // when_field_changes without params.field
	ErrActionMethodEmpty   = "E111" // action without method
	ErrResultSlotEmpty     = "E112" // result binding without slot
	ErrNegativeRank        = "E113" // rank below zero

	// Class errors (E120-E129)
	ErrClassIDEmpty      = "E120" // class id is required
	ErrClassExtendsEmpty = "E121" // extends is required
	ErrClassSelfExtends  = "E122" // class extends itself
	ErrInvalidAttrType   = "E123" // unknown attribute type
)

// ValidationError is one rule violation in a compiled definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled process or class and returns every violation
// found.
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case model.Process:
		return validateProcess(&d)
	case *model.Process:
		return validateProcess(d)
	case model.Class:
		return validateClass(&d)
	case *model.Class:
		return validateClass(d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported definition type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateProcess(p *model.Process) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(string(p.MasterTag)) == "" {
		add("master_tag", ErrMasterTagEmpty, "master_tag is required")
	}
	if len(p.States) == 0 {
		add("states", ErrNoStates, "at least one state is required")
	}

	states := map[string]model.State{}
	for i, s := range p.States {
		if s.ID == "" {
			add(fmt.Sprintf("states[%d].id", i), ErrDuplicateState, "state id is required")
			continue
		}
		if _, dup := states[s.ID]; dup {
			add(fmt.Sprintf("states[%d].id", i), ErrDuplicateState, "duplicate state id: %q", s.ID)
		}
		states[s.ID] = s
	}
	if p.InitialState != "" {
		if _, ok := states[p.InitialState]; !ok {
			add("initial_state", ErrUnknownInitialState, "initial state %q is not a state of the process", p.InitialState)
		}
	}

	type slot struct {
		from    string
		trigger model.TriggerKind
		rank    int
	}
	ranks := map[slot]int{}
	ids := map[string]bool{}
	for i, t := range p.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)
		if t.ID != "" {
			if ids[t.ID] {
				add(field+".id", ErrDuplicateTransition, "duplicate transition id: %q", t.ID)
			}
			ids[t.ID] = true
		}
		from, fromOK := states[t.From]
		if !fromOK {
			add(field+".from", ErrUnknownState, "from state %q is not a state of the process", t.From)
		}
		if _, ok := states[t.To]; !ok {
			add(field+".to", ErrUnknownState, "to state %q is not a state of the process", t.To)
		}
		if fromOK && from.Terminal {
			add(field+".from", ErrLeavesTerminal, "state %q is terminal and cannot be left", t.From)
		}
		if !t.Trigger.Valid() {
			add(field+".trigger", ErrInvalidTrigger, "unknown trigger %q", t.Trigger)
		}
		if t.Rank < 0 {
			add(field+".rank", ErrNegativeRank, "rank %d is negative", t.Rank)
		}
		key := slot{t.From, t.Trigger, t.Rank}
		if other, ok := ranks[key]; ok {
			add(field+".rank", ErrRankConflict, "rank %d already used by transitions[%d]", t.Rank, other)
		} else {
			ranks[key] = i
		}
		if t.Trigger == model.TriggerWhenFieldChanges {
			if f, ok := t.TriggerParams["field"]; !ok || f == nil {
				add(field+".params.field", ErrFieldParamMissing, "when_field_changes requires params.field")
			}
		}
		for j, a := range t.Actions {
			afield := fmt.Sprintf("%s.actions[%d]", field, j)
			if strings.TrimSpace(a.Method) == "" {
				add(afield+".method", ErrActionMethodEmpty, "action method is required")
			}
			for k, r := range a.Results {
				if r.Slot == "" {
					add(fmt.Sprintf("%s.results[%d].slot", afield, k), ErrResultSlotEmpty, "result slot is required")
				}
			}
		}
	}

	return errs
}

func validateClass(c *model.Class) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(string(c.ID)) == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "class id is required", Code: ErrClassIDEmpty})
	}
	switch {
	case c.Extends == "":
		errs = append(errs, ValidationError{Field: "extends", Message: "extends is required", Code: ErrClassExtendsEmpty})
	case c.Extends == c.ID:
		errs = append(errs, ValidationError{
			Field:   "extends",
			Message: fmt.Sprintf("class %q extends itself", c.ID),
			Code:    ErrClassSelfExtends,
		})
	}
	for _, name := range sortedNames(c.Attributes) {
		if !attributeTypes[c.Attributes[name]] {
			errs = append(errs, ValidationError{
				Field:   "attributes." + name,
				Message: fmt.Sprintf("invalid type %q for attribute %q", c.Attributes[name], name),
				Code:    ErrInvalidAttrType,
			})
		}
	}

	return errs
}

func sortedNames[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
