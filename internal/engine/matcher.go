package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// Evaluator decides whether a transition's trigger parameters hold on an
// input context. One evaluator is registered per trigger kind.
type Evaluator interface {
	Match(params ir.Object, input ir.Object) (bool, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(params ir.Object, input ir.Object) (bool, error)

// Match implements Evaluator.
func (f EvaluatorFunc) Match(params ir.Object, input ir.Object) (bool, error) {
	return f(params, input)
}

// DefaultEvaluators returns the evaluator for every trigger kind.
//
//   - when_field_changes: {field, when?}, holds when the operation payload
//     touches field and the optional when-conditions hold
//   - every other kind: params are conditions (see MatchConditions)
func DefaultEvaluators() map[model.TriggerKind]Evaluator {
	conditions := EvaluatorFunc(MatchConditions)
	return map[model.TriggerKind]Evaluator{
		model.TriggerOnCardUpdate:      conditions,
		model.TriggerWhenFieldChanges:  EvaluatorFunc(matchFieldChange),
		model.TriggerOnToDoClose:       conditions,
		model.TriggerOnApproveApproved: conditions,
		model.TriggerOnApproveRejected: conditions,
	}
}

// Input context keys populated by the detectors.
const (
	InputCard       = "card"
	InputOperations = "operations"
	InputToDo       = "todo"
)

func matchFieldChange(params ir.Object, input ir.Object) (bool, error) {
	field, ok := params["field"].(ir.String)
	if !ok || field == "" {
		return false, fmt.Errorf("when_field_changes: params.field must be a non-empty string")
	}
	ops, ok := input[InputOperations].(ir.Object)
	if !ok {
		return false, nil
	}
	if !operationsTouch(ops, string(field)) {
		return false, nil
	}
	switch when := params["when"].(type) {
	case nil, ir.Null:
		return true, nil
	case ir.Object:
		return MatchConditions(when, input)
	default:
		return false, fmt.Errorf("when_field_changes: params.when is %T, want object", when)
	}
}

// operationsTouch reports whether a raw operation payload modifies field.
// Mixin payloads are plain attribute objects and parse as assignments.
func operationsTouch(ops ir.Object, field string) bool {
	u, err := ir.ParseUpdate(ops)
	if err != nil {
		return false
	}
	return u.Touches(field)
}

// MatchConditions evaluates a condition object against input.
//
// Each key is a dot path into input; each value is either a literal
// (equality) or an operator object:
//
//	{"card.amount": {"$gte": 100}, "card.status": "open", "approved": {"$exists": true}}
//
// Operands written as "${path}" resolve against input first. Every entry
// must hold; an empty object always holds.
func MatchConditions(conds ir.Object, input ir.Object) (bool, error) {
	for _, path := range conds.SortedKeys() {
		actual, present := input.Lookup(path)
		ok, err := matchCondition(conds[path], actual, present, input)
		if err != nil {
			return false, fmt.Errorf("condition %s: %w", path, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(expected ir.Value, actual ir.Value, present bool, input ir.Object) (bool, error) {
	ops, isOps := operatorObject(expected)
	if !isOps {
		return ir.Equal(Resolve(expected, input), actual), nil
	}
	for _, op := range ops.SortedKeys() {
		operand := Resolve(ops[op], input)
		ok, err := applyOperator(op, operand, actual, present)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// operatorObject reports whether v is an object whose keys are all operators.
func operatorObject(v ir.Value) (ir.Object, bool) {
	obj, ok := v.(ir.Object)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	for k := range obj {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return obj, true
}

func applyOperator(op string, operand, actual ir.Value, present bool) (bool, error) {
	switch op {
	case "$eq":
		return ir.Equal(operand, actual), nil
	case "$ne":
		return !ir.Equal(operand, actual), nil
	case "$gt", "$gte", "$lt", "$lte":
		c, ok := ir.Compare(actual, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, ok := operand.(ir.Array)
		if !ok {
			return false, fmt.Errorf("%s operand is %T, want array", op, operand)
		}
		found := slices.ContainsFunc(list, func(v ir.Value) bool { return ir.Equal(v, actual) })
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$exists":
		want, ok := operand.(ir.Bool)
		if !ok {
			return false, fmt.Errorf("$exists operand is %T, want bool", operand)
		}
		exists := present && !ir.IsNull(actual)
		return exists == bool(want), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// Resolve replaces "${path}" strings, at any depth, with the value found at
// path in input. Unresolvable references become Null.
func Resolve(v ir.Value, input ir.Object) ir.Value {
	switch val := v.(type) {
	case ir.String:
		s := string(val)
		if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
			if found, ok := input.Lookup(s[2 : len(s)-1]); ok {
				return ir.Clone(found)
			}
			return ir.Null{}
		}
		return val
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, elem := range val {
			out[i] = Resolve(elem, input)
		}
		return out
	case ir.Object:
		out := make(ir.Object, len(val))
		for k, elem := range val {
			out[k] = Resolve(elem, input)
		}
		return out
	default:
		return v
	}
}
