package harness

import "github.com/SacredTexts/huly/internal/ir"

// MutationEvent is one committed mutation of a step.
type MutationEvent struct {
	Kind   string   `json:"kind"`
	Class  string   `json:"class"`
	Object string   `json:"object"`
	Fields []string `json:"fields,omitempty"` // attributes an update touched
}

// TraceEvent records one scenario step and everything it committed.
type TraceEvent struct {
	Step      int             `json:"step"`
	Op        string          `json:"op"`
	Tx        string          `json:"tx,omitempty"` // empty when a rollback had nothing to undo
	Success   bool            `json:"success"`
	Mutations []MutationEvent `json:"mutations"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	if ev.Mutations == nil {
		ev.Mutations = []MutationEvent{}
	}
	r.Trace = append(r.Trace, ev)
}

// Value renders the trace in its canonical form.
func (r *Result) Value() ir.Value {
	steps := make(ir.Array, len(r.Trace))
	for i, ev := range r.Trace {
		muts := make(ir.Array, len(ev.Mutations))
		for j, m := range ev.Mutations {
			obj := ir.Object{
				"kind":   ir.String(m.Kind),
				"class":  ir.String(m.Class),
				"object": ir.String(m.Object),
			}
			if len(m.Fields) > 0 {
				fields := make(ir.Array, len(m.Fields))
				for k, f := range m.Fields {
					fields[k] = ir.String(f)
				}
				obj["fields"] = fields
			}
			muts[j] = obj
		}
		step := ir.Object{
			"step":      ir.Int(ev.Step),
			"op":        ir.String(ev.Op),
			"success":   ir.Bool(ev.Success),
			"mutations": muts,
		}
		if ev.Tx != "" {
			step["tx"] = ir.String(ev.Tx)
		}
		steps[i] = step
	}
	return steps
}
