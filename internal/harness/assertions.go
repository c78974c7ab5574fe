package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/workspace"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace for context, may be nil
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Step, ev.Op, ev.Tx)
			for _, m := range ev.Mutations {
				fmt.Fprintf(&buf, "      %s %s %s\n", m.Kind, m.Class, m.Object)
			}
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the finished workspace.
type AssertionContext struct {
	Workspace *workspace.Workspace
	Ctx       context.Context
}

// EvaluateAssertions evaluates all assertions against the result and the
// workspace. Returns a message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertExecution, AssertExecutions, AssertCheckpoints, AssertDocument:
			if actx == nil || actx.Workspace == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a workspace", i, a.Type)
				break
			}
			err = assertState(actx.Ctx, actx.Workspace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertState(ctx context.Context, ws *workspace.Workspace, a Assertion) error {
	switch a.Type {
	case AssertExecution:
		return assertExecution(ctx, ws, a)
	case AssertExecutions:
		return assertExecutions(ctx, ws, a)
	case AssertCheckpoints:
		return assertCheckpoints(ctx, ws, a)
	default:
		return assertDocument(ctx, ws, a)
	}
}

// assertTraceCount counts committed mutations on a class, optionally of
// one kind.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		for _, m := range ev.Mutations {
			if m.Class == a.Class && (a.Kind == "" || m.Kind == a.Kind) {
				count++
			}
		}
	}
	if count != *a.Count {
		what := a.Class
		if a.Kind != "" {
			what = a.Kind + " " + a.Class
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d mutations of %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d mutations", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertExecution(ctx context.Context, ws *workspace.Workspace, a Assertion) error {
	exec, ok, err := findExecution(ctx, ws, ir.Ref(a.Card), a.Process)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertExecution,
			Expected: fmt.Sprintf("execution of %s on %s", a.Process, a.Card),
			Actual:   "no execution",
		}
	}
	if a.State != "" && exec.CurrentState != a.State {
		return &AssertionError{
			Type:     AssertExecution,
			Expected: fmt.Sprintf("%s on %s in state %s", a.Process, a.Card, a.State),
			Actual:   fmt.Sprintf("state %s", exec.CurrentState),
		}
	}
	if a.Status != "" && string(exec.Status) != a.Status {
		return &AssertionError{
			Type:     AssertExecution,
			Expected: fmt.Sprintf("%s on %s with status %s", a.Process, a.Card, a.Status),
			Actual:   fmt.Sprintf("status %s", exec.Status),
		}
	}
	return matchSubset(AssertExecution, "context", exec.Context, a.Context)
}

func assertExecutions(ctx context.Context, ws *workspace.Workspace, a Assertion) error {
	execs, err := engine.ExecutionsOf(ctx, ws.Store, ir.Ref(a.Card))
	if err != nil {
		return err
	}
	if len(execs) != *a.Count {
		return &AssertionError{
			Type:     AssertExecutions,
			Expected: fmt.Sprintf("%d executions on %s", *a.Count, a.Card),
			Actual:   fmt.Sprintf("%d executions", len(execs)),
		}
	}
	return nil
}

func assertCheckpoints(ctx context.Context, ws *workspace.Workspace, a Assertion) error {
	exec, ok, err := findExecution(ctx, ws, ir.Ref(a.Card), a.Process)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertCheckpoints,
			Expected: fmt.Sprintf("execution of %s on %s", a.Process, a.Card),
			Actual:   "no execution",
		}
	}
	todos, err := engine.CheckpointsOf(ctx, ws.Store, exec.ID)
	if err != nil {
		return err
	}
	open := 0
	for _, t := range todos {
		if !t.Done() {
			open++
		}
	}
	if a.Count != nil && len(todos) != *a.Count {
		return &AssertionError{
			Type:     AssertCheckpoints,
			Expected: fmt.Sprintf("%d checkpoints for %s on %s", *a.Count, a.Process, a.Card),
			Actual:   fmt.Sprintf("%d checkpoints", len(todos)),
		}
	}
	if a.Open != nil && open != *a.Open {
		return &AssertionError{
			Type:     AssertCheckpoints,
			Expected: fmt.Sprintf("%d open checkpoints for %s on %s", *a.Open, a.Process, a.Card),
			Actual:   fmt.Sprintf("%d open", open),
		}
	}
	return nil
}

func assertDocument(ctx context.Context, ws *workspace.Workspace, a Assertion) error {
	doc, found, err := ws.Store.Get(ctx, ir.Ref(a.ID))
	if err != nil {
		return err
	}
	want := a.Exists == nil || *a.Exists
	if found != want {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("document %s exists: %t", a.ID, want),
			Actual:   fmt.Sprintf("exists: %t", found),
		}
	}
	if !found {
		return nil
	}
	return matchSubset(AssertDocument, a.ID, doc.Attributes, a.Attrs)
}

// matchSubset checks that every expected entry is present in actual with
// an equal value. A null expectation also matches an absent key.
func matchSubset(typ, what string, actual ir.Object, expected map[string]any) error {
	if len(expected) == 0 {
		return nil
	}
	want, err := ir.ObjectFromAny(expected)
	if err != nil {
		return fmt.Errorf("%s: expected %s: %w", typ, what, err)
	}
	for _, k := range want.SortedKeys() {
		got := actual[k]
		if !ir.Equal(got, want[k]) {
			return &AssertionError{
				Type:     typ,
				Expected: fmt.Sprintf("%s.%s = %s", what, k, ir.MustEncode(want[k])),
				Actual:   fmt.Sprintf("%s.%s = %s", what, k, encodeOrMissing(got)),
			}
		}
	}
	return nil
}

func encodeOrMissing(v ir.Value) string {
	if v == nil {
		return "<missing>"
	}
	return string(ir.MustEncode(v))
}
