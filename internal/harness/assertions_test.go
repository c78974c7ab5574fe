package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
)

var sampleTrace = []TraceEvent{
	{Step: 1, Op: OpCreate, Tx: "engine-2", Success: true, Mutations: []MutationEvent{
		{Kind: "create", Class: "card:class:Task", Object: "card-1"},
		{Kind: "create", Class: "process:class:Execution", Object: "execution#1"},
	}},
	{Step: 2, Op: OpUpdate, Tx: "engine-4", Success: true, Mutations: []MutationEvent{
		{Kind: "update", Class: "process:class:Execution", Object: "execution#1", Fields: []string{"current_state"}},
		{Kind: "update", Class: "card:class:Task", Object: "card-1", Fields: []string{"status"}},
	}},
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name  string
		a     Assertion
		fails bool
	}{
		{name: "any kind", a: Assertion{Class: "card:class:Task", Count: intPtr(2)}},
		{name: "one kind", a: Assertion{Class: "process:class:Execution", Kind: "update", Count: intPtr(1)}},
		{name: "absent class", a: Assertion{Class: "process:class:ToDo", Count: intPtr(0)}},
		{name: "wrong count", a: Assertion{Class: "card:class:Task", Kind: "remove", Count: intPtr(1)}, fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(sampleTrace, tt.a)
			if tt.fails {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "1 mutations of remove card:class:Task")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertionErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 mutations of card:class:Task",
		Actual:   "2 mutations",
		Trace:    sampleTrace[:1],
	}
	want := "Assertion failed: trace_count\n" +
		"  Expected: 1 mutations of card:class:Task\n" +
		"  Actual: 2 mutations\n" +
		"\nFull trace:\n" +
		"  [1] create engine-2\n" +
		"      create card:class:Task card-1\n" +
		"      create process:class:Execution execution#1\n"
	assert.Equal(t, want, err.Error())

	err.Trace = nil
	assert.NotContains(t, err.Error(), "Full trace")
}

func TestMatchSubset(t *testing.T) {
	actual := ir.Object{
		"status": ir.String("review"),
		"points": ir.Int(3),
		"meta":   ir.Object{"tags": ir.Array{ir.String("a")}},
	}

	assert.NoError(t, matchSubset("document", "card-1", actual, nil))
	assert.NoError(t, matchSubset("document", "card-1", actual, map[string]any{
		"status": "review",
		"meta":   map[string]any{"tags": []any{"a"}},
	}))
	assert.NoError(t, matchSubset("document", "card-1", actual, map[string]any{"missing": nil}))

	err := matchSubset("document", "card-1", actual, map[string]any{"points": 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: card-1.points = 4")
	assert.Contains(t, err.Error(), "Actual: card-1.points = 3")

	err = matchSubset("document", "card-1", actual, map[string]any{"owner": "ana"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card-1.owner = <missing>")
}

func TestEvaluateAssertionsWithoutWorkspace(t *testing.T) {
	result := &Result{Trace: sampleTrace}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Class: "card:class:Task", Count: intPtr(2)},
		{Type: AssertDocument, ID: "card-1"},
		{Type: "bogus"},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "document requires a workspace")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestResultValue(t *testing.T) {
	r := NewResult()
	r.AddStep(TraceEvent{Step: 1, Op: OpRollback, Success: true})
	r.AddStep(sampleTrace[1])

	data, err := Snapshot("s", r)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"s","trace":[`+
		`{"mutations":[],"op":"rollback","step":1,"success":true},`+
		`{"mutations":[{"class":"process:class:Execution","fields":["current_state"],"kind":"update","object":"execution#1"},`+
		`{"class":"card:class:Task","fields":["status"],"kind":"update","object":"card-1"}],"op":"update","step":2,"success":true,"tx":"engine-4"}]}`,
		string(data))

	r.AddError("boom")
	assert.False(t, r.Pass)
}
