package model

import (
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
)

// ExecutionStatus is the lifecycle of an Execution.
type ExecutionStatus string

const (
	StatusActive    ExecutionStatus = "active"
	StatusDone      ExecutionStatus = "done"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Execution is a running instance of a Process bound to one card.
type Execution struct {
	ID           ir.Ref
	Space        string
	Process      string
	Card         ir.Ref
	CurrentState string
	Context      ir.Object
	Status       ExecutionStatus
}

// Target addresses the execution document.
func (e Execution) Target() ir.Target {
	return ir.Target{ObjectID: e.ID, ObjectClass: ClassExecution, ObjectSpace: e.Space}
}

// Attributes renders the execution as document attributes.
func (e Execution) Attributes() ir.Object {
	ctx := e.Context
	if ctx == nil {
		ctx = ir.Object{}
	}
	return ir.Object{
		AttrProcess:      ir.String(e.Process),
		AttrCard:         ir.String(e.Card),
		AttrCurrentState: ir.String(e.CurrentState),
		AttrContext:      ctx.Clone(),
		AttrStatus:       ir.String(e.Status),
	}
}

// ExecutionFromDoc reads an execution document.
func ExecutionFromDoc(doc ir.Doc) (Execution, error) {
	if doc.Class != ClassExecution {
		return Execution{}, fmt.Errorf("document %s is %s, not an execution", doc.ID, doc.Class)
	}
	e := Execution{ID: doc.ID, Space: doc.Space}
	process, ok := doc.Get(AttrProcess).(ir.String)
	if !ok || process == "" {
		return Execution{}, fmt.Errorf("execution %s: missing %s", doc.ID, AttrProcess)
	}
	e.Process = string(process)
	card, _ := doc.Get(AttrCard).(ir.String)
	e.Card = ir.Ref(card)
	state, _ := doc.Get(AttrCurrentState).(ir.String)
	e.CurrentState = string(state)
	status, _ := doc.Get(AttrStatus).(ir.String)
	e.Status = ExecutionStatus(status)
	if e.Status == "" {
		e.Status = StatusActive
	}
	switch ctx := doc.Get(AttrContext).(type) {
	case ir.Object:
		e.Context = ctx.Clone()
	case nil, ir.Null:
		e.Context = ir.Object{}
	default:
		return Execution{}, fmt.Errorf("execution %s: %s is %T, want object", doc.ID, AttrContext, ctx)
	}
	return e, nil
}

// ToDo is a checkpoint waiting for user input. ApproveRequest is a ToDo
// whose Approved decision is also set on completion.
type ToDo struct {
	ID        ir.Ref
	Class     ir.ClassRef
	Space     string
	Execution ir.Ref
	Title     string
	Results   []ResultBinding
	DoneOn    *int64
	Approved  *bool
	Doc       ir.Doc
}

// Done reports whether the checkpoint is completed.
func (t ToDo) Done() bool {
	return t.DoneOn != nil
}

// ToDoFromDoc reads a checkpoint document of class ToDo or any subclass.
func ToDoFromDoc(doc ir.Doc) (ToDo, error) {
	exec, ok := doc.Get(AttrExecution).(ir.String)
	if !ok || exec == "" {
		return ToDo{}, fmt.Errorf("todo %s: missing %s", doc.ID, AttrExecution)
	}
	t := ToDo{
		ID:        doc.ID,
		Class:     doc.Class,
		Space:     doc.Space,
		Execution: ir.Ref(exec),
		Results:   ResultBindingsFromValue(doc.Get(AttrResults)),
		Doc:       doc,
	}
	if title, ok := doc.Get(AttrTitle).(ir.String); ok {
		t.Title = string(title)
	}
	if on, ok := doc.Get(AttrDoneOn).(ir.Int); ok {
		v := int64(on)
		t.DoneOn = &v
	}
	if approved, ok := doc.Get(AttrApproved).(ir.Bool); ok {
		v := bool(approved)
		t.Approved = &v
	}
	return t, nil
}
