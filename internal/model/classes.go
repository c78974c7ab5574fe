package model

import "github.com/SacredTexts/huly/internal/ir"

// Built-in classes. Every stored document descends from ClassDoc; process
// records live in their own branch so that they never trigger processes.
const (
	ClassDoc            ir.ClassRef = "core:class:Doc"
	ClassCard           ir.ClassRef = "card:class:Card"
	ClassExecution      ir.ClassRef = "process:class:Execution"
	ClassToDo           ir.ClassRef = "process:class:ToDo"
	ClassApproveRequest ir.ClassRef = "process:class:ApproveRequest"
)

// Attribute names of process records.
const (
	AttrProcess      = "process"
	AttrCard         = "card"
	AttrCurrentState = "current_state"
	AttrContext      = "context"
	AttrStatus       = "status"
	AttrExecution    = "execution"
	AttrTitle        = "title"
	AttrResults      = "results"
	AttrDoneOn       = "done_on"
	AttrApproved     = "approved"
)
