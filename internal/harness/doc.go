// Package harness runs scenario files against a real process engine.
//
// A scenario compiles a set of process definitions, drives a sequence of
// document transactions through the process gate on a fresh in-memory
// store, and checks assertions against the resulting documents.
//
// # Scenario Format
//
//	name: review_flow
//	description: "A review checkpoint closes the process"
//	definitions: ../definitions     # CUE package dir, relative to the file
//	steps:
//	  - op: create
//	    id: card-1
//	    class: card:class:Task
//	    attrs: { status: draft }
//	  - op: update
//	    id: card-1
//	    ops: { status: review, $inc: { points: 1 } }
//	  - op: complete
//	    card: card-1
//	    process: proc-review
//	    results: { verdict: ok }
//	  - op: rollback
//	    step: 3
//	assertions:
//	  - type: execution
//	    card: card-1
//	    process: proc-review
//	    state: closed
//	    status: done
//
// Inline CUE can be given with source instead of definitions.
//
// # Steps
//
//   - create: create document id of class with attrs
//   - update: apply ops (assignments and $-operators) to id
//   - mixin: attach mixin to id with attrs; no attrs is pure tagging
//   - remove: delete id
//   - complete: finish the first open checkpoint of the card's execution
//     of process, with results and, for approvals, approved
//   - rollback: undo the transaction submitted by an earlier step
//
// # Assertion Types
//
//   - execution: the card's execution of process has state, status and a
//     context containing the given entries
//   - executions: the card has exactly count executions
//   - checkpoints: the card's execution of process has count checkpoints,
//     open of them not completed
//   - document: document id exists (or not, with exists: false) and has
//     the given attributes
//   - trace_count: count mutations of kind on class were committed
//
// # Deterministic Testing
//
// Transactions use a deterministic clock and sequential ids ("tx-N" for
// scenario steps, "engine-N" for engine companions). Content-derived ids of
// executions and checkpoints appear in traces as "execution#N" and
// "checkpoint#N", numbered by first appearance, so traces are stable and
// can be compared against golden files.
package harness
