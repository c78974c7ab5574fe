// Package engine implements the process gate: the transactional
// interception layer that advances process executions in the same commit
// as the document mutations that drive them.
//
// ARCHITECTURE:
//
// Gate.Tx is the only call surface. For one incoming transaction:
//  1. The transaction tree is walked depth-first; every mutation is offered
//     to four detectors in fixed order (create, tag, field change,
//     checkpoint resolution).
//  2. Detectors consult the Selector for the first matching transition of
//     each affected execution and run it through the Executor; checkpoint
//     completions first merge results through CollectResults.
//  3. Execution updates are queued before the original, new executions and
//     staged checkpoints after it.
//  4. A non-empty bundle is wrapped with the original into one ApplyIf
//     group and forwarded to the DocStore.
//
// Field-change detection never commits the previewed document: the
// mutation is applied to a private clone which the selector reads as
// "card" in the input context, next to the raw "operations" payload.
//
// ERROR HANDLING:
//
//   - no matching transition: not an error, the execution stays put
//   - action fault (error or panic): the step is abandoned as a *StepError,
//     logged and counted; the original mutation still commits
//   - detector or store fault: Tx returns the error and nothing commits
//
// Calls to Gate.Tx are serialized, so detectors of two transactions never
// interleave.
package engine
