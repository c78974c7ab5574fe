// Package model defines the process-definition and runtime types of the
// engine and the reference in-memory lookups the engine consumes:
//
//   - Process, State, Transition, Action: the workflow definition graph
//   - Execution, ToDo, ApproveRequest: runtime records stored as documents
//   - Hierarchy: class/mixin hierarchy (ancestors, descendants, IsDerived)
//   - Registry: ranked transition lookup and autostart process lookup
//
// INVARIANTS (enforced by Registry.Register):
//   - a transition's from and to states belong to its own process
//   - rank is unique among transitions sharing (process, from, trigger)
//   - trigger kinds come from the closed set in TriggerKinds
package model
