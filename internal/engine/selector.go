package engine

import (
	"log/slog"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// Selector picks the first transition, in rank order, whose trigger
// parameters hold on an input context.
//
// Predicate semantics belong to the Evaluator registered for each trigger
// kind; the Selector owns ordering and first-match only. A transition whose
// kind has no evaluator, or whose evaluator errors, does not match.
type Selector struct {
	evaluators map[model.TriggerKind]Evaluator
}

// NewSelector creates a selector over the given evaluators.
func NewSelector(evaluators map[model.TriggerKind]Evaluator) *Selector {
	return &Selector{evaluators: evaluators}
}

// Select returns the first matching transition. candidates must already be
// ordered by ascending rank, as Definitions.Transitions returns them.
func (s *Selector) Select(candidates []model.Transition, input ir.Object) (model.Transition, bool) {
	for _, t := range candidates {
		eval, ok := s.evaluators[t.Trigger]
		if !ok {
			slog.Warn("no evaluator for trigger", "transition", t.ID, "trigger", t.Trigger)
			continue
		}
		matched, err := eval.Match(t.TriggerParams, input)
		if err != nil {
			slog.Warn("trigger parameters rejected", "transition", t.ID, "trigger", t.Trigger, "error", err)
			continue
		}
		if matched {
			return t, true
		}
	}
	return model.Transition{}, false
}
