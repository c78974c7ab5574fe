package engine

import (
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// CollectResults merges a completed checkpoint's declared results into the
// stored context. Each binding copies checkpoint attribute Slot into context
// key Key. Missing or null slots are skipped and no key is ever removed.
//
// Returns the stored context itself and false when nothing changes.
func CollectResults(stored ir.Object, bindings []model.ResultBinding, checkpoint ir.Doc) (ir.Object, bool) {
	var out ir.Object
	for _, b := range bindings {
		v := checkpoint.Get(b.Slot)
		if ir.IsNull(v) {
			continue
		}
		current := stored[b.Key]
		if out != nil {
			current = out[b.Key]
		}
		if ir.Equal(current, v) {
			continue
		}
		if out == nil {
			out = stored.Clone()
		}
		out[b.Key] = ir.Clone(v)
	}
	if out == nil {
		return stored, false
	}
	return out, true
}
