package rollback

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/SacredTexts/huly/internal/ir"
)

// ErrNoInverse is returned for operators that cannot be undone.
var ErrNoInverse = errors.New("operator has no inverse")

// Invert returns the update that undoes u. Each operator inverts
// independently and the results merge into one update:
//
//	assignment       -> $unset (lossy)
//	$inc  d          -> $inc -d
//	$push v          -> $pull v
//	$push {$each vs} -> $pull {$in vs}
//	$pull v          -> $push {$each [v]} (lossy)
//	$pull {$in vs}   -> $push {$each vs} (lossy)
//	$rename a->b     -> $rename b->a
//	$unset           -> ErrNoInverse
func Invert(u ir.Update) (ir.Update, error) {
	if len(u.Unset) > 0 {
		return ir.Update{}, fmt.Errorf("%s %s: %w", ir.OpUnset, strings.Join(u.Unset, ","), ErrNoInverse)
	}

	var inv ir.Update
	if len(u.Set) > 0 {
		inv.Unset = u.Set.SortedKeys()
	}
	if len(u.Inc) > 0 {
		inv.Inc = make(map[string]int64, len(u.Inc))
		for k, d := range u.Inc {
			if d == math.MinInt64 {
				return ir.Update{}, fmt.Errorf("%s %s by %d: %w", ir.OpInc, k, d, ErrNoInverse)
			}
			inv.Inc[k] = -d
		}
	}
	if len(u.Push) > 0 {
		inv.Pull = make(map[string]ir.Pull, len(u.Push))
		for k, p := range u.Push {
			inv.Pull[k] = ir.Pull{Values: cloneArray(p.Values), AnyOf: p.Batch}
		}
	}
	if len(u.Pull) > 0 {
		inv.Push = make(map[string]ir.Push, len(u.Pull))
		for k, p := range u.Pull {
			inv.Push[k] = ir.Push{Values: cloneArray(p.Values), Batch: true}
		}
	}
	if len(u.Rename) > 0 {
		inv.Rename = make(map[string]string, len(u.Rename))
		for from, to := range u.Rename {
			if _, dup := inv.Rename[to]; dup {
				return ir.Update{}, fmt.Errorf("%s: two fields renamed to %s: %w", ir.OpRename, to, ErrNoInverse)
			}
			inv.Rename[to] = from
		}
	}
	return inv, nil
}

// InvertUpdate inverts an update in its wire form.
func InvertUpdate(ops ir.Object) (ir.Update, error) {
	u, err := ir.ParseUpdate(ops)
	if err != nil {
		return ir.Update{}, err
	}
	return Invert(u)
}

// InvertOperator inverts a single operator, given by name and argument
// object, e.g. InvertOperator("$inc", {"count": 3}) is $inc {"count": -3}.
func InvertOperator(name string, args ir.Object) (ir.Update, error) {
	if !strings.HasPrefix(name, "$") {
		return ir.Update{}, fmt.Errorf("%q is not an operator", name)
	}
	u, err := ir.ParseUpdate(ir.Object{name: args})
	if err != nil {
		return ir.Update{}, err
	}
	return Invert(u)
}

func cloneArray(a ir.Array) ir.Array {
	if a == nil {
		return nil
	}
	return ir.Clone(a).(ir.Array)
}
