package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Operator names of the update grammar, in their serialized form.
const (
	OpInc    = "$inc"
	OpPush   = "$push"
	OpPull   = "$pull"
	OpRename = "$rename"
	OpUnset  = "$unset"

	opEach = "$each"
	opIn   = "$in"
)

// Push appends to an array attribute. A batch push appends every value;
// a plain push appends Values[0] as one element.
type Push struct {
	Values Array
	Batch  bool
}

// Pull removes matching elements from an array attribute. AnyOf removes
// every element equal to any of Values; otherwise elements equal to
// Values[0] are removed.
type Pull struct {
	Values Array
	AnyOf  bool
}

// Update is a document update: plain assignments plus operators.
// Empty maps are kept nil so that updates compare cleanly.
type Update struct {
	Set    Object
	Unset  []string
	Inc    map[string]int64
	Push   map[string]Push
	Pull   map[string]Pull
	Rename map[string]string
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0 && len(u.Inc) == 0 &&
		len(u.Push) == 0 && len(u.Pull) == 0 && len(u.Rename) == 0
}

// Touches reports whether the update modifies the given attribute.
func (u Update) Touches(field string) bool {
	return slices.Contains(u.Fields(), field)
}

// Fields lists every attribute the update modifies, sorted.
// A rename touches both its source and its target.
func (u Update) Fields() []string {
	seen := map[string]bool{}
	for k := range u.Set {
		seen[k] = true
	}
	for _, k := range u.Unset {
		seen[k] = true
	}
	for k := range u.Inc {
		seen[k] = true
	}
	for k := range u.Push {
		seen[k] = true
	}
	for k := range u.Pull {
		seen[k] = true
	}
	for from, to := range u.Rename {
		seen[from] = true
		seen[to] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Merge folds other into u, operator by operator. Keys present in both
// take other's value.
func (u Update) Merge(other Update) Update {
	out := u
	if len(other.Set) > 0 {
		out.Set = Object{}.Overlay(u.Set).Overlay(other.Set)
	}
	if len(other.Unset) > 0 {
		out.Unset = append(slices.Clone(u.Unset), other.Unset...)
		slices.Sort(out.Unset)
		out.Unset = slices.Compact(out.Unset)
	}
	out.Inc = mergeMap(u.Inc, other.Inc)
	out.Push = mergeMap(u.Push, other.Push)
	out.Pull = mergeMap(u.Pull, other.Pull)
	out.Rename = mergeMap(u.Rename, other.Rename)
	return out
}

func mergeMap[V any](a, b map[string]V) map[string]V {
	if len(b) == 0 {
		return a
	}
	out := make(map[string]V, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ToObject renders the update in its wire form: plain keys are
// assignments, "$"-prefixed keys are operators.
//
//	{"title": "x", "$inc": {"count": 3}, "$push": {"tags": {"$each": ["a"]}}}
func (u Update) ToObject() Object {
	obj := Object{}
	for k, v := range u.Set {
		obj[k] = Clone(v)
	}
	if len(u.Unset) > 0 {
		unset := Object{}
		for _, k := range u.Unset {
			unset[k] = Bool(true)
		}
		obj[OpUnset] = unset
	}
	if len(u.Inc) > 0 {
		inc := Object{}
		for k, n := range u.Inc {
			inc[k] = Int(n)
		}
		obj[OpInc] = inc
	}
	if len(u.Push) > 0 {
		push := Object{}
		for k, p := range u.Push {
			if p.Batch {
				push[k] = Object{opEach: Clone(p.Values)}
			} else if len(p.Values) > 0 {
				push[k] = Clone(p.Values[0])
			}
		}
		obj[OpPush] = push
	}
	if len(u.Pull) > 0 {
		pull := Object{}
		for k, p := range u.Pull {
			if p.AnyOf {
				pull[k] = Object{opIn: Clone(p.Values)}
			} else if len(p.Values) > 0 {
				pull[k] = Clone(p.Values[0])
			}
		}
		obj[OpPull] = pull
	}
	if len(u.Rename) > 0 {
		rename := Object{}
		for from, to := range u.Rename {
			rename[from] = String(to)
		}
		obj[OpRename] = rename
	}
	return obj
}

// ParseUpdate reads the wire form produced by ToObject.
func ParseUpdate(obj Object) (Update, error) {
	var u Update
	for _, key := range obj.SortedKeys() {
		val := obj[key]
		if !strings.HasPrefix(key, "$") {
			if u.Set == nil {
				u.Set = Object{}
			}
			u.Set[key] = Clone(val)
			continue
		}
		args, ok := val.(Object)
		if !ok {
			return Update{}, fmt.Errorf("operator %s: argument is %T, want object", key, val)
		}
		switch key {
		case OpUnset:
			u.Unset = args.SortedKeys()
		case OpInc:
			u.Inc = make(map[string]int64, len(args))
			for f, d := range args {
				n, ok := d.(Int)
				if !ok {
					return Update{}, fmt.Errorf("%s.%s: delta is %T, want int", key, f, d)
				}
				u.Inc[f] = int64(n)
			}
		case OpPush:
			u.Push = make(map[string]Push, len(args))
			for f, v := range args {
				if each, ok := operand(v, opEach); ok {
					u.Push[f] = Push{Values: each, Batch: true}
				} else {
					u.Push[f] = Push{Values: Array{Clone(v)}}
				}
			}
		case OpPull:
			u.Pull = make(map[string]Pull, len(args))
			for f, v := range args {
				if in, ok := operand(v, opIn); ok {
					u.Pull[f] = Pull{Values: in, AnyOf: true}
				} else {
					u.Pull[f] = Pull{Values: Array{Clone(v)}}
				}
			}
		case OpRename:
			u.Rename = make(map[string]string, len(args))
			for from, to := range args {
				s, ok := to.(String)
				if !ok {
					return Update{}, fmt.Errorf("%s.%s: target is %T, want string", key, from, to)
				}
				u.Rename[from] = string(s)
			}
		default:
			return Update{}, fmt.Errorf("unknown update operator %q", key)
		}
	}
	return u, nil
}

// operand extracts {"$each": [...]} / {"$in": [...]} wrappers.
func operand(v Value, name string) (Array, bool) {
	obj, ok := v.(Object)
	if !ok || len(obj) != 1 {
		return nil, false
	}
	arr, ok := obj[name].(Array)
	if !ok {
		return nil, false
	}
	return arr.cloneArray(), true
}

func (a Array) cloneArray() Array {
	return Clone(a).(Array)
}

// Apply mutates target in place. Assignments run first, then unset,
// increment, push, pull and rename.
func (u Update) Apply(target Object) error {
	for k, v := range u.Set {
		target[k] = Clone(v)
	}
	for _, k := range u.Unset {
		delete(target, k)
	}
	for _, k := range sortedKeys(u.Inc) {
		cur := int64(0)
		switch v := target[k].(type) {
		case nil, Null:
		case Int:
			cur = int64(v)
		default:
			return fmt.Errorf("%s %s: attribute is %T, want int", OpInc, k, v)
		}
		target[k] = Int(cur + u.Inc[k])
	}
	for _, k := range sortedKeys(u.Push) {
		arr, err := arrayAttr(target, k, OpPush)
		if err != nil {
			return err
		}
		p := u.Push[k]
		if p.Batch {
			arr = append(arr, p.Values.cloneArray()...)
		} else if len(p.Values) > 0 {
			arr = append(arr, Clone(p.Values[0]))
		}
		target[k] = arr
	}
	for _, k := range sortedKeys(u.Pull) {
		if _, present := target[k]; !present {
			continue
		}
		arr, err := arrayAttr(target, k, OpPull)
		if err != nil {
			return err
		}
		p := u.Pull[k]
		kept := make(Array, 0, len(arr))
		for _, elem := range arr {
			if !p.matches(elem) {
				kept = append(kept, elem)
			}
		}
		target[k] = kept
	}
	for _, from := range sortedKeys(u.Rename) {
		v, ok := target[from]
		if !ok {
			continue
		}
		delete(target, from)
		target[u.Rename[from]] = v
	}
	return nil
}

func (p Pull) matches(elem Value) bool {
	if !p.AnyOf {
		return len(p.Values) > 0 && Equal(p.Values[0], elem)
	}
	for _, v := range p.Values {
		if Equal(v, elem) {
			return true
		}
	}
	return false
}

func arrayAttr(target Object, k, op string) (Array, error) {
	switch v := target[k].(type) {
	case nil, Null:
		return Array{}, nil
	case Array:
		return slices.Clone(v), nil
	default:
		return nil, fmt.Errorf("%s %s: attribute is %T, want array", op, k, v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
