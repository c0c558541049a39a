package coerce

import (
	"github.com/ggoodman/optshape/opt"
)

// UnresolvedKey tags deferred bindings in Plain output.
const UnresolvedKey = "$unresolved"

// Plain converts a coerced tree into data that encoding/json renders
// naturally: Absent record slots are omitted, Present slots are unwrapped and
// Unresolved bindings become
//
//	{"$unresolved": "<slot>", "expected": "<shape>", "value": <input>}
func Plain(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if c, ok := val.(opt.Carrier); ok {
				inner, present := c.Any()
				if !present {
					continue
				}
				val = inner
			}
			out[k] = Plain(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Plain(val)
		}
		return out
	case opt.Carrier:
		if inner, ok := x.Any(); ok {
			return Plain(inner)
		}
		return nil
	case *Unresolved:
		return map[string]any{
			UnresolvedKey: x.Slot,
			"expected":    describeShape(x.Expected),
			"value":       Plain(x.Value),
		}
	}
	return v
}
