package coerce

import (
	"fmt"
	"reflect"

	"github.com/ggoodman/optshape/opt"
	"github.com/ggoodman/optshape/shape"
)

// Unresolved marks a place in a Closed result whose shape the engine could
// not pin down: an empty container, a scalar of a kind outside the fixed rule
// set, or a Polymorphic slot. The caller's own context decides what it is.
type Unresolved struct {
	// Slot names the binding: the Polymorphic slot id, or the rendered path
	// for anonymous bindings.
	Slot string
	Path Path
	// Expected is the descriptor node at Path.
	Expected shape.Shape
	// Bound is the shape the input actually had.
	Bound shape.Shape
	// Value is a fresh copy of the input at Path.
	Value any
}

// DescribeShape implements shape.Describer.
func (u *Unresolved) DescribeShape() shape.Shape { return shape.Poly(u.Slot) }

func (u *Unresolved) String() string {
	return fmt.Sprintf("Unresolved(%s: %s)", u.Slot, describeShape(u.Expected))
}

// Annotated is an input value whose shape the caller has stated explicitly.
// The engine checks the annotation against the descriptor and then trusts it
// for things it cannot infer, such as the element shape of an empty
// container.
type Annotated struct {
	Shape shape.Shape
	Value any
}

// Annotate wraps v with an explicit shape.
func Annotate(v any, s shape.Shape) Annotated { return Annotated{Shape: s, Value: v} }

// DescribeShape implements shape.Describer.
func (a Annotated) DescribeShape() shape.Shape { return a.Shape }

// clone copies the JSON-like parts of v so that deferred values never alias
// the caller's input. Reflective sequences and string-keyed maps are
// normalised to []any and map[string]any.
func clone(v any, depth int) any {
	if depth > shape.MaxDepth {
		return v
	}
	switch x := v.(type) {
	case nil, string, bool, shape.Describer:
		return v
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = clone(val, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = clone(val, depth+1)
		}
		return out
	case opt.Opt[any]:
		if inner, ok := x.Get(); ok {
			return opt.Present(clone(inner, depth+1))
		}
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = clone(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = clone(iter.Value().Interface(), depth+1)
		}
		return out
	}
	return v
}
