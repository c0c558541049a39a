package shape

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/ggoodman/optshape/opt"
)

// Describer is implemented by wrapper values that already know their shape
// (annotations, unresolved bindings). Infer defers to it.
type Describer interface {
	DescribeShape() Shape
}

// Infer returns the shape an input value actually has. It is used to render
// the actual side of a mismatch and to bind polymorphic slots.
//
// Containers take the shape of their first element; an empty container
// infers Container<?>. Mappings infer a Record whose fields are all
// required, sorted by name. Values of unknown Go types infer a scalar named
// after the Go type.
func Infer(v any) Shape {
	return infer(v, 0)
}

func infer(v any, depth int) Shape {
	if depth > MaxDepth {
		return Polymorphic{}
	}
	switch x := v.(type) {
	case nil:
		return Of(KindNull)
	case Describer:
		return x.DescribeShape()
	case opt.Carrier:
		if inner, ok := x.Any(); ok {
			return infer(inner, depth+1)
		}
		return Polymorphic{}
	case string:
		return Str()
	case bool:
		return Boolean()
	case json.Number:
		if IsIntegral(x) {
			return Integer()
		}
		return Num()
	case map[string]any:
		names := make([]string, 0, len(x))
		for k := range x {
			names = append(names, k)
		}
		sort.Strings(names)
		rec := Record{Fields: make([]Field, 0, len(names))}
		for _, k := range names {
			rec.Fields = append(rec.Fields, Req(k, infer(x[k], depth+1)))
		}
		return rec
	case []any:
		if len(x) == 0 {
			return Container{Elem: Polymorphic{}}
		}
		return Container{Elem: infer(x[0], depth+1)}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Type().PkgPath() == "" {
			return Integer()
		}
	case reflect.Float32, reflect.Float64:
		if rv.Type().PkgPath() == "" {
			return Num()
		}
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return Container{Elem: Polymorphic{}}
		}
		return Container{Elem: infer(rv.Index(0).Interface(), depth+1)}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			keys := rv.MapKeys()
			sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
			rec := Record{Fields: make([]Field, 0, len(keys))}
			for _, k := range keys {
				rec.Fields = append(rec.Fields, Req(k.String(), infer(rv.MapIndex(k).Interface(), depth+1)))
			}
			return rec
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return Of(KindNull)
		}
		return infer(rv.Elem().Interface(), depth+1)
	}
	return Of(Kind(fmt.Sprintf("%T", v)))
}

// IsIntegral reports whether a JSON number literal denotes an integer.
func IsIntegral(n json.Number) bool {
	_, err := n.Int64()
	return err == nil
}
