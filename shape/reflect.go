package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ggoodman/optshape/opt"
)

// Kinded lets a Go type declare itself a custom scalar kind when a
// descriptor is derived by reflection.
type Kinded interface {
	ShapeKind() Kind
}

var (
	kindedType   = reflect.TypeFor[Kinded]()
	optTypedType = reflect.TypeFor[opt.Typed]()
	jsonNumType  = reflect.TypeFor[json.Number]()

	reflectCache sync.Map // reflect.Type -> reflectEntry
)

type reflectEntry struct {
	shape Shape
	err   error
}

// Reflect derives a descriptor from the dynamic type of v. See ReflectType.
func Reflect(v any) (Shape, error) {
	if v == nil {
		return nil, errors.New("shape: cannot reflect nil")
	}
	return ReflectType(reflect.TypeOf(v))
}

// ReflectType derives a descriptor from a Go type. Rules:
//   - struct => Record; exported fields only, `json:"-"` skipped, name from
//     the json tag or the field name
//   - pointer or opt.Opt[T] fields => optional with the shape of T
//   - other fields => required
//   - slice or array => Container
//   - string, bool, integer and float kinds => the built-in scalars
//   - interface types => Polymorphic with the field path as slot
//   - types implementing Kinded => Scalar(ShapeKind())
//
// Maps, channels, funcs and recursive types are rejected. Results are cached
// per type.
func ReflectType(t reflect.Type) (Shape, error) {
	if t == nil {
		return nil, errors.New("shape: cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v, ok := reflectCache.Load(t); ok {
		e := v.(reflectEntry)
		return e.shape, e.err
	}
	s, err := reflectType(t, "$", map[reflect.Type]bool{})
	actual, _ := reflectCache.LoadOrStore(t, reflectEntry{shape: s, err: err})
	e := actual.(reflectEntry)
	return e.shape, e.err
}

// MustReflect is like Reflect but panics on error. Intended for package-level
// descriptor variables.
func MustReflect(v any) Shape {
	s, err := Reflect(v)
	if err != nil {
		panic(err)
	}
	return s
}

func reflectType(t reflect.Type, path string, visiting map[reflect.Type]bool) (Shape, error) {
	if t.Kind() == reflect.Pointer {
		return reflectType(t.Elem(), path, visiting)
	}
	if t.Kind() != reflect.Interface && t.Implements(kindedType) {
		return Of(reflect.Zero(t).Interface().(Kinded).ShapeKind()), nil
	}
	if t == jsonNumType {
		return Num(), nil
	}
	if t.Kind() != reflect.Interface && t.Implements(optTypedType) {
		return nil, fmt.Errorf("shape: %s: optional type outside a struct field", path)
	}
	switch t.Kind() {
	case reflect.String:
		return Str(), nil
	case reflect.Bool:
		return Boolean(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer(), nil
	case reflect.Float32, reflect.Float64:
		return Num(), nil
	case reflect.Interface:
		return Poly(path), nil
	case reflect.Slice, reflect.Array:
		elem, err := reflectType(t.Elem(), path+"[]", visiting)
		if err != nil {
			return nil, err
		}
		return Container{Elem: elem}, nil
	case reflect.Struct:
		if visiting[t] {
			return nil, fmt.Errorf("shape: %s: recursive type %s", path, t)
		}
		visiting[t] = true
		defer delete(visiting, t)
		return reflectStruct(t, path, visiting)
	}
	return nil, fmt.Errorf("shape: %s: unsupported kind %s", path, t.Kind())
}

func reflectStruct(t reflect.Type, path string, visiting map[reflect.Type]bool) (Shape, error) {
	rec := Record{}
	seen := map[string]struct{}{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		name, ok := FieldName(f)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("shape: %s: duplicate field name %s", path, name)
		}
		seen[name] = struct{}{}

		ft := f.Type
		optional := false
		switch {
		case ft.Kind() != reflect.Interface && ft.Implements(optTypedType):
			optional = true
			ft = reflect.Zero(ft).Interface().(opt.Typed).PayloadType()
		case ft.Kind() == reflect.Pointer:
			optional = true
			ft = ft.Elem()
		}
		inner, err := reflectType(ft, path+"."+name, visiting)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, Field{Name: name, Shape: inner, Optional: optional})
	}
	return rec, nil
}

// FieldName returns the record field name for a struct field: the json tag
// name when set, otherwise the Go field name. ok is false for `json:"-"`.
func FieldName(f reflect.StructField) (name string, ok bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name, _, _ = strings.Cut(tag, ",")
	if name == "" { // tag like `json:",omitempty"`
		name = f.Name
	}
	return name, true
}
