package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/ggoodman/optshape/opt"
	"github.com/ggoodman/optshape/shape"
)

var optTypedType = reflect.TypeFor[opt.Typed]()

// Decode derives a descriptor from the type dst points to (see
// shape.ReflectType), coerces in against it with e and populates dst. Fields
// declared as opt.Opt[T] or pointers are optional.
//
// dst is only written on success. Unresolved bindings from a Closed engine
// are resolved by the destination's Go type: their captured input is
// assigned like any other value.
func Decode(e *Engine, in any, dst any) error {
	if dst == nil {
		return errors.New("coerce: decode target nil")
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("coerce: decode target must be a non-nil pointer")
	}
	t := rv.Elem().Type()
	s, err := shape.ReflectType(t)
	if err != nil {
		return err
	}
	res, err := e.Coerce(s, in)
	if err != nil {
		return err
	}
	// Work in a fresh value to avoid partial mutation on failure.
	fresh := reflect.New(t).Elem()
	if err := assign(fresh, res.Value, "$"); err != nil {
		return err
	}
	rv.Elem().Set(fresh)
	return nil
}

// As is the generic form of Decode.
func As[T any](e *Engine, in any) (T, error) {
	var out T
	err := Decode(e, in, &out)
	return out, err
}

func assign(dst reflect.Value, v any, path string) error {
	if u, ok := v.(*Unresolved); ok {
		v = u.Value
	}

	t := dst.Type()
	if t.Kind() == reflect.Struct && t.Implements(optTypedType) {
		return assignOpt(dst, v, path)
	}
	if t.Kind() == reflect.Pointer {
		if c, ok := v.(opt.Carrier); ok {
			inner, present := c.Any()
			if !present {
				return nil
			}
			v = inner
		}
		if v == nil {
			return nil
		}
		p := reflect.New(t.Elem())
		if err := assign(p.Elem(), v, path); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if c, ok := v.(opt.Carrier); ok {
		inner, present := c.Any()
		if !present {
			return nil
		}
		v = inner
	}
	if v == nil {
		return nil
	}
	if t.Kind() == reflect.Interface {
		v = Plain(v)
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		// Elements may still hold carriers or bindings; assign one by one.
	default:
		if reflect.TypeOf(v).AssignableTo(t) {
			dst.Set(reflect.ValueOf(v))
			return nil
		}
	}

	switch t.Kind() {
	case reflect.Struct:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("coerce: decode %s: expected record got %T", path, v)
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			name, ok := shape.FieldName(f)
			if !ok {
				continue
			}
			val, present := m[name]
			if !present {
				continue
			}
			if err := assign(dst.Field(i), val, path+"."+name); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		seq, ok := v.([]any)
		if !ok {
			return fmt.Errorf("coerce: decode %s: expected sequence got %T", path, v)
		}
		if t.Kind() == reflect.Array {
			if len(seq) != t.Len() {
				return fmt.Errorf("coerce: decode %s: expected %d elements got %d", path, t.Len(), len(seq))
			}
		} else {
			dst.Set(reflect.MakeSlice(t, len(seq), len(seq)))
		}
		for i, el := range seq {
			if err := assign(dst.Index(i), el, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.String, reflect.Bool:
		rv := reflect.ValueOf(v)
		if rv.Kind() != t.Kind() {
			return fmt.Errorf("coerce: decode %s: cannot assign %T to %s", path, v, t)
		}
		dst.Set(rv.Convert(t))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return assignNumber(dst, v, path)
	}
	return fmt.Errorf("coerce: decode %s: cannot assign %T to %s", path, v, t)
}

func assignOpt(dst reflect.Value, v any, path string) error {
	typed := reflect.Zero(dst.Type()).Interface().(opt.Typed)
	if c, ok := v.(opt.Carrier); ok {
		inner, present := c.Any()
		if !present {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		v = inner
	}
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	payload := reflect.New(typed.PayloadType()).Elem()
	if err := assign(payload, v, path); err != nil {
		return err
	}
	wrapped, err := typed.Rewrap(payload.Interface(), true)
	if err != nil {
		return fmt.Errorf("coerce: decode %s: %w", path, err)
	}
	dst.Set(reflect.ValueOf(wrapped))
	return nil
}

func assignNumber(dst reflect.Value, v any, path string) error {
	overflow := func() error {
		return fmt.Errorf("coerce: decode %s: %v overflows %s", path, v, dst.Type())
	}
	if n, ok := v.(json.Number); ok {
		switch dst.Kind() {
		case reflect.Float32, reflect.Float64:
			f, err := n.Float64()
			if err != nil {
				return fmt.Errorf("coerce: decode %s: %w", path, err)
			}
			dst.SetFloat(f)
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u, err := strconv.ParseUint(n.String(), 10, 64)
			if err != nil {
				return fmt.Errorf("coerce: decode %s: %w", path, err)
			}
			if dst.OverflowUint(u) {
				return overflow()
			}
			dst.SetUint(u)
			return nil
		default:
			i, err := n.Int64()
			if err != nil {
				return fmt.Errorf("coerce: decode %s: %w", path, err)
			}
			if dst.OverflowInt(i) {
				return overflow()
			}
			dst.SetInt(i)
			return nil
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		switch dst.Kind() {
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(float64(i))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if i < 0 || dst.OverflowUint(uint64(i)) {
				return overflow()
			}
			dst.SetUint(uint64(i))
		default:
			if dst.OverflowInt(i) {
				return overflow()
			}
			dst.SetInt(i)
		}
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		switch dst.Kind() {
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(float64(u))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if dst.OverflowUint(u) {
				return overflow()
			}
			dst.SetUint(u)
		default:
			if u > 1<<63-1 || dst.OverflowInt(int64(u)) {
				return overflow()
			}
			dst.SetInt(int64(u))
		}
		return nil
	case reflect.Float32, reflect.Float64:
		if dst.Kind() != reflect.Float32 && dst.Kind() != reflect.Float64 {
			return fmt.Errorf("coerce: decode %s: cannot assign %T to %s", path, v, dst.Type())
		}
		dst.SetFloat(rv.Float())
		return nil
	}
	return fmt.Errorf("coerce: decode %s: cannot assign %T to %s", path, v, dst.Type())
}
