// Package opt provides Opt, a two-state carrier for values that may be
// omitted: Present with a payload, or Absent.
//
// Opt values are immutable. They are produced by the coercion engine for
// every optional record field and may also be built directly by callers that
// assemble inputs by hand. Chain is the intended way to drill into nested
// optional structures: it stops at the first Absent without invoking the
// continuation.
//
//	type Address struct{ City opt.Opt[string] }
//	type User struct{ Address opt.Opt[Address] }
//
//	city := opt.Chain(u.Address, func(a Address) opt.Opt[string] { return a.City })
//	fmt.Println(city.OrDefault("unknown"))
package opt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Opt is either Present with a payload of type T or Absent. The zero value
// is Absent.
type Opt[T any] struct {
	v  T
	ok bool
}

// Present returns an Opt carrying v.
func Present[T any](v T) Opt[T] { return Opt[T]{v: v, ok: true} }

// Absent returns an empty Opt.
func Absent[T any]() Opt[T] { return Opt[T]{} }

// FromPtr returns Present(*p) for a non-nil p and Absent otherwise.
func FromPtr[T any](p *T) Opt[T] {
	if p == nil {
		return Absent[T]()
	}
	return Present(*p)
}

// IsPresent reports whether o carries a payload.
func (o Opt[T]) IsPresent() bool { return o.ok }

// IsAbsent reports whether o is empty.
func (o Opt[T]) IsAbsent() bool { return !o.ok }

// Get returns the payload and whether it was present, in the comma-ok form
// Go code uses for optional results.
func (o Opt[T]) Get() (T, bool) { return o.v, o.ok }

// Ptr returns a pointer to a copy of the payload, or nil when Absent.
func (o Opt[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.v
	return &v
}

// OrDefault returns the payload if present and def otherwise.
func (o Opt[T]) OrDefault(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

// OrDefault returns the payload of o if present and def otherwise.
func OrDefault[T any](o Opt[T], def T) T { return o.OrDefault(def) }

// Chain returns f(v) when o is Present(v). When o is Absent it returns
// Absent and f is never called.
func Chain[T, U any](o Opt[T], f func(T) Opt[U]) Opt[U] {
	if !o.ok {
		return Absent[U]()
	}
	return f(o.v)
}

// Map applies f to the payload of a present Opt.
func Map[T, U any](o Opt[T], f func(T) U) Opt[U] {
	if !o.ok {
		return Absent[U]()
	}
	return Present(f(o.v))
}

func (o Opt[T]) String() string {
	if !o.ok {
		return "Absent"
	}
	return fmt.Sprintf("Present(%v)", o.v)
}

// Carrier is implemented by every Opt instantiation. It lets code that only
// sees `any` recognise an already-wrapped value regardless of its payload
// type.
type Carrier interface {
	IsPresent() bool
	Any() (any, bool)
}

// Any returns the payload as an interface value.
func (o Opt[T]) Any() (any, bool) {
	if !o.ok {
		return nil, false
	}
	return o.v, true
}

// Typed is implemented by every Opt instantiation. Reflective decoders use it
// to discover the payload type and to build a new Opt of the same type.
type Typed interface {
	PayloadType() reflect.Type
	Rewrap(v any, present bool) (any, error)
}

// PayloadType returns the reflect.Type of T.
func (Opt[T]) PayloadType() reflect.Type { return reflect.TypeFor[T]() }

// Rewrap returns a new Opt[T] (as any). When present is false v is ignored
// and Absent is returned. v must be assignable to T.
func (Opt[T]) Rewrap(v any, present bool) (any, error) {
	if !present {
		return Absent[T](), nil
	}
	if v == nil {
		var zero T
		if reflect.TypeFor[T]().Kind() == reflect.Interface {
			return Present(zero), nil
		}
		return nil, fmt.Errorf("opt: cannot wrap nil as %s", reflect.TypeFor[T]())
	}
	tv, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("opt: cannot wrap %T as %s", v, reflect.TypeFor[T]())
	}
	return Present(tv), nil
}

var nullLiteral = []byte("null")

// MarshalJSON encodes Present as its payload and Absent as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return nullLiteral, nil
	}
	return json.Marshal(o.v)
}

// UnmarshalJSON decodes null as Absent and anything else as Present.
func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), nullLiteral) {
		*o = Absent[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Present(v)
	return nil
}

var (
	_ Carrier = Opt[int]{}
	_ Typed   = Opt[int]{}
)
