// Package shape describes the target shape of a coerced value.
//
// A descriptor is a small immutable tree built from four node types:
//
//	Scalar       a leaf identified by a Kind (String, Number, Int, Bool or a custom kind)
//	Record       named fields, each required or optional
//	Container    a homogeneous sequence of one element shape
//	Polymorphic  a placeholder bound to whatever the input turns out to be
//
// Descriptors describe the target, never the input. They are fixed before
// coercion begins and are safe to share between goroutines.
package shape

import (
	"sort"
	"strings"
)

// Kind identifies a scalar type. Custom kinds are any other non-empty string;
// the Open coercion strategy looks rules up by Kind.
type Kind string

const (
	KindString Kind = "String"
	KindNumber Kind = "Number"
	KindInt    Kind = "Int"
	KindBool   Kind = "Bool"
	// KindNull is only produced by Infer for a nil input.
	KindNull Kind = "Null"
)

// Shape is a node of a descriptor tree. The set of implementations is closed.
type Shape interface {
	String() string
	isShape()
}

// Scalar is a leaf that matches values of exactly one Kind.
type Scalar struct {
	Kind Kind
}

// Field is a named record member.
type Field struct {
	Name     string
	Shape    Shape
	Optional bool
}

// Record matches string-keyed mappings. Fields are visited in declaration
// order; equality ignores order.
type Record struct {
	Fields []Field
}

// Container matches ordered sequences whose every element matches Elem.
type Container struct {
	Elem Shape
}

// Polymorphic stands for whatever shape the input has. An empty Slot is the
// anonymous placeholder used when a shape could not be determined.
type Polymorphic struct {
	Slot string
}

func (Scalar) isShape()      {}
func (Record) isShape()      {}
func (Container) isShape()   {}
func (Polymorphic) isShape() {}

func (s Scalar) String() string { return string(s.Kind) }

func (c Container) String() string {
	elem := "?"
	if c.Elem != nil {
		elem = c.Elem.String()
	}
	return "Container<" + elem + ">"
}

func (p Polymorphic) String() string { return "?" + p.Slot }

func (r Record) String() string {
	if len(r.Fields) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{ ")
	for i, f := range r.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		inner := "?"
		if f.Shape != nil {
			inner = f.Shape.String()
		}
		if f.Optional {
			sb.WriteString("Opt<" + inner + ">")
		} else {
			sb.WriteString(inner)
		}
	}
	sb.WriteString(" }")
	return sb.String()
}

// Field returns the field with the given name.
func (r Record) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsPlaceholder reports whether s is the anonymous Polymorphic placeholder.
func IsPlaceholder(s Shape) bool {
	p, ok := s.(Polymorphic)
	return ok && p.Slot == ""
}

// Str returns Scalar(String).
func Str() Scalar { return Scalar{Kind: KindString} }

// Num returns Scalar(Number).
func Num() Scalar { return Scalar{Kind: KindNumber} }

// Integer returns Scalar(Int).
func Integer() Scalar { return Scalar{Kind: KindInt} }

// Boolean returns Scalar(Bool).
func Boolean() Scalar { return Scalar{Kind: KindBool} }

// Of returns a scalar of an arbitrary kind.
func Of(kind Kind) Scalar { return Scalar{Kind: kind} }

// ListOf returns Container(elem).
func ListOf(elem Shape) Container { return Container{Elem: elem} }

// Poly returns Polymorphic(slot).
func Poly(slot string) Polymorphic { return Polymorphic{Slot: slot} }

// Req declares a required field.
func Req(name string, s Shape) Field { return Field{Name: name, Shape: s} }

// Opt declares an optional field.
func Opt(name string, s Shape) Field { return Field{Name: name, Shape: s, Optional: true} }

// RecordOf returns a Record over fields in the given order. It does not
// validate; use the Builder or Validate when names come from untrusted input.
func RecordOf(fields ...Field) Record {
	return Record{Fields: append([]Field(nil), fields...)}
}

// Equal reports whether a and b describe the same shape.
func Equal(a, b Shape) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Scalar:
		bv, ok := b.(Scalar)
		return ok && av.Kind == bv.Kind
	case Container:
		bv, ok := b.(Container)
		return ok && Equal(av.Elem, bv.Elem)
	case Polymorphic:
		bv, ok := b.(Polymorphic)
		return ok && av.Slot == bv.Slot
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		left := sortedFields(av.Fields)
		right := sortedFields(bv.Fields)
		for i := range left {
			if left[i].Name != right[i].Name || left[i].Optional != right[i].Optional {
				return false
			}
			if !Equal(left[i].Shape, right[i].Shape) {
				return false
			}
		}
		return true
	}
	return false
}

func sortedFields(fs []Field) []Field {
	out := append([]Field(nil), fs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
