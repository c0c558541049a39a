package coerce

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/optshape/shape"
)

var (
	// ErrShapeMismatch: a required field is missing or a value has the wrong shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnderspecifiedInput: the Open strategy could not determine an input's shape.
	ErrUnderspecifiedInput = errors.New("underspecified input")
	// ErrUnresolvedPolymorphic: a Closed binding was escalated by WithStrictUnresolved.
	ErrUnresolvedPolymorphic = errors.New("unresolved polymorphic slot")

	// ErrInvalidDescriptor wraps the shape.Validate failure of a descriptor
	// handed to Coerce.
	ErrInvalidDescriptor = errors.New("coerce: invalid descriptor")
)

// Reason classifies a Diagnostic.
type Reason int

const (
	ShapeMismatch Reason = iota + 1
	UnderspecifiedInput
	UnresolvedPolymorphic
)

func (r Reason) String() string {
	if err := r.Err(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Err returns the sentinel error for r.
func (r Reason) Err() error {
	switch r {
	case ShapeMismatch:
		return ErrShapeMismatch
	case UnderspecifiedInput:
		return ErrUnderspecifiedInput
	case UnresolvedPolymorphic:
		return ErrUnresolvedPolymorphic
	}
	return nil
}

const (
	// ContainerMarker is the path segment recorded when descending into a
	// container element.
	ContainerMarker = "Container"
	// PathSeparator joins rendered path segments.
	PathSeparator = " → "
)

// Segment is one step of a Path: a record field, or a container element.
type Segment struct {
	Field     string
	Container bool
	// Index is the element position for container segments, or -1 when the
	// failure concerns the container as a whole (an empty sequence).
	Index int
}

// FieldSegment returns a record field segment.
func FieldSegment(name string) Segment { return Segment{Field: name} }

// ContainerSegment returns a container segment for element i.
func ContainerSegment(i int) Segment { return Segment{Container: true, Index: i} }

func (s Segment) String() string {
	if s.Container {
		return ContainerMarker
	}
	return s.Field
}

// Path locates a node from the descriptor root.
type Path []Segment

// String joins the segments with PathSeparator. The root renders as "$".
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, PathSeparator)
}

// Strings returns the rendered segments.
func (p Path) Strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.String()
	}
	return out
}

func (p Path) clone() Path { return append(Path(nil), p...) }

// Diagnostic describes where and why a coercion failed.
type Diagnostic struct {
	Reason   Reason
	Strategy Strategy
	Path     Path
	Expected shape.Shape
	// Actual is the shape the input had at Path. It is nil when nothing was
	// supplied (a missing required field) and the anonymous placeholder when
	// the input's shape could not be determined.
	Actual shape.Shape
	Detail string
}

func (d *Diagnostic) Error() string {
	msg := fmt.Sprintf("coerce: %s at %s: expected %s, got %s", d.Reason, d.Path, describeShape(d.Expected), describeActual(d.Actual))
	if d.Detail != "" {
		msg += " (" + d.Detail + ")"
	}
	return msg
}

// Unwrap returns the sentinel for the diagnostic's Reason.
func (d *Diagnostic) Unwrap() error { return d.Reason.Err() }

// Unresolved reports whether the actual side is an unresolved placeholder.
func (d *Diagnostic) Unresolved() bool {
	return d.Actual != nil && shape.IsPlaceholder(d.Actual)
}

const annotateHint = "the value's shape could not be determined; annotate it explicitly with its intended shape before coercing"

// Render returns the multi-line human readable form of d.
func (d *Diagnostic) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %s\n", d.Reason, d.Path)
	fmt.Fprintf(&sb, "  expected: %s\n", describeShape(d.Expected))
	fmt.Fprintf(&sb, "  actual:   %s\n", describeActual(d.Actual))
	if d.Detail != "" {
		fmt.Fprintf(&sb, "  detail:   %s\n", d.Detail)
	}
	if d.Unresolved() || d.Reason == UnderspecifiedInput {
		fmt.Fprintf(&sb, "  hint:     %s\n", annotateHint)
	}
	return sb.String()
}

// RenderDiagnostic renders d. See Diagnostic.Render.
func RenderDiagnostic(d *Diagnostic) string { return d.Render() }

// RenderError renders every diagnostic contained in err, or err.Error() when
// err carries none.
func RenderError(err error) string {
	var ds Diagnostics
	if errors.As(err, &ds) {
		parts := make([]string, len(ds))
		for i, d := range ds {
			parts[i] = d.Render()
		}
		return strings.Join(parts, "\n")
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Render()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func describeShape(s shape.Shape) string {
	if s == nil {
		return "<none>"
	}
	return s.String()
}

func describeActual(s shape.Shape) string {
	switch {
	case s == nil:
		return "<missing>"
	case shape.IsPlaceholder(s):
		return "<unresolved placeholder>"
	}
	return s.String()
}

// Diagnostics aggregates independent failures collected with
// WithAllMismatches, in traversal order.
type Diagnostics []*Diagnostic

func (ds Diagnostics) Error() string {
	switch len(ds) {
	case 0:
		return "coerce: no diagnostics"
	case 1:
		return ds[0].Error()
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.Error()
	}
	return fmt.Sprintf("coerce: %d mismatches:\n%s", len(ds), strings.Join(lines, "\n"))
}

// Unwrap exposes the individual diagnostics to errors.Is and errors.As.
func (ds Diagnostics) Unwrap() []error {
	out := make([]error, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}
