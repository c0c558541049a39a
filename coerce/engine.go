package coerce

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/ggoodman/optshape/opt"
	"github.com/ggoodman/optshape/shape"
)

// Strategy selects how the engine treats inputs whose shape cannot be pinned
// down.
type Strategy int

const (
	// Open fails on ambiguous inputs and consults an extensible Registry.
	Open Strategy = iota
	// Closed defers ambiguous inputs as Unresolved bindings and uses a fixed
	// rule set.
	Closed
)

func (s Strategy) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses "open" or "closed" (case-insensitive).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return Open, nil
	case "closed":
		return Closed, nil
	}
	return 0, fmt.Errorf("coerce: unknown strategy %q", s)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug events. If not provided, logs are
// discarded.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithAllMismatches makes the engine keep going after a failure and return
// every independent mismatch as Diagnostics.
func WithAllMismatches() Option { return func(e *Engine) { e.all = true } }

// WithStrictUnresolved makes a Closed engine report every Unresolved binding
// as an ErrUnresolvedPolymorphic failure instead of a deferred success.
func WithStrictUnresolved() Option { return func(e *Engine) { e.strictUnresolved = true } }

// Engine coerces input values against descriptors with one strategy.
type Engine struct {
	strategy         Strategy
	rules            *Registry
	log              *slog.Logger
	all              bool
	strictUnresolved bool
}

// NewOpen returns an Open engine consulting reg. A nil reg means
// DefaultRegistry. Rules registered later are visible to the engine.
func NewOpen(reg *Registry, opts ...Option) *Engine {
	if reg == nil {
		reg = DefaultRegistry
	}
	return newEngine(Open, reg, opts)
}

// NewClosed returns a Closed engine over the built-in rule set.
func NewClosed(opts ...Option) *Engine {
	return newEngine(Closed, nil, opts)
}

// New returns an engine for strategy. reg is only consulted by Open.
func New(strategy Strategy, reg *Registry, opts ...Option) *Engine {
	if strategy == Open {
		return NewOpen(reg, opts...)
	}
	return NewClosed(opts...)
}

func newEngine(s Strategy, reg *Registry, opts []Option) *Engine {
	e := &Engine{strategy: s, rules: reg, log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// Strategy returns the engine's strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Result is a successful coercion.
type Result struct {
	// Value is shaped like the descriptor.
	Value any
	// Unresolved lists the deferred bindings found by a Closed engine, in
	// traversal order. The same pointers appear inside Value.
	Unresolved []*Unresolved
}

// Resolved reports whether the result carries no deferred bindings.
func (r *Result) Resolved() bool { return len(r.Unresolved) == 0 }

// CoerceOpen coerces in against s with an Open engine over DefaultRegistry.
func CoerceOpen(s shape.Shape, in any) (*Result, error) {
	return NewOpen(nil).Coerce(s, in)
}

// CoerceClosed coerces in against s with a Closed engine.
func CoerceClosed(s shape.Shape, in any) (*Result, error) {
	return NewClosed().Coerce(s, in)
}

// Coerce matches in against s. On failure the error is a *Diagnostic, or
// Diagnostics when WithAllMismatches is set. A descriptor that fails
// shape.Validate yields an error wrapping ErrInvalidDescriptor.
func (e *Engine) Coerce(s shape.Shape, in any) (*Result, error) {
	if err := shape.Validate(s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	r := &run{e: e}
	out, ok := r.match(s, in, 0, false)
	if ok && e.strictUnresolved {
		for _, u := range r.unresolved {
			r.report(&Diagnostic{
				Reason:   UnresolvedPolymorphic,
				Path:     u.Path.clone(),
				Expected: u.Expected,
				Actual:   u.Bound,
				Detail:   fmt.Sprintf("slot %q left unresolved", u.Slot),
			})
			if !e.all {
				break
			}
		}
		ok = len(r.diags) == 0
	}
	if !ok {
		if e.all {
			return nil, r.diags
		}
		return nil, r.diags[0]
	}
	for _, u := range r.unresolved {
		e.log.Debug("coerce.unresolved",
			slog.String("strategy", e.strategy.String()),
			slog.String("path", u.Path.String()),
			slog.String("slot", u.Slot),
		)
	}
	return &Result{Value: out, Unresolved: r.unresolved}, nil
}

// run holds the state of a single Coerce call.
type run struct {
	e          *Engine
	path       Path
	diags      Diagnostics
	unresolved []*Unresolved
}

func (r *run) push(s Segment) { r.path = append(r.path, s) }
func (r *run) pop()           { r.path = r.path[:len(r.path)-1] }

func (r *run) report(d *Diagnostic) {
	d.Strategy = r.e.strategy
	r.diags = append(r.diags, d)
	r.e.log.Debug("coerce.mismatch",
		slog.String("strategy", r.e.strategy.String()),
		slog.String("reason", d.Reason.String()),
		slog.String("path", d.Path.String()),
		slog.String("expected", describeShape(d.Expected)),
		slog.String("actual", describeActual(d.Actual)),
	)
}

func (r *run) fail(reason Reason, expected, actual shape.Shape, detail string) (any, bool) {
	r.report(&Diagnostic{Reason: reason, Path: r.path.clone(), Expected: expected, Actual: actual, Detail: detail})
	return nil, false
}

func (r *run) bind(slot string, expected, bound shape.Shape, value any) (any, bool) {
	if slot == "" {
		slot = r.path.String()
	}
	u := &Unresolved{Slot: slot, Path: r.path.clone(), Expected: expected, Bound: bound, Value: value}
	r.unresolved = append(r.unresolved, u)
	return u, true
}

// match is the recursive matcher. pinned is set below an Annotated value:
// the caller has vouched for the shape, so empty containers are not
// ambiguous.
func (r *run) match(s shape.Shape, v any, depth int, pinned bool) (any, bool) {
	if depth > shape.MaxDepth {
		return r.fail(ShapeMismatch, s, nil, shape.ErrTooDeep.Error())
	}

	switch w := v.(type) {
	case Annotated:
		if !shape.Equal(w.Shape, s) {
			return r.fail(ShapeMismatch, s, w.Shape, "annotation disagrees with the expected shape")
		}
		return r.match(s, w.Value, depth+1, true)
	case *Annotated:
		if w == nil {
			return r.fail(ShapeMismatch, s, shape.Of(shape.KindNull), "")
		}
		return r.match(s, *w, depth+1, pinned)
	case *Unresolved:
		if r.e.strategy == Open {
			return r.fail(UnderspecifiedInput, s, shape.Polymorphic{}, fmt.Sprintf("value carries the unresolved binding %q", w.Slot))
		}
		return r.match(s, w.Value, depth+1, pinned)
	case opt.Carrier:
		inner, ok := w.Any()
		if !ok {
			return r.fail(ShapeMismatch, s, nil, "Absent value in a required position")
		}
		return r.match(s, inner, depth+1, pinned)
	}

	switch n := s.(type) {
	case shape.Scalar:
		return r.matchScalar(n, v)
	case shape.Polymorphic:
		if r.e.strategy == Open {
			return r.fail(UnderspecifiedInput, n, shape.Infer(v), "polymorphic slots cannot be resolved by the open strategy")
		}
		return r.bind(n.Slot, n, shape.Infer(v), clone(v, 0))
	case shape.Container:
		return r.matchContainer(n, v, depth, pinned)
	case shape.Record:
		return r.matchRecord(n, v, depth, pinned)
	}
	return r.fail(ShapeMismatch, s, shape.Infer(v), fmt.Sprintf("unsupported descriptor node %T", s))
}

func (r *run) matchScalar(n shape.Scalar, v any) (any, bool) {
	var rule Rule
	var ok bool
	if r.e.strategy == Open {
		rule, ok = r.e.rules.Lookup(n.Kind)
	} else {
		rule, ok = builtinRules[n.Kind]
	}
	if !ok {
		if r.e.strategy == Open {
			return r.fail(UnderspecifiedInput, n, shape.Infer(v), fmt.Sprintf("no rule registered for kind %s", n.Kind))
		}
		return r.bind("", n, shape.Infer(v), clone(v, 0))
	}
	out, ok := rule.Coerce(v)
	if !ok {
		return r.fail(ShapeMismatch, n, shape.Infer(v), "")
	}
	return out, true
}

func (r *run) matchContainer(n shape.Container, v any, depth int, pinned bool) (any, bool) {
	elems, ok := sequence(v)
	if !ok {
		return r.fail(ShapeMismatch, n, shape.Infer(v), "")
	}
	if len(elems) == 0 {
		if pinned {
			return []any{}, true
		}
		r.push(ContainerSegment(-1))
		defer r.pop()
		if r.e.strategy == Open {
			return r.fail(UnderspecifiedInput, n.Elem, shape.Polymorphic{}, "cannot determine element shape from zero elements")
		}
		return r.bind("", n, shape.Container{Elem: shape.Polymorphic{}}, []any{})
	}

	out := make([]any, len(elems))
	failed := false
	for i, el := range elems {
		r.push(ContainerSegment(i))
		m, ok := r.match(n.Elem, el, depth+1, pinned)
		r.pop()
		if !ok {
			failed = true
			if !r.e.all {
				return nil, false
			}
			continue
		}
		out[i] = m
	}
	if failed {
		return nil, false
	}
	return out, true
}

func (r *run) matchRecord(n shape.Record, v any, depth int, pinned bool) (any, bool) {
	get, ok := mapping(v)
	if !ok {
		return r.fail(ShapeMismatch, n, shape.Infer(v), "")
	}

	out := make(map[string]any, len(n.Fields))
	failed := false
	for _, f := range n.Fields {
		raw, present := get(f.Name)
		r.push(FieldSegment(f.Name))
		val, ok := r.matchField(f, raw, present, depth, pinned)
		r.pop()
		if !ok {
			failed = true
			if !r.e.all {
				return nil, false
			}
			continue
		}
		out[f.Name] = val
	}
	if failed {
		return nil, false
	}
	return out, true
}

func (r *run) matchField(f shape.Field, raw any, present bool, depth int, pinned bool) (any, bool) {
	if !f.Optional {
		if !present {
			return r.fail(ShapeMismatch, f.Shape, nil, "required field is missing")
		}
		return r.match(f.Shape, raw, depth+1, pinned)
	}

	if !present || raw == nil {
		return opt.Absent[any](), true
	}
	if c, ok := raw.(opt.Carrier); ok {
		inner, isPresent := c.Any()
		if !isPresent {
			return opt.Absent[any](), true
		}
		raw = inner
	}
	m, ok := r.match(f.Shape, raw, depth+1, pinned)
	if !ok {
		return nil, false
	}
	return opt.Present(m), true
}

// sequence returns the elements of a slice or array input.
func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// mapping returns a field lookup over a string-keyed map input.
func mapping(v any) (func(string) (any, bool), bool) {
	switch m := v.(type) {
	case map[string]any:
		return func(k string) (any, bool) {
			val, ok := m[k]
			return val, ok
		}, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	keyType := rv.Type().Key()
	return func(k string) (any, bool) {
		val := rv.MapIndex(reflect.ValueOf(k).Convert(keyType))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	}, true
}
