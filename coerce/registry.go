package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ggoodman/optshape/shape"
)

// Rule decides whether a value is an instance of a scalar kind. On success it
// returns the value to place in the output tree.
type Rule interface {
	Coerce(v any) (any, bool)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(v any) (any, bool)

// Coerce implements Rule.
func (f RuleFunc) Coerce(v any) (any, bool) { return f(v) }

// ErrDuplicateRule is returned by Register when a kind already has a rule.
var ErrDuplicateRule = errors.New("coerce: rule already registered")

// Registry maps scalar kinds to rules. It is the extension point of the Open
// strategy and is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[shape.Kind]Rule
}

// NewRegistry returns a registry holding the built-in rules for String,
// Number, Int and Bool.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[shape.Kind]Rule, len(builtinRules))}
	for k, rule := range builtinRules {
		r.rules[k] = rule
	}
	return r
}

// Register adds a rule for kind. It fails if the kind already has one.
func (r *Registry) Register(kind shape.Kind, rule Rule) error {
	if kind == "" {
		return errors.New("coerce: empty kind")
	}
	if rule == nil {
		return fmt.Errorf("coerce: nil rule for kind %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, kind)
	}
	r.rules[kind] = rule
	return nil
}

// Replace sets the rule for kind, overriding any existing one.
func (r *Registry) Replace(kind shape.Kind, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[kind] = rule
}

// Lookup returns the rule registered for kind.
func (r *Registry) Lookup(kind shape.Kind) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[kind]
	return rule, ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []shape.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]shape.Kind, 0, len(r.rules))
	for k := range r.rules {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry backs CoerceOpen and Register.
var DefaultRegistry = NewRegistry()

// Register adds a rule to DefaultRegistry.
func Register(kind shape.Kind, rule Rule) error { return DefaultRegistry.Register(kind, rule) }

// builtinRules is also the fixed rule set of the Closed strategy.
var builtinRules = map[shape.Kind]Rule{
	shape.KindString: RuleFunc(matchString),
	shape.KindNumber: RuleFunc(matchNumber),
	shape.KindInt:    RuleFunc(matchInt),
	shape.KindBool:   RuleFunc(matchBool),
}

func matchString(v any) (any, bool) {
	s, ok := v.(string)
	return s, ok
}

func matchBool(v any) (any, bool) {
	b, ok := v.(bool)
	return b, ok
}

// matchInt accepts the unnamed Go integer types and integral JSON number
// literals.
func matchInt(v any) (any, bool) {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, true
	case json.Number:
		return n, shape.IsIntegral(n)
	}
	return nil, false
}

// matchNumber accepts the unnamed Go float types, any JSON number literal
// and the unnamed Go integer types. Integers widen to float64, so YAML and
// Go literals like 20 satisfy Number the same way the JSON literal does.
func matchNumber(v any) (any, bool) {
	switch n := v.(type) {
	case float32, float64, json.Number:
		return v, true
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(n).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(n).Uint()), true
	}
	return nil, false
}

// TypeRule returns a rule accepting values whose dynamic type is exactly T.
// It is the usual way to register a custom kind:
//
//	coerce.Register("Time", coerce.TypeRule[time.Time]())
func TypeRule[T any]() Rule {
	want := reflect.TypeFor[T]()
	return RuleFunc(func(v any) (any, bool) {
		if v == nil || reflect.TypeOf(v) != want {
			return nil, false
		}
		return v, true
	})
}
