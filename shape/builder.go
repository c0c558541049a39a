package shape

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Builder assembles a Record programmatically.
// Usage:
//
//	rec, err := shape.NewRecord().
//	    Required("a", shape.Str()).
//	    Optional("b", shape.Num()).
//	    Build()
//
// Errors (empty or duplicate names, nil shapes) are deferred to Build so the
// chain stays fluent.
type Builder struct {
	mu     sync.Mutex
	fields []Field
	seen   map[string]struct{}
	errs   []error
	built  bool
}

// NewRecord returns an empty record Builder.
func NewRecord() *Builder { return &Builder{seen: make(map[string]struct{})} }

// Required adds a required field.
func (b *Builder) Required(name string, s Shape) *Builder { return b.add(Req(name, s)) }

// Optional adds an optional field.
func (b *Builder) Optional(name string, s Shape) *Builder { return b.add(Opt(name, s)) }

// Field adds a pre-built field.
func (b *Builder) Field(f Field) *Builder { return b.add(f) }

func (b *Builder) add(f Field) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.TrimSpace(f.Name) == "" {
		b.errs = append(b.errs, errors.New("shape: empty field name"))
		return b
	}
	if f.Shape == nil {
		b.errs = append(b.errs, fmt.Errorf("shape: field %s has no shape", f.Name))
		return b
	}
	if _, dup := b.seen[f.Name]; dup {
		b.errs = append(b.errs, fmt.Errorf("shape: duplicate field %s", f.Name))
		return b
	}
	b.seen[f.Name] = struct{}{}
	b.fields = append(b.fields, f)
	return b
}

// Build finalizes the record. A Builder cannot be reused afterwards.
func (b *Builder) Build() (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return Record{}, errors.New("shape: builder reused after Build")
	}
	b.built = true
	if len(b.errs) > 0 {
		return Record{}, errors.Join(b.errs...)
	}
	rec := Record{Fields: append([]Field(nil), b.fields...)}
	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// MustBuild panics on error.
func (b *Builder) MustBuild() Record {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
