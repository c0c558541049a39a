package shape

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDepth bounds descriptor nesting. A tree that exceeds it is rejected,
// which also catches descriptors that were wired into a cycle.
const MaxDepth = 128

// ErrTooDeep is returned by Validate when a descriptor exceeds MaxDepth.
var ErrTooDeep = fmt.Errorf("shape: descriptor deeper than %d levels", MaxDepth)

// Validate checks that s is a well-formed descriptor: no nil nodes, non-empty
// scalar kinds, non-empty and unique field names, bounded depth.
func Validate(s Shape) error {
	return validate(s, 0, "$")
}

func validate(s Shape, depth int, at string) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	switch n := s.(type) {
	case nil:
		return fmt.Errorf("shape: nil node at %s", at)
	case Scalar:
		if strings.TrimSpace(string(n.Kind)) == "" {
			return fmt.Errorf("shape: scalar without kind at %s", at)
		}
	case Polymorphic:
	case Container:
		if n.Elem == nil {
			return fmt.Errorf("shape: container without element shape at %s", at)
		}
		return validate(n.Elem, depth+1, at+"[]")
	case Record:
		seen := make(map[string]struct{}, len(n.Fields))
		for _, f := range n.Fields {
			if strings.TrimSpace(f.Name) == "" {
				return fmt.Errorf("shape: empty field name at %s", at)
			}
			if _, dup := seen[f.Name]; dup {
				return fmt.Errorf("shape: duplicate field %s at %s", f.Name, at)
			}
			seen[f.Name] = struct{}{}
			if err := validate(f.Shape, depth+1, at+"."+f.Name); err != nil {
				return err
			}
		}
	default:
		return errors.New("shape: unknown node type")
	}
	return nil
}
