package shape

import (
	"encoding/json"
	"fmt"
	"strings"

	js "github.com/invopop/jsonschema"
)

// slotCommentPrefix marks a polymorphic slot in the $comment keyword.
const slotCommentPrefix = "slot:"

// ToJSONSchema renders s as a JSON Schema document. Built-in kinds map to
// JSON Schema types; custom scalar kinds are carried in "format" and named
// polymorphic slots in "$comment" so that FromJSONSchema can recover them.
func ToJSONSchema(s Shape) (*js.Schema, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	root := toJSONSchema(s)
	root.Version = js.Version
	return root, nil
}

func toJSONSchema(s Shape) *js.Schema {
	switch n := s.(type) {
	case Scalar:
		switch n.Kind {
		case KindString:
			return &js.Schema{Type: "string"}
		case KindNumber:
			return &js.Schema{Type: "number"}
		case KindInt:
			return &js.Schema{Type: "integer"}
		case KindBool:
			return &js.Schema{Type: "boolean"}
		case KindNull:
			return &js.Schema{Type: "null"}
		}
		return &js.Schema{Format: string(n.Kind)}
	case Polymorphic:
		// An empty schema would be encoded as the boolean true.
		return &js.Schema{Comments: slotCommentPrefix + n.Slot}
	case Container:
		return &js.Schema{Type: "array", Items: toJSONSchema(n.Elem)}
	case Record:
		out := &js.Schema{Type: "object", Properties: js.NewProperties()}
		for _, f := range n.Fields {
			out.Properties.Set(f.Name, toJSONSchema(f.Shape))
			if !f.Optional {
				out.Required = append(out.Required, f.Name)
			}
		}
		return out
	}
	return &js.Schema{}
}

// FromJSONSchema converts the supported subset of JSON Schema into a
// descriptor: object (properties + required), array (items), the primitive
// types, custom kinds via "format" without "type", and the empty schema as a
// polymorphic slot. Composition keywords and $ref are rejected.
func FromJSONSchema(s *js.Schema) (Shape, error) {
	out, err := fromJSONSchema(s, 0, "$")
	if err != nil {
		return nil, err
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseJSONSchema decodes a JSON Schema document and converts it.
func ParseJSONSchema(b []byte) (Shape, error) {
	var s js.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("shape: decode json schema: %w", err)
	}
	return FromJSONSchema(&s)
}

func fromJSONSchema(s *js.Schema, depth int, at string) (Shape, error) {
	if s == nil {
		return nil, fmt.Errorf("shape: nil schema at %s", at)
	}
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	if s.Ref != "" || len(s.AllOf) > 0 || len(s.AnyOf) > 0 || len(s.OneOf) > 0 || s.Not != nil {
		return nil, fmt.Errorf("shape: unsupported schema composition at %s", at)
	}
	switch s.Type {
	case "string":
		return Str(), nil
	case "number":
		return Num(), nil
	case "integer":
		return Integer(), nil
	case "boolean":
		return Boolean(), nil
	case "null":
		return Of(KindNull), nil
	case "array":
		if s.Items == nil {
			return Container{Elem: Polymorphic{}}, nil
		}
		elem, err := fromJSONSchema(s.Items, depth+1, at+"[]")
		if err != nil {
			return nil, err
		}
		return Container{Elem: elem}, nil
	case "object":
		required := make(map[string]struct{}, len(s.Required))
		for _, r := range s.Required {
			required[r] = struct{}{}
		}
		rec := Record{}
		if s.Properties != nil {
			for el := s.Properties.Oldest(); el != nil; el = el.Next() {
				inner, err := fromJSONSchema(el.Value, depth+1, at+"."+el.Key)
				if err != nil {
					return nil, err
				}
				_, isReq := required[el.Key]
				delete(required, el.Key)
				rec.Fields = append(rec.Fields, Field{Name: el.Key, Shape: inner, Optional: !isReq})
			}
		}
		for name := range required {
			return nil, fmt.Errorf("shape: required property %s not declared at %s", name, at)
		}
		return rec, nil
	case "":
		if s.Format != "" {
			return Of(Kind(s.Format)), nil
		}
		if slot, ok := strings.CutPrefix(s.Comments, slotCommentPrefix); ok {
			return Poly(slot), nil
		}
		return Polymorphic{}, nil
	}
	return nil, fmt.Errorf("shape: unsupported schema type %q at %s", s.Type, at)
}
