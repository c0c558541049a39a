package shape

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// node is the canonical wire form of a descriptor. Struct field order keeps
// the encoding stable, and record fields keep declaration order, so equal
// trees built the same way always encode to the same bytes.
type node struct {
	Kind   string      `json:"kind"`
	Type   string      `json:"type,omitempty"`
	Slot   string      `json:"slot,omitempty"`
	Elem   *node       `json:"elem,omitempty"`
	Fields []fieldNode `json:"fields,omitempty"`
}

type fieldNode struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
	Shape    *node  `json:"shape"`
}

const (
	nodeScalar      = "scalar"
	nodeRecord      = "record"
	nodeContainer   = "container"
	nodePolymorphic = "polymorphic"
)

// Marshal returns the canonical JSON encoding of s.
func Marshal(s Shape) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	return json.Marshal(toNode(s))
}

// Unmarshal decodes and validates a canonical descriptor.
func Unmarshal(b []byte) (Shape, error) {
	var n node
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("shape: decode descriptor: %w", err)
	}
	s, err := fromNode(&n, 0)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Fingerprint returns the hex encoded SHA-256 of the canonical encoding.
// Any semantic change, including field order, produces a new fingerprint.
func Fingerprint(s Shape) (string, error) {
	b, err := Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func toNode(s Shape) *node {
	switch n := s.(type) {
	case Scalar:
		return &node{Kind: nodeScalar, Type: string(n.Kind)}
	case Polymorphic:
		return &node{Kind: nodePolymorphic, Slot: n.Slot}
	case Container:
		return &node{Kind: nodeContainer, Elem: toNode(n.Elem)}
	case Record:
		out := &node{Kind: nodeRecord, Fields: make([]fieldNode, 0, len(n.Fields))}
		for _, f := range n.Fields {
			out.Fields = append(out.Fields, fieldNode{Name: f.Name, Optional: f.Optional, Shape: toNode(f.Shape)})
		}
		return out
	}
	return nil
}

func fromNode(n *node, depth int) (Shape, error) {
	if n == nil {
		return nil, fmt.Errorf("shape: missing node")
	}
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch n.Kind {
	case nodeScalar:
		return Scalar{Kind: Kind(n.Type)}, nil
	case nodePolymorphic:
		return Polymorphic{Slot: n.Slot}, nil
	case nodeContainer:
		elem, err := fromNode(n.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		return Container{Elem: elem}, nil
	case nodeRecord:
		rec := Record{Fields: make([]Field, 0, len(n.Fields))}
		for _, f := range n.Fields {
			inner, err := fromNode(f.Shape, depth+1)
			if err != nil {
				return nil, fmt.Errorf("shape: field %s: %w", f.Name, err)
			}
			rec.Fields = append(rec.Fields, Field{Name: f.Name, Shape: inner, Optional: f.Optional})
		}
		return rec, nil
	}
	return nil, fmt.Errorf("shape: unknown node kind %q", n.Kind)
}
