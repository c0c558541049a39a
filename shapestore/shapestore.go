// Package shapestore defines named, versioned storage for shape descriptors.
//
// Descriptors are persisted in their canonical encoding (shape.Marshal) so
// that every backend reports the same fingerprint for the same tree.
package shapestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/optshape/shape"
)

var (
	// ErrNotFound is returned by Get and Delete for unknown names.
	ErrNotFound = errors.New("shapestore: not found")
	// ErrInvalidName is returned for names that are empty, too long or
	// contain characters outside [A-Za-z0-9._-].
	ErrInvalidName = errors.New("shapestore: invalid name")
)

// MaxNameLength bounds descriptor names.
const MaxNameLength = 128

// Store persists descriptors by name.
type Store interface {
	// Put stores s under name, replacing any previous descriptor, and returns
	// its fingerprint.
	Put(ctx context.Context, name string, s shape.Shape) (string, error)

	// Get returns the descriptor stored under name or ErrNotFound.
	Get(ctx context.Context, name string) (shape.Shape, error)

	// Delete removes the descriptor stored under name or returns ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns all stored names in lexical order.
	List(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// ValidateName checks a descriptor name.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.IndexFunc(name, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '.' || r == '_' || r == '-':
			return false
		}
		return true
	}) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Encode validates name and s and returns the canonical encoding of s with
// its fingerprint. Backends call it from Put.
func Encode(name string, s shape.Shape) ([]byte, string, error) {
	if err := ValidateName(name); err != nil {
		return nil, "", err
	}
	b, err := shape.Marshal(s)
	if err != nil {
		return nil, "", err
	}
	fp, err := shape.Fingerprint(s)
	if err != nil {
		return nil, "", err
	}
	return b, fp, nil
}
