// Package coerce matches loosely typed input values against a shape
// descriptor and produces a value shaped exactly like the descriptor.
//
// The engine walks the descriptor and the input together. For every record
// field it decides whether the field is present, absent or mismatched:
//
//	required field   must be present; its value is matched recursively
//	optional field   absent (or null) => opt.Absent; present => opt.Present(match)
//	undeclared key   ignored and dropped from the output
//
// Containers are matched element by element in order. Output trees are
// freshly allocated: records become map[string]any holding exactly the
// declared fields, containers become []any, optional slots become
// opt.Opt[any] and scalars are passed through unchanged.
//
// # Strategies
//
// Open is extensible: every scalar kind needs a Rule in a Registry, and any
// input whose shape cannot be determined (an empty container, a polymorphic
// slot, an unregistered kind) fails with ErrUnderspecifiedInput. Callers
// disambiguate such values up front with Annotate.
//
// Closed uses a fixed rule set and never fails on ambiguity. It records an
// *Unresolved binding in the output tree instead, and lists every binding in
// Result.Unresolved so the caller can finish the job or escalate (see
// WithStrictUnresolved).
//
// # Diagnostics
//
// A failure is a *Diagnostic carrying the path from the descriptor root
// (field names and Container markers), the expected shape and the actual
// shape of the input. Matching stops at the first failure in declaration and
// sequence order unless WithAllMismatches is set. RenderDiagnostic produces
// the multi-line human form.
//
// Engines are immutable after construction and safe for concurrent use.
package coerce
