// Package lerr names Lantern's error kinds, per the engine's error design:
// InvalidInput, AuthRequired, DbError, SchemaError, IoError, Transport, and
// Internal. It generalizes the sentinel-error style sovereign's store
// package uses (ErrNotFound, ErrConflict, wrapped with %w) from two
// sentinels to the seven kinds the spec names.
package lerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of Lantern's error categories. It is not a Go type
// per kind — callers switch on Kind via errors.As to a *Error and compare
// the field, which keeps every call site from needing its own sentinel.
type Kind string

const (
	InvalidInput Kind = "invalid_input"
	AuthRequired Kind = "auth_required"
	DbError      Kind = "db_error"
	SchemaError  Kind = "schema_error"
	IoError      Kind = "io_error"
	Transport    Kind = "transport"
	Internal     Kind = "internal"
)

// Error wraps an underlying error with a Kind classification.
type Error struct {
	Kind Kind
	Err  error
}

// New builds a classified error. If err is nil, the kind alone becomes the
// error text.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
