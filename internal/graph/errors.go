package graph

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every backend. Backends wrap these with
// fmt.Errorf("<backend>: <op>: %w", ...) so callers test with errors.Is.
var (
	// ErrConnection means the backing store is unreachable or timed out.
	ErrConnection = errors.New("connection error")

	// ErrSchema means uniqueness constraints could not be established.
	// The backend is still usable; callers log and continue.
	ErrSchema = errors.New("schema error")

	// ErrConfiguration means an unknown backend kind or a missing parameter.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotImplemented is returned by placeholder backends.
	ErrNotImplemented = errors.New("not implemented")

	// ErrMalformedInput marks a structurally invalid entity from the parser.
	ErrMalformedInput = errors.New("malformed input")

	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// NotImplementedError is returned by every operation of a placeholder
// backend. It matches ErrNotImplemented under errors.Is.
type NotImplementedError struct {
	Kind Kind
	Op   string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: %s: backend %q is not implemented", e.Kind, e.Op, string(e.Kind))
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}
