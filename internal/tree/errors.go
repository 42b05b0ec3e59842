package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a key or index did not resolve to an existing node.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidArgument means the caller supplied a structurally invalid
	// node: a duplicate key, a cycle, or a value out of range.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error records the operation and key that failed.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("tree %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tree %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func notFound(op, key string) error {
	return &Error{Op: op, Key: key, Err: ErrNotFound}
}

func invalid(op, key, format string, args ...any) error {
	return &Error{Op: op, Key: key, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)}
}
