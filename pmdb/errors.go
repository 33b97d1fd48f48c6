// Package pmdb is the controller-side "PM database": protocols,
// fields, metadata, and per-switch flow tables/entries/counters/
// meters/groups. It exposes pure mutators and emits nothing on its
// own; the manager package is the only caller that pairs a
// mutation here with a wire emission.
package pmdb

import (
	"errors"
	"fmt"
)

// Kind classifies a Database error for callers that branch on the
// failure class rather than the message.
type Kind int

const (
	// InvalidArgument covers a bad field list, bad table type, or a
	// key-length sum mismatch.
	InvalidArgument Kind = iota
	// NotFound covers an unknown switch, table, entry, or field.
	NotFound
	// Conflict covers entries still present when a table delete was
	// requested.
	Conflict
	// ResourceExhausted covers an id pool that hit its hard max.
	ResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case ResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Error is the typed error every Database mutator returns instead of
// mutating on a validation failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pmdb: %s: %s: %s", e.Op, e.Kind, e.Msg)
}

func errInvalid(op, msg string, args...any) error {
	return &Error{Kind: InvalidArgument, Op: op, Msg: fmt.Sprintf(msg, args...)}
}

func errNotFound(op, msg string, args...any) error {
	return &Error{Kind: NotFound, Op: op, Msg: fmt.Sprintf(msg, args...)}
}

func errConflict(op, msg string, args...any) error {
	return &Error{Kind: Conflict, Op: op, Msg: fmt.Sprintf(msg, args...)}
}

func errExhausted(op, msg string, args...any) error {
	return &Error{Kind: ResourceExhausted, Op: op, Msg: fmt.Sprintf(msg, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error,
// defaulting to InvalidArgument when err is some other error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return InvalidArgument
}
