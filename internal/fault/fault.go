// Package fault defines the error kinds surfaced by the correlation core.
//
// Every failure produced by the point store, estimator, resampler, compositor
// and report writer is a *Error whose Kind can be matched with errors.Is
// against the Err* sentinels below. The extra fields give callers enough
// context (point count, conditioning value) to present an actionable message.
package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind is a coarse error classification.
type Kind string

const (
	KindUnknown                 Kind = "unknown"
	KindInvalidCoordinate       Kind = "invalid_coordinate"
	KindInsufficientPoints      Kind = "insufficient_points"
	KindDegenerateConfiguration Kind = "degenerate_configuration"
	KindDimensionMismatch       Kind = "dimension_mismatch"
	KindShapeMismatch           Kind = "shape_mismatch"
	KindIOFailure               Kind = "io_failure"
	KindNotFound                Kind = "not_found"
)

// Sentinels for errors.Is matching.
var (
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrDegenerate         = errors.New("degenerate configuration")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrShapeMismatch      = errors.New("shape mismatch")
	ErrIO                 = errors.New("io failure")
	ErrNotFound           = errors.New("not found")
)

var sentinels = map[Kind]error{
	KindInvalidCoordinate:       ErrInvalidCoordinate,
	KindInsufficientPoints:      ErrInsufficientPoints,
	KindDegenerateConfiguration: ErrDegenerate,
	KindDimensionMismatch:       ErrDimensionMismatch,
	KindShapeMismatch:           ErrShapeMismatch,
	KindIOFailure:               ErrIO,
	KindNotFound:                ErrNotFound,
}

// Error is a classified failure with optional numeric context.
type Error struct {
	Kind      Kind
	Op        string  // operation that failed, e.g. "estimate"
	Detail    string  // human-readable detail
	Points    int     // point count at the time of failure, 0 if not relevant
	Condition float64 // conditioning value, 0 if not relevant
	Err       error   // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if s, ok := sentinels[e.Kind]; ok {
		b.WriteString(s.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Points > 0 {
		fmt.Fprintf(&b, " (points=%d", e.Points)
		if e.Condition != 0 {
			fmt.Fprintf(&b, ", condition=%.3g", e.Condition)
		}
		b.WriteString(")")
	} else if e.Condition != 0 {
		fmt.Fprintf(&b, " (condition=%.3g)", e.Condition)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IO wraps an I/O error as KindIOFailure.
func IO(op string, err error) *Error {
	return &Error{Kind: KindIOFailure, Op: op, Err: err}
}

// KindOf classifies any error. Unclassified path errors count as I/O failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return KindIOFailure
	}
	return KindUnknown
}
