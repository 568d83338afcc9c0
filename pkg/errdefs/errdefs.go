// Package errdefs defines the error taxonomy shared by every stage of the
// flame graph pipeline.
//
// Each stage wraps its failures with one of the kind sentinels below, so
// callers can branch with errors.Is while still seeing the full context
// chain in the message.
package errdefs

import (
	"github.com/pkg/errors"
)

var (
	ErrConfig      = errors.New("invalid configuration")
	ErrToolMissing = errors.New("profiler not found")
	ErrSpawn       = errors.New("spawn failure")
	ErrSampling    = errors.New("sampling failure")
	ErrParse       = errors.New("parse failure")
	ErrIO          = errors.New("i/o failure")
	ErrPostProcess = errors.New("post-process failure")
	ErrRender      = errors.New("render failure")
)

// Error attaches a taxonomy kind to a contextual error.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// New returns an error of the given kind with a formatted message.
func New(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Wrap annotates err with msg and tags it with kind. Wrap returns nil if err
// is nil.
func Wrap(kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a format specifier.
func Wrapf(kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the kind of the outermost tagged error in err's chain, or
// nil if err carries no kind.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
