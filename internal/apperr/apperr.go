// Package apperr defines the error kinds shared by the storage, auth and tool layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell setup mistakes from transient I/O.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindValidation
	KindIO
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindIO:
		return "io"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a kind.
var (
	ErrConfig     = errors.New("config error")
	ErrValidation = errors.New("validation error")
	ErrIO         = errors.New("io error")
	ErrAuth       = errors.New("auth error")
)

// Error carries a kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindValidation:
		return ErrValidation
	case KindIO:
		return ErrIO
	case KindAuth:
		return ErrAuth
	default:
		return nil
	}
}

// Config returns a KindConfig error.
func Config(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// Validation returns a KindValidation error.
func Validation(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// Auth returns a KindAuth error.
func Auth(op, format string, args ...interface{}) error {
	return &Error{Kind: KindAuth, Op: op, Err: fmt.Errorf(format, args...)}
}

// IO wraps err as a KindIO error. A nil err yields nil.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// Wrap attaches kind to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
