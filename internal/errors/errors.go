// Package errors defines the simulator's error taxonomy.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a simulator failure.
type Kind string

const (
	KindDataValidation      Kind = "data_validation"
	KindEvaluation          Kind = "evaluation"
	KindInsufficientCapital Kind = "insufficient_capital"
	KindConfiguration       Kind = "configuration"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrDataValidation      = errors.New("data validation failed")
	ErrEvaluation          = errors.New("condition evaluation failed")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrConfiguration       = errors.New("invalid configuration")
)

// Error provides context for a classified failure.
type Error struct {
	Kind   Kind
	Op     string
	Target string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return sentinel(e.Kind) == target
}

// New constructs a classified error. An error that is already classified is returned unchanged.
func New(kind Kind, op, target string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, target, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Target: target, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a classified error, or "" when err is not classified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsFatal reports whether err must abort a run. Evaluation and capital errors are recovered locally.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindDataValidation, KindConfiguration:
		return true
	case KindEvaluation, KindInsufficientCapital:
		return false
	}
	return err != nil
}

func sentinel(kind Kind) error {
	switch kind {
	case KindDataValidation:
		return ErrDataValidation
	case KindEvaluation:
		return ErrEvaluation
	case KindInsufficientCapital:
		return ErrInsufficientCapital
	case KindConfiguration:
		return ErrConfiguration
	}
	return nil
}
