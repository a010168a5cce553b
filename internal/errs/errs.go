// Package errs defines the error taxonomy shared by every Quill component.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindStorage    Kind = "storage"
	KindGeneration Kind = "generation"
	KindContinuity Kind = "continuity"
	KindDomain     Kind = "domain"
)

// Error is a classified error. Op names the failing operation
// ("repository: create unit"), Fact carries the violated fact for
// continuity errors.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Fact string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing Work, Unit, or other record.
func NotFound(op, format string, args ...interface{}) *Error {
	return newf(KindNotFound, op, format, args...)
}

// Validation reports a rejected input or duplicate.
func Validation(op, format string, args ...interface{}) *Error {
	return newf(KindValidation, op, format, args...)
}

// Domain reports an invariant violation such as an illegal status change.
func Domain(op, format string, args ...interface{}) *Error {
	return newf(KindDomain, op, format, args...)
}

// Continuity reports a contradiction with established story facts.
func Continuity(op, fact, format string, args ...interface{}) *Error {
	e := newf(KindContinuity, op, format, args...)
	e.Fact = fact
	return e
}

// Storage wraps a persistence failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// Generation wraps a generator failure.
func Generation(op string, err error) *Error {
	return &Error{Kind: KindGeneration, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind. Continuity errors are
// also validation failures.
func Is(err error, kind Kind) bool {
	k := KindOf(err)
	if k == kind {
		return true
	}
	return kind == KindValidation && k == KindContinuity
}

// Stage identifies where an orchestrator run failed.
type Stage string

const (
	StageAnalyze  Stage = "ANALYZE_SITUATION"
	StageDecide   Stage = "DECIDE_ACTION"
	StageExecute  Stage = "EXECUTE_ACTION"
	StageValidate Stage = "VALIDATE"
	StageCommit   Stage = "COMMIT"
)

// StageError tags an error with the run stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with a stage tag. A nil err stays nil.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage tag in err's chain, or "" if there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
