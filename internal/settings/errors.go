package settings

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the settings engine.
var (
	ErrDuplicateName  = errors.New("settings: handler name already registered")
	ErrInvalidHandler = errors.New("settings: invalid handler")
	ErrNotFound       = errors.New("settings: key not found")
	ErrReadFailure    = errors.New("settings: value read failed")
	ErrNoHandler      = errors.New("settings: no handler for key")
	ErrNotSupported   = errors.New("settings: operation not supported by handler")
)

// EntryError describes a failed dispatch of one stored entry or a failed
// commit. Handler is empty for direct loads.
type EntryError struct {
	Key     string
	Handler string
	Op      string
	Err     error
}

// Error implements error.
func (e *EntryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	if e.Handler != "" {
		fmt.Fprintf(&b, " (handler %q)", e.Handler)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns the underlying error.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// LoadError aggregates the failures of a single load pass.
//
// A pass keeps going after a failed set or commit unless the Loader runs
// in strict mode, so one LoadError may carry several failures.
type LoadError struct {
	Mode     Mode
	Subtree  string
	Failures []*EntryError
}

// Error implements error.
func (e *LoadError) Error() string {
	target := e.Subtree
	if target == "" {
		target = "*"
	}
	if len(e.Failures) == 1 {
		return fmt.Sprintf("settings: %s %s: %v", e.Mode, target, e.Failures[0])
	}
	return fmt.Sprintf("settings: %s %s: %d failures, first: %v", e.Mode, target, len(e.Failures), e.Failures[0])
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *LoadError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

func (e *LoadError) add(f *EntryError) {
	e.Failures = append(e.Failures, f)
}

func (e *LoadError) orNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}
