package ssar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotApplicable marks objects that do not expose the requested attribute.
	ErrNotApplicable = errors.New("ssar: not applicable")
	// ErrStaleCandidate marks candidates whose value changed since the scan.
	ErrStaleCandidate = errors.New("ssar: stale candidate")
	// ErrResolutionFailure marks keys that no longer resolve to an object.
	ErrResolutionFailure = errors.New("ssar: object no longer resolves")
	// ErrWriteFailure marks mutations rejected by the host.
	ErrWriteFailure = errors.New("ssar: write rejected")
	// ErrInvalidScope is the only fatal scan condition: there is no live scope.
	ErrInvalidScope = errors.New("ssar: no valid scope")
	// ErrNoBaseline is returned by revert before any baseline was captured.
	ErrNoBaseline = errors.New("ssar: no baseline captured")
	// ErrIdentityMismatch is returned when a key of the wrong identity space is
	// handed to a snapshot or backup store.
	ErrIdentityMismatch = errors.New("ssar: identity mismatch")
	// ErrVolatilePersist is returned when a session snapshot is serialised.
	ErrVolatilePersist = errors.New("ssar: session snapshots keyed by volatile ids cannot be persisted")
	// ErrDeclined is returned when the confirmer rejects an operation.
	ErrDeclined = errors.New("ssar: operation declined")
)

// ObjectError records a per-object failure inside a batch operation.
type ObjectError struct {
	Op        string
	Key       Key
	Path      string
	Attribute string
	Err       error
}

func (e *ObjectError) Error() string {
	if e == nil {
		return "<nil>"
	}
	target := e.Path
	if target == "" {
		target = e.Key.String()
	}
	return fmt.Sprintf("ssar: %s %s attribute=%s: %v", e.Op, target, e.Attribute, e.Err)
}

func (e *ObjectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func objectError(op string, key Key, path, attribute string, err error) *ObjectError {
	var existing *ObjectError
	if errors.As(err, &existing) {
		return existing
	}
	return &ObjectError{Op: op, Key: key, Path: path, Attribute: attribute, Err: err}
}

func writeFailure(op string, key Key, path, attribute string, err error) *ObjectError {
	if err == nil {
		err = ErrWriteFailure
	} else if !errors.Is(err, ErrWriteFailure) {
		err = fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return objectError(op, key, path, attribute, err)
}
