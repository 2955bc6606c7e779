package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionAlreadyExists is returned by Save when a session with the same
	// token is already stored. Callers should mint a new token and retry.
	ErrSessionAlreadyExists = errors.New("session already exists")
	// ErrInvalidSession is matched by every *ValidationError.
	ErrInvalidSession = errors.New("invalid session")
	// ErrCorruptRecord indicates a stored record could not be decoded.
	ErrCorruptRecord = errors.New("corrupt session record")
)

// ValidationError reports input rejected before any storage I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid session: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidSession.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSession
}
