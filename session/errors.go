package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoGroup     = errors.New("no active group")
	ErrNotLeader   = errors.New("only the group leader can add members")
	ErrInvalidUTF8 = errors.New("application message is not valid utf-8")
	ErrStopped     = errors.New("session actor stopped")
)

// WelcomeError is returned by Join when the welcome could not be used to
// join a group. The session is left unchanged.
type WelcomeError struct {
	Err error
}

func (e *WelcomeError) Error() string {
	return fmt.Sprintf("joining from welcome: %v", e.Err)
}

func (e *WelcomeError) Unwrap() error {
	return e.Err
}

// unrecoverable errors indicate that the session can no longer make
// progress, for example because the backend cannot create group state. The
// node shuts down when it sees one.
type errUnrecoverable struct {
	err error
}

func unrecoverable(err error) error {
	return errUnrecoverable{
		err: err,
	}
}

// IsUnrecoverable reports whether err, or any error it wraps, is unrecoverable.
func IsUnrecoverable(err error) bool {
	var target errUnrecoverable
	return errors.As(err, &target)
}

func (e errUnrecoverable) Error() string {
	return fmt.Sprintf("unrecoverable error: %v", e.err)
}

func (e errUnrecoverable) Unwrap() error {
	return e.err
}
