package gka

import (
	"errors"
	"fmt"
)

var (
	ErrCipherSuite        = errors.New("unsupported cipher suite")
	ErrInvalidKeyPackage  = errors.New("invalid key package")
	ErrInvalidCredential  = errors.New("credential identity does not match its signature key")
	ErrNoKeyPackage       = errors.New("no matching key package in key store")
	ErrNoCredential       = errors.New("no matching credential in key store")
	ErrInvalidWelcome     = errors.New("invalid welcome")
	ErrNotInGroup         = errors.New("welcome does not include our credential")
	ErrWrongGroup         = errors.New("message is for a different group")
	ErrUnknownSender      = errors.New("sender is not a member of the group")
	ErrOwnMessage         = errors.New("cannot process a message sent by ourselves")
	ErrInvalidSignature   = errors.New("invalid message signature")
	ErrDecryption         = errors.New("unable to decrypt message")
	ErrPadding            = errors.New("invalid plaintext padding")
	ErrReplay             = errors.New("message sequence already processed")
	ErrTooOld             = errors.New("message sequence outside the out of order tolerance")
	ErrTooDistant         = errors.New("message sequence exceeds the maximum forward distance")
	ErrDuplicateMember    = errors.New("member is already part of the group")
	ErrUnauthorizedCommit = errors.New("only the group leader may commit")
	ErrPendingCommit      = errors.New("group has a pending commit")
	ErrNoPendingCommit    = errors.New("group has no pending commit")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownContentType = errors.New("unknown content type")
)

// EpochError is returned when a message or commit does not belong to the
// group's current epoch. A replayed commit surfaces as an EpochError since
// applying the original advanced the epoch.
type EpochError struct {
	Expected uint64
	Got      uint64
}

func (e *EpochError) Error() string {
	return fmt.Sprintf("wrong epoch, expected %d, got %d", e.Expected, e.Got)
}

func (e *EpochError) Unwrap() error {
	return ErrStaleEpoch
}

var ErrStaleEpoch = errors.New("stale epoch")
