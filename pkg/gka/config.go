package gka

import (
	"errors"
	"fmt"
)

// Config is the set of group parameters. All members of a group are expected
// to use the same values.
type Config struct {
	// CipherSuite determines the KEM, AEAD and signature scheme used for
	// key packages, welcomes and group messages.
	CipherSuite CipherSuite

	// PaddingSize rounds application plaintexts up to a multiple of this
	// many bytes before encryption so that ciphertext length leaks less
	// about the message. Values below 2 disable padding.
	PaddingSize int

	// OutOfOrderTolerance is how far behind the highest sequence seen from
	// a sender a message may arrive and still be accepted.
	OutOfOrderTolerance uint64

	// MaximumForwardDistance is how far ahead of the highest sequence seen
	// from a sender a message may be. Anything further is rejected.
	MaximumForwardDistance uint64
}

const (
	DefaultPaddingSize            = 16
	DefaultOutOfOrderTolerance    = 20
	DefaultMaximumForwardDistance = 1000
)

func DefaultConfig() Config {
	return Config{
		CipherSuite:            DefaultCipherSuite,
		PaddingSize:            DefaultPaddingSize,
		OutOfOrderTolerance:    DefaultOutOfOrderTolerance,
		MaximumForwardDistance: DefaultMaximumForwardDistance,
	}
}

func (c Config) Validate() error {
	if !c.CipherSuite.Supported() {
		return fmt.Errorf("%w: %s", ErrCipherSuite, c.CipherSuite)
	}
	if c.PaddingSize < 0 {
		return fmt.Errorf("padding size must not be negative, got %d", c.PaddingSize)
	}
	if c.MaximumForwardDistance == 0 {
		return errors.New("maximum forward distance must be positive")
	}
	return nil
}
