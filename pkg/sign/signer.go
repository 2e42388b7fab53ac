package sign

import (
	"fmt"
)

// Signer securely manages a member's credential key and signs the handshake
// and application messages it sends to the group.
//
// The signer should ensure that the member never signs twice at the same
// position. Positions are expressed as a Watermark, for group messages this
// is the epoch followed by a per epoch sequence number.
type Signer interface {
	// ID should return a unique identifier for the signer that can be used
	// to identify the member within the group. This must always return the same
	// value
	ID() []byte

	Sign(level Watermark, msg []byte) ([]byte, error)
}

type ErrAlreadySigned []uint64

func (e ErrAlreadySigned) Error() string {
	return fmt.Sprintf("already signed msg at mark %d", []uint64(e))
}

type Watermark []uint64

func (w Watermark) Greater(other Watermark) bool {
	for idx, v := range w {
		if idx >= len(other) {
			return true
		}
		if v > other[idx] {
			return true
		}
		if v < other[idx] {
			return false
		}
	}
	return false
}
