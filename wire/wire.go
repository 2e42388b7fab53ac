// Package wire frames every protocol artifact that leaves the process. A frame
// is a version byte, a kind byte and the encoded payload:
//
//	[version][kind][payload...]
//
// The kind makes classification a constant time lookup. Bytes that do not
// carry a known version and kind, or whose payload does not decode, are
// classified as unrecognized.
package wire

import (
	"errors"
	"fmt"

	"github.com/cmwaters/parley/pkg/gka"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Version is the current frame version.
const Version uint8 = 1

const headerSize = 2

// Kind is the discriminant of a frame. The numeric order follows the order in
// which peers historically attempted to parse untagged payloads.
type Kind uint8

const (
	KindUnrecognized Kind = iota
	KindKeyPackage
	KindControl
	KindWelcome
)

func (k Kind) String() string {
	switch k {
	case KindKeyPackage:
		return "key_package"
	case KindControl:
		return "control"
	case KindWelcome:
		return "welcome"
	default:
		return "unrecognized"
	}
}

var (
	ErrShortFrame     = errors.New("frame is shorter than its header")
	ErrUnknownVersion = errors.New("unknown frame version")
	ErrUnknownKind    = errors.New("unknown frame kind")
)

// Message is a classified frame. Exactly one of KeyPackage, Control and
// Welcome is set unless Kind is KindUnrecognized, in which case Raw holds the
// original bytes and Err the reason. Payload is the encoded object without
// the frame header, as handed to the session.
type Message struct {
	From peer.ID
	Kind Kind

	KeyPackage *gka.KeyPackage
	Control    *gka.Message
	Welcome    *gka.Welcome
	Payload    []byte

	Raw []byte
	Err error
}

// Classify decodes data received from a peer.
func Classify(from peer.ID, data []byte) Message {
	msg := Message{From: from}
	kind, payload, err := split(data)
	if err != nil {
		return unrecognized(msg, data, err)
	}

	switch kind {
	case KindKeyPackage:
		var kp gka.KeyPackage
		if err := kp.UnmarshalBinary(payload); err != nil {
			return unrecognized(msg, data, err)
		}
		msg.KeyPackage = &kp
	case KindControl:
		var control gka.Message
		if err := control.UnmarshalBinary(payload); err != nil {
			return unrecognized(msg, data, err)
		}
		msg.Control = &control
	case KindWelcome:
		var welcome gka.Welcome
		if err := welcome.UnmarshalBinary(payload); err != nil {
			return unrecognized(msg, data, err)
		}
		msg.Welcome = &welcome
	}
	msg.Kind = kind
	msg.Payload = payload
	return msg
}

func unrecognized(msg Message, data []byte, err error) Message {
	msg.Kind = KindUnrecognized
	msg.Raw = data
	msg.Err = err
	return msg
}

func split(data []byte) (Kind, []byte, error) {
	if len(data) < headerSize {
		return KindUnrecognized, nil, ErrShortFrame
	}
	if data[0] != Version {
		return KindUnrecognized, nil, fmt.Errorf("%w: %d", ErrUnknownVersion, data[0])
	}
	kind := Kind(data[1])
	switch kind {
	case KindKeyPackage, KindControl, KindWelcome:
		return kind, data[headerSize:], nil
	default:
		return KindUnrecognized, nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[1])
	}
}

func frame(kind Kind, payload []byte) []byte {
	out := make([]byte, headerSize, headerSize+len(payload))
	out[0] = Version
	out[1] = byte(kind)
	return append(out, payload...)
}

func EncodeKeyPackage(kp *gka.KeyPackage) ([]byte, error) {
	payload, err := kp.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding key package: %w", err)
	}
	return frame(KindKeyPackage, payload), nil
}

// EncodeControl frames an encoded group message.
func EncodeControl(msg []byte) []byte {
	return frame(KindControl, msg)
}

// EncodeWelcome frames an encoded welcome.
func EncodeWelcome(welcome []byte) []byte {
	return frame(KindWelcome, welcome)
}
