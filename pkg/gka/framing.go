package gka

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// MaxGroupIDSize indicates the maximum length in bytes of a group id.
	MaxGroupIDSize = math.MaxUint8

	contentLabel = "parley content"
)

// encodeContentToSign encodes the framed content a sender signs over. With a
// nil ciphertext the same encoding is used as the AEAD additional data.
//
// The format is:
// label
// 1 byte content type
// 8 bytes epoch
// 4 bytes sender index
// 8 bytes sequence
// up to 255 bytes length prefixed group id (single byte length)
// 4 byte length prefixed ciphertext
func encodeContentToSign(
	contentType ContentType,
	epoch uint64,
	sender uint32,
	sequence uint64,
	groupID []byte,
	ciphertext []byte,
) ([]byte, error) {
	if len(groupID) > MaxGroupIDSize {
		return nil, fmt.Errorf("group id can not be longer than %d bytes", MaxGroupIDSize)
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(contentLabel)+26+len(groupID)+len(ciphertext)))
	buf.WriteString(contentLabel)
	buf.WriteByte(byte(contentType))
	_ = binary.Write(buf, binary.BigEndian, epoch)
	_ = binary.Write(buf, binary.BigEndian, sender)
	_ = binary.Write(buf, binary.BigEndian, sequence)
	buf.WriteByte(byte(len(groupID)))
	buf.Write(groupID)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(ciphertext)))
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

func (m *Message) signBytes() ([]byte, error) {
	return encodeContentToSign(m.ContentType, m.Epoch, m.Sender, m.Sequence, m.GroupID, m.Ciphertext)
}

func (m *Message) aad() ([]byte, error) {
	return encodeContentToSign(m.ContentType, m.Epoch, m.Sender, m.Sequence, m.GroupID, nil)
}
