package gka

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
)

// ContentType discriminates the content carried by a group message.
type ContentType uint8

const (
	ContentApplication ContentType = iota + 1
	ContentProposal
	ContentCommit
)

func (c ContentType) String() string {
	switch c {
	case ContentApplication:
		return "application"
	case ContentProposal:
		return "proposal"
	case ContentCommit:
		return "commit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func (c ContentType) valid() bool {
	return c >= ContentApplication && c <= ContentCommit
}

// Message is an encrypted and signed group message. Only ciphertext messages
// are ever produced; the group id, epoch, sender and sequence are visible so
// that a receiver can select the decryption key.
type Message struct {
	_ struct{} `cbor:",toarray"`

	GroupID     []byte
	Epoch       uint64
	Sender      uint32
	ContentType ContentType
	Sequence    uint64
	Ciphertext  []byte
	Signature   []byte
}

func (m *Message) MarshalBinary() ([]byte, error) {
	return marshal(m)
}

func (m *Message) UnmarshalBinary(data []byte) error {
	var decoded Message
	if err := unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := decoded.validateBasic(); err != nil {
		return err
	}
	*m = decoded
	return nil
}

func (m *Message) validateBasic() error {
	if len(m.GroupID) == 0 || len(m.GroupID) > MaxGroupIDSize {
		return fmt.Errorf("%w: group id of %d bytes", ErrMalformedMessage, len(m.GroupID))
	}
	if !m.ContentType.valid() {
		return fmt.Errorf("%w: %s", ErrUnknownContentType, m.ContentType)
	}
	if len(m.Ciphertext) == 0 {
		return fmt.Errorf("%w: empty ciphertext", ErrMalformedMessage)
	}
	if len(m.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrMalformedMessage)
	}
	return nil
}

// Proposal is a suggested change to the group. Proposals are decrypted and
// surfaced to the caller but never applied on their own.
type Proposal struct {
	_ struct{} `cbor:",toarray"`

	Add *KeyPackage
}

// commitContent is the plaintext of a commit message.
type commitContent struct {
	_ struct{} `cbor:",toarray"`

	Adds []KeyPackage
	Path UpdatePath
}

// StagedCommit is a verified commit that has not yet been merged into the
// group state.
type StagedCommit struct {
	groupID []byte
	epoch   uint64
	secret  []byte
	adds    []LeafNode
	sender  uint32

	// encryptionKey replaces the sender's leaf key. leafKey is its private
	// half and only set on the committer's own pending commit.
	encryptionKey []byte
	leafKey       kem.PrivateKey
}

// Epoch is the epoch the group enters once the commit is merged.
func (c *StagedCommit) Epoch() uint64 {
	return c.epoch
}

// Adds returns the credentials of the members the commit admits.
func (c *StagedCommit) Adds() []Credential {
	creds := make([]Credential, len(c.adds))
	for i := range c.adds {
		creds[i] = c.adds[i].Credential
	}
	return creds
}

func (c *StagedCommit) Sender() uint32 {
	return c.sender
}

// Processed is the result of successfully processing a group message. Which
// of Data, Commit and Proposal is set depends on ContentType.
type Processed struct {
	ContentType ContentType
	Sender      uint32
	SenderID    []byte

	Data     []byte
	Commit   *StagedCommit
	Proposal *Proposal
}
