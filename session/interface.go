package session

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// Backend is the group key agreement engine. Key packages, welcomes and
// group messages cross this boundary as encoded bytes; all cryptography and
// protocol structure lives behind it.
type Backend interface {
	// NewGroup creates a group whose only member is the local identity.
	NewGroup() (Group, error)
	// JoinGroup enters the group an encoded welcome describes. It fails when
	// the welcome is not addressed to one of the local key packages.
	JoinGroup(welcome []byte) (Group, error)
}

// Group is one member's handle on an engine group.
type Group interface {
	ID() []byte
	Epoch() uint64
	// Members returns the member identities in index order.
	Members() []peer.ID

	// AddMember admits the owner of an encoded key package. The commit is
	// merged before returning; on error the group is unchanged.
	AddMember(keyPackage []byte) (commit, welcome []byte, err error)
	CreateMessage(plaintext []byte) ([]byte, error)
	// ProcessMessage verifies and decrypts a group message. A commit is
	// merged before returning. On error the group is unchanged.
	ProcessMessage(msg []byte) (*Processed, error)
}

// Content is the kind of a processed group message.
type Content uint8

const (
	ContentApplication Content = iota + 1
	ContentProposal
	ContentCommit
)

// Processed is the engine's result for one group message. Plaintext is only
// set for application content.
type Processed struct {
	Content   Content
	Sender    peer.ID
	Epoch     uint64
	Plaintext []byte
}
