package gka

import (
	"bytes"
	"fmt"

	"github.com/cloudflare/circl/kem"
)

// LeafNode is a member's slot in the group. EncryptionKey is the HPKE key
// that commit secrets for the member are sealed to. It starts as the
// encryption key of the member's key package and is replaced whenever the
// member commits.
type LeafNode struct {
	_ struct{} `cbor:",toarray"`

	Credential    Credential
	EncryptionKey []byte
}

func (l LeafNode) validate(suite CipherSuite) error {
	if err := l.Credential.Validate(); err != nil {
		return err
	}
	if _, err := l.encryptionPublicKey(suite); err != nil {
		return fmt.Errorf("%w: encryption key: %v", ErrInvalidKeyPackage, err)
	}
	return nil
}

func (l LeafNode) encryptionPublicKey(suite CipherSuite) (kem.PublicKey, error) {
	return suite.kem().UnmarshalBinaryPublicKey(l.EncryptionKey)
}

func (l LeafNode) equal(other LeafNode) bool {
	return l.Credential.Equal(&other.Credential) &&
		bytes.Equal(l.EncryptionKey, other.EncryptionKey)
}

func copyLeaves(leaves []LeafNode) []LeafNode {
	return append([]LeafNode(nil), leaves...)
}
