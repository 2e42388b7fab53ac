package gka

import (
	"bytes"
	"fmt"

	"github.com/cmwaters/parley/pkg/group"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Credential binds an identity (the member's peer ID) to the public key the
// member signs group messages with.
type Credential struct {
	_ struct{} `cbor:",toarray"`

	Identity     []byte
	SignatureKey []byte
}

// PublicKey decodes the libp2p marshalled signature key.
func (c *Credential) PublicKey() (crypto.PubKey, error) {
	pub, err := crypto.UnmarshalPublicKey(c.SignatureKey)
	if err != nil {
		return nil, fmt.Errorf("decoding credential signature key: %w", err)
	}
	return pub, nil
}

// Validate checks that the identity is the peer ID derived from the signature
// key. A credential can therefore only be created by the holder of the
// identity's private key.
func (c *Credential) Validate() error {
	pub, err := c.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	id, err := peer.IDFromBytes(c.Identity)
	if err != nil {
		return fmt.Errorf("%w: identity is not a peer id: %v", ErrInvalidCredential, err)
	}
	if !id.MatchesPublicKey(pub) {
		return fmt.Errorf("%w: %s", ErrInvalidCredential, id)
	}
	return nil
}

// Member converts the credential into a roster member.
func (c *Credential) Member() (*group.KeyMember, error) {
	pub, err := c.PublicKey()
	if err != nil {
		return nil, err
	}
	return group.NewKeyMember(c.Identity, pub), nil
}

func (c *Credential) Equal(other *Credential) bool {
	return bytes.Equal(c.Identity, other.Identity) &&
		bytes.Equal(c.SignatureKey, other.SignatureKey)
}
