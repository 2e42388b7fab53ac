package group

import (
	"github.com/libp2p/go-libp2p/core/crypto"
)

var _ Member = (*KeyMember)(nil)

// KeyMember is a member whose signatures are verified with a libp2p public key.
type KeyMember struct {
	id     []byte
	pubKey crypto.PubKey
}

func NewKeyMember(id []byte, pubKey crypto.PubKey) *KeyMember {
	return &KeyMember{
		id:     id,
		pubKey: pubKey,
	}
}

func (m *KeyMember) ID() []byte {
	return m.id
}

func (m *KeyMember) PublicKey() crypto.PubKey {
	return m.pubKey
}

func (m *KeyMember) Verify(msg, sig []byte) bool {
	if m.pubKey == nil || len(sig) == 0 {
		return false
	}
	ok, err := m.pubKey.Verify(msg, sig)
	return err == nil && ok
}
