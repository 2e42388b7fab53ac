package sign

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
)

var _ Signer = (*KeySigner)(nil)

// KeySigner signs with a libp2p private key held in memory. It is safe for
// concurrent use.
type KeySigner struct {
	mtx   sync.Mutex
	priv  crypto.PrivKey
	id    []byte
	level Watermark
}

// NewKeySigner creates a signer whose ID is the marshalled public key.
func NewKeySigner(priv crypto.PrivKey) (*KeySigner, error) {
	id, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return nil, err
	}
	return &KeySigner{
		priv: priv,
		id:   id,
	}, nil
}

func (s *KeySigner) Sign(level Watermark, msg []byte) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !level.Greater(s.level) {
		return nil, ErrAlreadySigned(s.level)
	}
	sig, err := s.priv.Sign(msg)
	if err != nil {
		return nil, err
	}
	s.level = level
	return sig, nil
}

func (s *KeySigner) ID() []byte {
	return s.id
}

func (s *KeySigner) PublicKey() crypto.PubKey {
	return s.priv.GetPublic()
}

func (s *KeySigner) Level() Watermark {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.level
}
