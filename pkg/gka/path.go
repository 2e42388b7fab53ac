package gka

import (
	"fmt"
)

// UpdatePath carries a commit secret to the existing members of a group. The
// committer replaces its own leaf key with EncryptionKey and seals the
// commit secret once per other member to that member's current leaf key.
type UpdatePath struct {
	_ struct{} `cbor:",toarray"`

	EncryptionKey []byte
	Secrets       []PathSecret
}

// PathSecret is the commit secret sealed to the leaf key of Recipient.
type PathSecret struct {
	_ struct{} `cbor:",toarray"`

	Recipient  uint32
	Enc        []byte
	Ciphertext []byte
}

func pathAAD(groupID []byte, epoch uint64, recipient uint32) []byte {
	aad := append([]byte(nil), groupID...)
	aad = append(aad, uint64Bytes(epoch)...)
	return append(aad, uint32Bytes(recipient)...)
}

// newUpdatePath seals commitSecret to every member but ourselves for the
// transition into epoch next.
func (g *Group) newUpdatePath(commitSecret, encryptionKey []byte, next uint64) (*UpdatePath, error) {
	suite := g.config.CipherSuite.hpke()
	path := &UpdatePath{
		EncryptionKey: encryptionKey,
		Secrets:       make([]PathSecret, 0, len(g.leaves)-1),
	}
	for i := range g.leaves {
		recipient := uint32(i)
		if recipient == g.self {
			continue
		}
		pub, err := g.leaves[i].encryptionPublicKey(g.config.CipherSuite)
		if err != nil {
			return nil, fmt.Errorf("leaf %d encryption key: %w", i, err)
		}
		sender, err := suite.NewSender(pub, []byte(commitLabel))
		if err != nil {
			return nil, err
		}
		enc, sealer, err := sender.Setup(g.provider.rand)
		if err != nil {
			return nil, err
		}
		ct, err := sealer.Seal(commitSecret, pathAAD(g.id, next, recipient))
		if err != nil {
			return nil, err
		}
		path.Secrets = append(path.Secrets, PathSecret{
			Recipient:  recipient,
			Enc:        enc,
			Ciphertext: ct,
		})
	}
	return path, nil
}

// openUpdatePath recovers the commit secret sealed to our leaf key.
func (g *Group) openUpdatePath(path *UpdatePath, next uint64) ([]byte, error) {
	if _, err := g.config.CipherSuite.kem().UnmarshalBinaryPublicKey(path.EncryptionKey); err != nil {
		return nil, fmt.Errorf("%w: committer encryption key: %v", ErrMalformedMessage, err)
	}
	var secret *PathSecret
	for i := range path.Secrets {
		if path.Secrets[i].Recipient == g.self {
			secret = &path.Secrets[i]
			break
		}
	}
	if secret == nil {
		return nil, fmt.Errorf("%w: no path secret for member %d", ErrMalformedMessage, g.self)
	}
	receiver, err := g.config.CipherSuite.hpke().NewReceiver(g.leafKey, []byte(commitLabel))
	if err != nil {
		return nil, err
	}
	opener, err := receiver.Setup(secret.Enc)
	if err != nil {
		return nil, fmt.Errorf("%w: path secret: %v", ErrDecryption, err)
	}
	commitSecret, err := opener.Open(secret.Ciphertext, pathAAD(g.id, next, g.self))
	if err != nil {
		return nil, fmt.Errorf("%w: path secret: %v", ErrDecryption, err)
	}
	if len(commitSecret) != secretSize {
		return nil, fmt.Errorf("%w: commit secret size", ErrMalformedMessage)
	}
	return commitSecret, nil
}
