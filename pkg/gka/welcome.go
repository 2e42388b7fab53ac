package gka

import (
	"bytes"
	"fmt"
)

const groupInfoSignLabel = "parley groupinfo"

// GroupInfo is everything a new member needs to reconstruct the group at the
// epoch it joins. It only ever travels encrypted inside a Welcome and is
// signed by the group leader.
type GroupInfo struct {
	_ struct{} `cbor:",toarray"`

	GroupID     []byte
	Epoch       uint64
	CipherSuite CipherSuite
	Members     []LeafNode
	Leader      uint32
	EpochSecret []byte
	Signer      uint32
	Signature   []byte
}

func (gi *GroupInfo) signBytes() ([]byte, error) {
	unsigned := *gi
	unsigned.Signature = nil
	data, err := marshal(&unsigned)
	if err != nil {
		return nil, err
	}
	return append([]byte(groupInfoSignLabel), data...), nil
}

// verify checks every member's credential is bound to its identity and that
// the group info was signed by the leader.
func (gi *GroupInfo) verify() error {
	if int(gi.Signer) >= len(gi.Members) {
		return fmt.Errorf("%w: signer %d out of range", ErrInvalidWelcome, gi.Signer)
	}
	if gi.Signer != gi.Leader {
		return fmt.Errorf("%w: signer %d is not the leader %d", ErrInvalidWelcome, gi.Signer, gi.Leader)
	}
	for i := range gi.Members {
		if err := gi.Members[i].validate(gi.CipherSuite); err != nil {
			return fmt.Errorf("%w: member %d: %w", ErrInvalidWelcome, i, err)
		}
	}
	member, err := gi.Members[gi.Signer].Credential.Member()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWelcome, err)
	}
	tbs, err := gi.signBytes()
	if err != nil {
		return err
	}
	if !member.Verify(tbs, gi.Signature) {
		return fmt.Errorf("%w: group info signature", ErrInvalidWelcome)
	}
	return nil
}

// EncryptedGroupSecrets carries the group info key sealed to the init key of
// one key package.
type EncryptedGroupSecrets struct {
	_ struct{} `cbor:",toarray"`

	KeyPackageRef KeyPackageRef
	Enc           []byte
	Ciphertext    []byte
}

// Welcome admits one or more new members into an existing group.
type Welcome struct {
	_ struct{} `cbor:",toarray"`

	Version            uint8
	CipherSuite        CipherSuite
	Secrets            []EncryptedGroupSecrets
	EncryptedGroupInfo []byte
}

func (w *Welcome) MarshalBinary() ([]byte, error) {
	return marshal(w)
}

func (w *Welcome) UnmarshalBinary(data []byte) error {
	var decoded Welcome
	if err := unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWelcome, err)
	}
	if decoded.Version != ProtocolVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidWelcome, decoded.Version)
	}
	if len(decoded.Secrets) == 0 || len(decoded.EncryptedGroupInfo) == 0 {
		return fmt.Errorf("%w: missing fields", ErrInvalidWelcome)
	}
	*w = decoded
	return nil
}

// Addresses reports whether the welcome carries secrets for ref.
func (w *Welcome) Addresses(ref KeyPackageRef) bool {
	for _, s := range w.Secrets {
		if bytes.Equal(s.KeyPackageRef, ref) {
			return true
		}
	}
	return false
}

// newWelcome seals info to each of the key packages.
func (p *Provider) newWelcome(info *GroupInfo, kps []KeyPackage) (*Welcome, error) {
	data, err := marshal(info)
	if err != nil {
		return nil, err
	}
	groupInfoKey, err := newSecret(p.rand)
	if err != nil {
		return nil, err
	}
	encryptedInfo, err := seal(p.rand, groupInfoKey, data, nil)
	if err != nil {
		return nil, err
	}

	suite := p.config.CipherSuite.hpke()
	secrets := make([]EncryptedGroupSecrets, 0, len(kps))
	for i := range kps {
		kp := &kps[i]
		ref, err := kp.Ref()
		if err != nil {
			return nil, err
		}
		pub, err := kp.initPublicKey()
		if err != nil {
			return nil, fmt.Errorf("%w: init key: %v", ErrInvalidKeyPackage, err)
		}
		sender, err := suite.NewSender(pub, []byte(welcomeLabel))
		if err != nil {
			return nil, err
		}
		enc, sealer, err := sender.Setup(p.rand)
		if err != nil {
			return nil, err
		}
		ct, err := sealer.Seal(groupInfoKey, ref)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, EncryptedGroupSecrets{
			KeyPackageRef: ref,
			Enc:           enc,
			Ciphertext:    ct,
		})
	}

	return &Welcome{
		Version:            ProtocolVersion,
		CipherSuite:        p.config.CipherSuite,
		Secrets:            secrets,
		EncryptedGroupInfo: encryptedInfo,
	}, nil
}

// openWelcome finds the secrets addressed to one of our key packages and
// decrypts the group info with them. The key package is consumed only once
// the group info has been decrypted and verified.
func (p *Provider) openWelcome(w *Welcome) (*GroupInfo, *KeyPackageBundle, error) {
	if w.Version != ProtocolVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidWelcome, w.Version)
	}
	if w.CipherSuite != p.config.CipherSuite {
		return nil, nil, fmt.Errorf("%w: %s", ErrCipherSuite, w.CipherSuite)
	}

	var (
		secrets *EncryptedGroupSecrets
		bundle  *KeyPackageBundle
	)
	for i := range w.Secrets {
		if b, ok := p.keys.KeyPackage(w.Secrets[i].KeyPackageRef); ok {
			secrets, bundle = &w.Secrets[i], b
			break
		}
	}
	if bundle == nil {
		return nil, nil, ErrNoKeyPackage
	}

	receiver, err := p.config.CipherSuite.hpke().NewReceiver(bundle.initKey, []byte(welcomeLabel))
	if err != nil {
		return nil, nil, err
	}
	opener, err := receiver.Setup(secrets.Enc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidWelcome, err)
	}
	groupInfoKey, err := opener.Open(secrets.Ciphertext, secrets.KeyPackageRef)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening group secrets: %v", ErrInvalidWelcome, err)
	}
	data, err := open(groupInfoKey, w.EncryptedGroupInfo, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening group info: %v", ErrInvalidWelcome, err)
	}
	var info GroupInfo
	if err := unmarshal(data, &info); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidWelcome, err)
	}
	if info.CipherSuite != p.config.CipherSuite {
		return nil, nil, fmt.Errorf("%w: %s", ErrCipherSuite, info.CipherSuite)
	}
	if len(info.GroupID) == 0 || len(info.GroupID) > MaxGroupIDSize || len(info.EpochSecret) != secretSize {
		return nil, nil, fmt.Errorf("%w: malformed group info", ErrInvalidWelcome)
	}
	if err := info.verify(); err != nil {
		return nil, nil, err
	}

	p.keys.TakeKeyPackage(secrets.KeyPackageRef)
	return &info, bundle, nil
}
