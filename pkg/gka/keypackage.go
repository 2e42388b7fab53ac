package gka

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem"
	mh "github.com/multiformats/go-multihash"
)

// ProtocolVersion is carried by key packages and welcomes. Peers reject
// objects of any other version.
const ProtocolVersion uint8 = 1

const keyPackageLabel = "parley keypackage"

// KeyPackage is a signed, publishable and single use offer to join a group.
// It carries the HPKE init key a welcome is sealed to, the encryption key that
// becomes the owner's leaf key once admitted and the credential of its owner. Counter is the owner's issuance counter, making every key package
// minted from the same credential distinct.
type KeyPackage struct {
	_ struct{} `cbor:",toarray"`

	Version       uint8
	CipherSuite   CipherSuite
	InitKey       []byte
	EncryptionKey []byte
	Credential    Credential
	Counter       uint64
	Signature     []byte
}

// KeyPackageBundle is a key package together with its private init and
// encryption keys. Bundles never leave the key store of the member that
// created them.
type KeyPackageBundle struct {
	KeyPackage    *KeyPackage
	initKey       kem.PrivateKey
	encryptionKey kem.PrivateKey
}

// KeyPackageRef is the SHA2-256 multihash of an encoded key package.
type KeyPackageRef []byte

func (r KeyPackageRef) String() string {
	return mh.Multihash(r).B58String()
}

func (kp *KeyPackage) MarshalBinary() ([]byte, error) {
	return marshal(kp)
}

func (kp *KeyPackage) UnmarshalBinary(data []byte) error {
	var decoded KeyPackage
	if err := unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyPackage, err)
	}
	if decoded.Version != ProtocolVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidKeyPackage, decoded.Version)
	}
	if len(decoded.InitKey) == 0 || len(decoded.EncryptionKey) == 0 ||
		len(decoded.Credential.Identity) == 0 || len(decoded.Signature) == 0 {
		return fmt.Errorf("%w: missing fields", ErrInvalidKeyPackage)
	}
	*kp = decoded
	return nil
}

// Ref returns the reference a welcome uses to address this key package.
func (kp *KeyPackage) Ref() (KeyPackageRef, error) {
	data, err := kp.MarshalBinary()
	if err != nil {
		return nil, err
	}
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return nil, err
	}
	return KeyPackageRef(hash), nil
}

// Verify checks the key package is well formed, that its credential identity
// is derived from the signature key and that it is signed by that key.
func (kp *KeyPackage) Verify() error {
	if kp.Version != ProtocolVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidKeyPackage, kp.Version)
	}
	if !kp.CipherSuite.Supported() {
		return fmt.Errorf("%w: %s", ErrCipherSuite, kp.CipherSuite)
	}
	if len(kp.Credential.Identity) == 0 {
		return fmt.Errorf("%w: empty identity", ErrInvalidKeyPackage)
	}
	if _, err := kp.CipherSuite.kem().UnmarshalBinaryPublicKey(kp.InitKey); err != nil {
		return fmt.Errorf("%w: init key: %v", ErrInvalidKeyPackage, err)
	}
	if _, err := kp.leaf().encryptionPublicKey(kp.CipherSuite); err != nil {
		return fmt.Errorf("%w: encryption key: %v", ErrInvalidKeyPackage, err)
	}
	if err := kp.Credential.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyPackage, err)
	}
	pub, err := kp.Credential.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyPackage, err)
	}
	tbs, err := kp.signBytes()
	if err != nil {
		return err
	}
	ok, err := pub.Verify(tbs, kp.Signature)
	if err != nil || !ok {
		return fmt.Errorf("%w: bad signature", ErrInvalidKeyPackage)
	}
	return nil
}

func (kp *KeyPackage) signBytes() ([]byte, error) {
	unsigned := *kp
	unsigned.Signature = nil
	data, err := marshal(&unsigned)
	if err != nil {
		return nil, err
	}
	return append([]byte(keyPackageLabel), data...), nil
}

func (kp *KeyPackage) initPublicKey() (kem.PublicKey, error) {
	if kp == nil {
		return nil, errors.New("nil key package")
	}
	return kp.CipherSuite.kem().UnmarshalBinaryPublicKey(kp.InitKey)
}

// leaf is the leaf node the owner occupies once admitted.
func (kp *KeyPackage) leaf() LeafNode {
	return LeafNode{
		Credential:    kp.Credential,
		EncryptionKey: kp.EncryptionKey,
	}
}
