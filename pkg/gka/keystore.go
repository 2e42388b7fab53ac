package gka

import (
	"bytes"
	"errors"
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// KeyStore holds the private halves of credentials and key packages. Key
// packages are removed when they are used to join a group so that each one
// can be consumed at most once.
type KeyStore struct {
	credentialMtx sync.Mutex
	// credentials are indexed by the marshalled public signature key
	credentials map[string]crypto.PrivKey

	keyPackageMtx sync.Mutex
	// key package bundles are indexed by their reference
	keyPackages map[string]*KeyPackageBundle
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		credentials: make(map[string]crypto.PrivKey),
		keyPackages: make(map[string]*KeyPackageBundle),
	}
}

// StoreCredential stores the private key of a credential. The key must match
// the credential's signature key.
func (s *KeyStore) StoreCredential(cred *Credential, priv crypto.PrivKey) error {
	pub, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return err
	}
	if !bytes.Equal(pub, cred.SignatureKey) {
		return errors.New("private key does not match credential")
	}
	s.credentialMtx.Lock()
	defer s.credentialMtx.Unlock()
	s.credentials[string(cred.SignatureKey)] = priv
	return nil
}

func (s *KeyStore) ReadCredential(signatureKey []byte) (crypto.PrivKey, bool) {
	s.credentialMtx.Lock()
	defer s.credentialMtx.Unlock()
	priv, ok := s.credentials[string(signatureKey)]
	return priv, ok
}

func (s *KeyStore) StoreKeyPackage(ref KeyPackageRef, bundle *KeyPackageBundle) {
	s.keyPackageMtx.Lock()
	defer s.keyPackageMtx.Unlock()
	s.keyPackages[string(ref)] = bundle
}

func (s *KeyStore) HasKeyPackage(ref KeyPackageRef) bool {
	s.keyPackageMtx.Lock()
	defer s.keyPackageMtx.Unlock()
	_, ok := s.keyPackages[string(ref)]
	return ok
}

// TakeKeyPackage returns the bundle for ref and removes it from the store.
func (s *KeyStore) TakeKeyPackage(ref KeyPackageRef) (*KeyPackageBundle, bool) {
	s.keyPackageMtx.Lock()
	defer s.keyPackageMtx.Unlock()
	bundle, ok := s.keyPackages[string(ref)]
	if ok {
		delete(s.keyPackages, string(ref))
	}
	return bundle, ok
}

// KeyPackages returns the number of unused key packages.
func (s *KeyStore) KeyPackages() int {
	s.keyPackageMtx.Lock()
	defer s.keyPackageMtx.Unlock()
	return len(s.keyPackages)
}

// KeyPackage returns the bundle for ref without consuming it.
func (s *KeyStore) KeyPackage(ref KeyPackageRef) (*KeyPackageBundle, bool) {
	s.keyPackageMtx.Lock()
	defer s.keyPackageMtx.Unlock()
	bundle, ok := s.keyPackages[string(ref)]
	return bundle, ok
}
