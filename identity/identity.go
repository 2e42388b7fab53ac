// Package identity manages the local participant's network identity and the
// join credentials (key packages) it publishes.
package identity

import (
	"fmt"
	"sync"

	"github.com/cmwaters/parley/pkg/gka"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Provider is the part of the group key agreement backend that issues
// credentials and key packages.
type Provider interface {
	NewCredential(identity []byte, priv crypto.PrivKey) (*gka.Credential, error)
	NewKeyPackage(cred *gka.Credential, counter uint64) (*gka.KeyPackage, error)
}

var (
	_ Provider   = (*gka.Provider)(nil)
	_ gka.Issuer = (*Identity)(nil)
)

// Identity is created once at start up and never changes. The same private
// key identifies the peer on the network and signs group messages.
type Identity struct {
	priv       crypto.PrivKey
	id         peer.ID
	credential *gka.Credential
	provider   Provider

	mtx    sync.Mutex
	issued uint64
	// first is the key package minted on creation. It is handed out by the
	// first call to KeyPackage.
	first *gka.KeyPackage
}

// New generates an ed25519 network key and builds an identity from it.
func New(provider Provider) (*Identity, error) {
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, fmt.Errorf("generating network key: %w", err)
	}
	return FromKey(priv, provider)
}

// FromKey builds an identity from an existing network key. The credential is
// stored with the provider and a first key package is issued. Errors mean the
// process has no usable identity.
func FromKey(priv crypto.PrivKey, provider Provider) (*Identity, error) {
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("deriving peer id: %w", err)
	}
	cred, err := provider.NewCredential([]byte(id), priv)
	if err != nil {
		return nil, fmt.Errorf("creating credential: %w", err)
	}
	ident := &Identity{
		priv:       priv,
		id:         id,
		credential: cred,
		provider:   provider,
	}
	if ident.first, err = ident.issue(); err != nil {
		return nil, err
	}
	return ident, nil
}

// KeyPackage returns a key package that has not been handed out before. Each
// call after the first mints a new one with the next issuance counter.
func (i *Identity) KeyPackage() (*gka.KeyPackage, error) {
	i.mtx.Lock()
	defer i.mtx.Unlock()
	if i.first != nil {
		kp := i.first
		i.first = nil
		return kp, nil
	}
	return i.issueLocked()
}

func (i *Identity) issue() (*gka.KeyPackage, error) {
	i.mtx.Lock()
	defer i.mtx.Unlock()
	return i.issueLocked()
}

func (i *Identity) issueLocked() (*gka.KeyPackage, error) {
	kp, err := i.provider.NewKeyPackage(i.credential, i.issued+1)
	if err != nil {
		return nil, fmt.Errorf("issuing key package %d: %w", i.issued+1, err)
	}
	i.issued++
	return kp, nil
}

// Issued returns the number of key packages minted so far.
func (i *Identity) Issued() uint64 {
	i.mtx.Lock()
	defer i.mtx.Unlock()
	return i.issued
}

func (i *Identity) PeerID() peer.ID {
	return i.id
}

func (i *Identity) PrivKey() crypto.PrivKey {
	return i.priv
}

func (i *Identity) Credential() *gka.Credential {
	return i.credential
}
