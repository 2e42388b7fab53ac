package gka

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cmwaters/parley/pkg/group"
	"github.com/cmwaters/parley/pkg/sign"
	"github.com/libp2p/go-libp2p/core/crypto"
)

// GroupIDSize is the length of randomly generated group ids.
const GroupIDSize = 16

// Provider creates credentials, key packages and groups under one Config and
// keeps their private material in its KeyStore.
type Provider struct {
	config Config
	keys   *KeyStore
	rand   io.Reader
}

type ProviderOption func(*Provider)

// WithRandom replaces the source of randomness. Intended for tests.
func WithRandom(r io.Reader) ProviderOption {
	return func(p *Provider) {
		p.rand = r
	}
}

func NewProvider(cfg Config, opts ...ProviderOption) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		config: cfg,
		keys:   NewKeyStore(),
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Config() Config {
	return p.config
}

func (p *Provider) KeyStore() *KeyStore {
	return p.keys
}

// NewCredential binds identity to the public half of priv and stores priv so
// that key packages and groups can later sign with it. identity must be the
// peer ID of priv.
func (p *Provider) NewCredential(identity []byte, priv crypto.PrivKey) (*Credential, error) {
	if len(identity) == 0 {
		return nil, fmt.Errorf("%w: empty identity", ErrNoCredential)
	}
	pub, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return nil, fmt.Errorf("marshalling signature key: %w", err)
	}
	cred := &Credential{
		Identity:     identity,
		SignatureKey: pub,
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if err := p.keys.StoreCredential(cred, priv); err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}
	return cred, nil
}

// NewKeyPackage generates fresh init and encryption key pairs and signs a key
// package for cred. counter is recorded in the key package so that every
// issuance is distinct. The private keys stay in the key store until a welcome
// or NewGroup consumes them.
func (p *Provider) NewKeyPackage(cred *Credential, counter uint64) (*KeyPackage, error) {
	priv, ok := p.keys.ReadCredential(cred.SignatureKey)
	if !ok {
		return nil, ErrNoCredential
	}
	initKey, initPriv, err := p.newKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating init key: %w", err)
	}
	encryptionKey, encryptionPriv, err := p.newKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	kp := &KeyPackage{
		Version:       ProtocolVersion,
		CipherSuite:   p.config.CipherSuite,
		InitKey:       initKey,
		EncryptionKey: encryptionKey,
		Credential:    *cred,
		Counter:       counter,
	}
	tbs, err := kp.signBytes()
	if err != nil {
		return nil, err
	}
	if kp.Signature, err = priv.Sign(tbs); err != nil {
		return nil, fmt.Errorf("signing key package: %w", err)
	}
	ref, err := kp.Ref()
	if err != nil {
		return nil, err
	}
	p.keys.StoreKeyPackage(ref, &KeyPackageBundle{
		KeyPackage:    kp,
		initKey:       initPriv,
		encryptionKey: encryptionPriv,
	})
	return kp, nil
}

// newKeyPair derives an HPKE key pair from the provider's randomness and
// returns the marshalled public key.
func (p *Provider) newKeyPair() ([]byte, kem.PrivateKey, error) {
	scheme := p.config.CipherSuite.kem()
	seed := make([]byte, scheme.SeedSize())
	if _, err := io.ReadFull(p.rand, seed); err != nil {
		return nil, nil, err
	}
	pub, priv := scheme.DeriveKeyPair(seed)
	data, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return data, priv, nil
}

// NewGroup creates a group with the owner of kp as its only member and
// leader. The key package is consumed.
func (p *Provider) NewGroup(kp *KeyPackage) (*Group, error) {
	if err := kp.Verify(); err != nil {
		return nil, err
	}
	ref, err := kp.Ref()
	if err != nil {
		return nil, err
	}
	bundle, ok := p.keys.TakeKeyPackage(ref)
	if !ok {
		return nil, ErrNoKeyPackage
	}
	id := make([]byte, GroupIDSize)
	if _, err := io.ReadFull(p.rand, id); err != nil {
		return nil, fmt.Errorf("generating group id: %w", err)
	}
	secret, err := newSecret(p.rand)
	if err != nil {
		return nil, err
	}
	return p.newGroup(id, 0, secret, []LeafNode{kp.leaf()}, 0, 0, bundle.encryptionKey)
}

// NewGroupFromWelcome joins the group described by w using one of our stored
// key packages.
func (p *Provider) NewGroupFromWelcome(w *Welcome) (*Group, error) {
	info, bundle, err := p.openWelcome(w)
	if err != nil {
		return nil, err
	}
	self := -1
	own := bundle.KeyPackage.leaf()
	for i := range info.Members {
		if info.Members[i].equal(own) {
			self = i
			break
		}
	}
	if self < 0 {
		return nil, ErrNotInGroup
	}
	return p.newGroup(info.GroupID, info.Epoch, info.EpochSecret, info.Members, uint32(self), info.Leader, bundle.encryptionKey)
}

func (p *Provider) newGroup(
	id []byte,
	epoch uint64,
	secret []byte,
	leaves []LeafNode,
	self, leader uint32,
	leafKey kem.PrivateKey,
) (*Group, error) {
	if int(leader) >= len(leaves) {
		return nil, fmt.Errorf("%w: leader %d out of range", ErrInvalidWelcome, leader)
	}
	members := make([]group.Member, len(leaves))
	for i := range leaves {
		if err := leaves[i].validate(p.config.CipherSuite); err != nil {
			return nil, fmt.Errorf("%w: member %d: %w", ErrInvalidWelcome, i, err)
		}
		m, err := leaves[i].Credential.Member()
		if err != nil {
			return nil, fmt.Errorf("%w: member %d: %v", ErrInvalidWelcome, i, err)
		}
		members[i] = m
	}
	priv, ok := p.keys.ReadCredential(leaves[self].Credential.SignatureKey)
	if !ok {
		return nil, ErrNoCredential
	}
	signer, err := sign.NewKeySigner(priv)
	if err != nil {
		return nil, err
	}
	roster, err := group.NewRoster(members...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateMember, err)
	}
	return &Group{
		provider:    p,
		config:      p.config,
		id:          id,
		epoch:       epoch,
		secret:      secret,
		leaves:      copyLeaves(leaves),
		roster:      roster,
		self:        self,
		leader:      leader,
		leafKey:     leafKey,
		signer:      signer,
		windows:     make(map[uint32]*window),
	}, nil
}
