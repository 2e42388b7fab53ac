package gka

import (
	"bytes"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cmwaters/parley/pkg/group"
	"github.com/cmwaters/parley/pkg/sign"
)

// Group is one member's view of the cryptographic state of a group. A Group is
// not safe for concurrent use.
type Group struct {
	provider *Provider
	config   Config

	id     []byte
	epoch  uint64
	secret []byte

	// leaves and roster are index aligned
	leaves  []LeafNode
	roster  *group.Roster
	self    uint32
	leader  uint32
	leafKey kem.PrivateKey

	// signer refuses to sign twice at the same (epoch, sequence)
	signer   sign.Signer
	sequence uint64
	windows  map[uint32]*window

	pending *StagedCommit
}

func (g *Group) ID() []byte {
	return g.id
}

func (g *Group) Epoch() uint64 {
	return g.epoch
}

func (g *Group) Size() int {
	return g.roster.Size()
}

// Self is the index of the local member.
func (g *Group) Self() uint32 {
	return g.self
}

// Leader is the index of the only member allowed to commit.
func (g *Group) Leader() uint32 {
	return g.leader
}

// Members returns the credentials of all members ordered by index.
func (g *Group) Members() []Credential {
	creds := make([]Credential, len(g.leaves))
	for i := range g.leaves {
		creds[i] = g.leaves[i].Credential
	}
	return creds
}

// Leaves returns the leaf nodes of all members ordered by index.
func (g *Group) Leaves() []LeafNode {
	return copyLeaves(g.leaves)
}

// HasPendingCommit reports whether a commit created by AddMembers awaits
// merging.
func (g *Group) HasPendingCommit() bool {
	return g.pending != nil
}

// AddMembers creates a commit admitting the owners of the key packages and a
// welcome for them. Only the leader may commit. The commit rotates our leaf
// key and carries a fresh commit secret to every existing member; it is left
// pending until MergePendingCommit.
func (g *Group) AddMembers(kps ...*KeyPackage) (*Message, *Welcome, error) {
	if g.pending != nil {
		return nil, nil, ErrPendingCommit
	}
	if g.self != g.leader {
		return nil, nil, ErrUnauthorizedCommit
	}
	if len(kps) == 0 {
		return nil, nil, fmt.Errorf("%w: no key packages", ErrInvalidKeyPackage)
	}

	adds := make([]KeyPackage, 0, len(kps))
	leaves := make([]LeafNode, 0, len(kps))
	for _, kp := range kps {
		if err := kp.Verify(); err != nil {
			return nil, nil, err
		}
		if kp.CipherSuite != g.config.CipherSuite {
			return nil, nil, fmt.Errorf("%w: %s", ErrCipherSuite, kp.CipherSuite)
		}
		if g.hasIdentity(kp.Credential.Identity, leaves) {
			return nil, nil, fmt.Errorf("%w: %X", ErrDuplicateMember, kp.Credential.Identity)
		}
		adds = append(adds, *kp)
		leaves = append(leaves, kp.leaf())
	}

	next := g.epoch + 1
	commitSecret, err := newSecret(g.provider.rand)
	if err != nil {
		return nil, nil, err
	}
	encryptionKey, leafKey, err := g.provider.newKeyPair()
	if err != nil {
		return nil, nil, err
	}
	path, err := g.newUpdatePath(commitSecret, encryptionKey, next)
	if err != nil {
		return nil, nil, err
	}
	nextSecret, err := nextEpochSecret(g.secret, commitSecret, g.id, next)
	if err != nil {
		return nil, nil, err
	}
	content, err := marshal(&commitContent{Adds: adds, Path: *path})
	if err != nil {
		return nil, nil, err
	}
	key, err := handshakeKey(g.secret, g.id, g.epoch)
	if err != nil {
		return nil, nil, err
	}
	commit, err := g.frame(ContentCommit, key, content)
	if err != nil {
		return nil, nil, err
	}

	members := copyLeaves(g.leaves)
	members[g.self].EncryptionKey = encryptionKey
	info := &GroupInfo{
		GroupID:     g.id,
		Epoch:       next,
		CipherSuite: g.config.CipherSuite,
		Members:     append(members, leaves...),
		Leader:      g.leader,
		EpochSecret: nextSecret,
		Signer:      g.self,
	}
	tbs, err := info.signBytes()
	if err != nil {
		return nil, nil, err
	}
	if info.Signature, err = g.sign(tbs); err != nil {
		return nil, nil, err
	}
	welcome, err := g.provider.newWelcome(info, adds)
	if err != nil {
		return nil, nil, err
	}

	g.pending = &StagedCommit{
		groupID:       g.id,
		epoch:         next,
		secret:        nextSecret,
		adds:          leaves,
		sender:        g.self,
		encryptionKey: encryptionKey,
		leafKey:       leafKey,
	}
	return commit, welcome, nil
}

// MergePendingCommit applies the commit created by the last AddMembers call.
func (g *Group) MergePendingCommit() error {
	if g.pending == nil {
		return ErrNoPendingCommit
	}
	return g.apply(g.pending)
}

// ClearPendingCommit discards the commit created by the last AddMembers call.
func (g *Group) ClearPendingCommit() {
	g.pending = nil
}

// CreateMessage encrypts an application message for the current epoch.
func (g *Group) CreateMessage(plaintext []byte) (*Message, error) {
	if g.pending != nil {
		return nil, ErrPendingCommit
	}
	key, err := applicationKey(g.secret, g.id, g.epoch, g.self)
	if err != nil {
		return nil, err
	}
	return g.frame(ContentApplication, key, pad(plaintext, g.config.PaddingSize))
}

// Propose creates a proposal to add the owner of kp. Receivers surface
// proposals without applying them.
func (g *Group) Propose(kp *KeyPackage) (*Message, error) {
	if err := kp.Verify(); err != nil {
		return nil, err
	}
	content, err := marshal(&Proposal{Add: kp})
	if err != nil {
		return nil, err
	}
	key, err := handshakeKey(g.secret, g.id, g.epoch)
	if err != nil {
		return nil, err
	}
	return g.frame(ContentProposal, key, content)
}

// ProcessMessage verifies and decrypts a message from another member. A
// commit is returned staged; the caller merges it with MergeStagedCommit.
func (g *Group) ProcessMessage(msg *Message) (*Processed, error) {
	if err := msg.validateBasic(); err != nil {
		return nil, err
	}
	if !bytes.Equal(msg.GroupID, g.id) {
		return nil, ErrWrongGroup
	}
	if msg.Epoch != g.epoch {
		return nil, &EpochError{Expected: g.epoch, Got: msg.Epoch}
	}
	if msg.Sender == g.self {
		return nil, ErrOwnMessage
	}
	member := g.roster.Member(uint(msg.Sender))
	if member == nil {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownSender, msg.Sender)
	}
	tbs, err := msg.signBytes()
	if err != nil {
		return nil, err
	}
	if !member.Verify(tbs, msg.Signature) {
		return nil, ErrInvalidSignature
	}

	w, ok := g.windows[msg.Sender]
	if !ok {
		w = newWindow()
		g.windows[msg.Sender] = w
	}
	if err := w.check(msg.Sequence, g.config.OutOfOrderTolerance, g.config.MaximumForwardDistance); err != nil {
		return nil, err
	}

	var key []byte
	if msg.ContentType == ContentApplication {
		key, err = applicationKey(g.secret, g.id, g.epoch, msg.Sender)
	} else {
		key, err = handshakeKey(g.secret, g.id, g.epoch)
	}
	if err != nil {
		return nil, err
	}
	aad, err := msg.aad()
	if err != nil {
		return nil, err
	}
	plaintext, err := open(key, msg.Ciphertext, aad)
	if err != nil {
		return nil, err
	}

	processed := &Processed{
		ContentType: msg.ContentType,
		Sender:      msg.Sender,
		SenderID:    member.ID(),
	}
	switch msg.ContentType {
	case ContentApplication:
		if processed.Data, err = unpad(plaintext); err != nil {
			return nil, err
		}
	case ContentProposal:
		var proposal Proposal
		if err := unmarshal(plaintext, &proposal); err != nil {
			return nil, fmt.Errorf("%w: proposal: %v", ErrMalformedMessage, err)
		}
		processed.Proposal = &proposal
	case ContentCommit:
		if processed.Commit, err = g.stageCommit(msg.Sender, plaintext); err != nil {
			return nil, err
		}
	}

	w.mark(msg.Sequence, g.config.OutOfOrderTolerance)
	return processed, nil
}

// MergeStagedCommit applies a commit returned by ProcessMessage, advancing
// the epoch.
func (g *Group) MergeStagedCommit(commit *StagedCommit) error {
	if !bytes.Equal(commit.groupID, g.id) {
		return ErrWrongGroup
	}
	if commit.epoch != g.epoch+1 {
		return &EpochError{Expected: g.epoch + 1, Got: commit.epoch}
	}
	return g.apply(commit)
}

func (g *Group) stageCommit(sender uint32, plaintext []byte) (*StagedCommit, error) {
	if sender != g.leader {
		return nil, fmt.Errorf("%w: sender %d", ErrUnauthorizedCommit, sender)
	}
	var content commitContent
	if err := unmarshal(plaintext, &content); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrMalformedMessage, err)
	}
	leaves := make([]LeafNode, 0, len(content.Adds))
	for i := range content.Adds {
		kp := &content.Adds[i]
		if err := kp.Verify(); err != nil {
			return nil, err
		}
		if g.hasIdentity(kp.Credential.Identity, leaves) {
			return nil, fmt.Errorf("%w: %X", ErrDuplicateMember, kp.Credential.Identity)
		}
		leaves = append(leaves, kp.leaf())
	}
	next := g.epoch + 1
	commitSecret, err := g.openUpdatePath(&content.Path, next)
	if err != nil {
		return nil, err
	}
	nextSecret, err := nextEpochSecret(g.secret, commitSecret, g.id, next)
	if err != nil {
		return nil, err
	}
	return &StagedCommit{
		groupID:       g.id,
		epoch:         next,
		secret:        nextSecret,
		adds:          leaves,
		sender:        sender,
		encryptionKey: content.Path.EncryptionKey,
	}, nil
}

// apply moves the group into the commit's epoch. The roster is only replaced
// once every new member has been decoded.
func (g *Group) apply(commit *StagedCommit) error {
	roster := g.roster.Copy()
	for i := range commit.adds {
		member, err := commit.adds[i].Credential.Member()
		if err != nil {
			return err
		}
		if _, err := roster.Add(member); err != nil {
			return fmt.Errorf("%w: %v", ErrDuplicateMember, err)
		}
	}
	leaves := copyLeaves(g.leaves)
	leaves[commit.sender].EncryptionKey = commit.encryptionKey
	g.leaves = append(leaves, commit.adds...)
	g.roster = roster
	if commit.leafKey != nil {
		g.leafKey = commit.leafKey
	}
	g.epoch = commit.epoch
	g.secret = commit.secret
	g.sequence = 0
	g.windows = make(map[uint32]*window)
	g.pending = nil
	return nil
}

// frame encrypts content under key and signs the result as the local member.
func (g *Group) frame(contentType ContentType, key, content []byte) (*Message, error) {
	msg := &Message{
		GroupID:     g.id,
		Epoch:       g.epoch,
		Sender:      g.self,
		ContentType: contentType,
		Sequence:    g.sequence,
	}
	aad, err := msg.aad()
	if err != nil {
		return nil, err
	}
	if msg.Ciphertext, err = seal(g.provider.rand, key, content, aad); err != nil {
		return nil, err
	}
	tbs, err := msg.signBytes()
	if err != nil {
		return nil, err
	}
	if msg.Signature, err = g.sign(tbs); err != nil {
		return nil, err
	}
	return msg, nil
}

// sign signs at the next sequence of the current epoch.
func (g *Group) sign(msg []byte) ([]byte, error) {
	sig, err := g.signer.Sign(sign.Watermark{g.epoch, g.sequence}, msg)
	if err != nil {
		return nil, err
	}
	g.sequence++
	return sig, nil
}

func (g *Group) hasIdentity(id []byte, extra []LeafNode) bool {
	if m, _ := g.roster.GetMemberByID(id); m != nil {
		return true
	}
	for _, l := range extra {
		if bytes.Equal(l.Credential.Identity, id) {
			return true
		}
	}
	return false
}
