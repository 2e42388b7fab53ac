package gka_test

import (
	"testing"

	"github.com/cmwaters/parley/pkg/gka"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

type member struct {
	provider *gka.Provider
	cred     *gka.Credential
	issued   uint64
}

func newMember(t *testing.T) *member {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)
	provider, err := gka.NewProvider(gka.DefaultConfig())
	require.NoError(t, err)
	cred, err := provider.NewCredential([]byte(id), priv)
	require.NoError(t, err)
	return &member{provider: provider, cred: cred}
}

func (m *member) keyPackage(t *testing.T) *gka.KeyPackage {
	t.Helper()
	m.issued++
	kp, err := m.provider.NewKeyPackage(m.cred, m.issued)
	require.NoError(t, err)
	return kp
}

// setupPair returns a leader group and a joined group at epoch 1.
func setupPair(t *testing.T) (*gka.Group, *gka.Group) {
	t.Helper()
	alice, bob := newMember(t), newMember(t)

	groupA, err := alice.provider.NewGroup(alice.keyPackage(t))
	require.NoError(t, err)
	_, welcome, err := groupA.AddMembers(bob.keyPackage(t))
	require.NoError(t, err)
	require.NoError(t, groupA.MergePendingCommit())

	groupB, err := bob.provider.NewGroupFromWelcome(welcome)
	require.NoError(t, err)
	return groupA, groupB
}

func TestKeyPackageRoundTrip(t *testing.T) {
	m := newMember(t)
	kp := m.keyPackage(t)
	require.NoError(t, kp.Verify())

	data, err := kp.MarshalBinary()
	require.NoError(t, err)
	var decoded gka.KeyPackage
	require.NoError(t, decoded.UnmarshalBinary(data))
	require.NoError(t, decoded.Verify())

	refA, err := kp.Ref()
	require.NoError(t, err)
	refB, err := decoded.Ref()
	require.NoError(t, err)
	require.Equal(t, refA, refB)
}

func TestKeyPackagesAreDistinct(t *testing.T) {
	m := newMember(t)
	kp1, kp2 := m.keyPackage(t), m.keyPackage(t)
	ref1, err := kp1.Ref()
	require.NoError(t, err)
	ref2, err := kp2.Ref()
	require.NoError(t, err)
	require.NotEqual(t, ref1, ref2)
	require.NotEqual(t, kp1.InitKey, kp2.InitKey)
	require.Equal(t, 2, m.provider.KeyStore().KeyPackages())
}

func TestKeyPackageTampered(t *testing.T) {
	m := newMember(t)
	kp := m.keyPackage(t)
	kp.Counter++
	require.ErrorIs(t, kp.Verify(), gka.ErrInvalidKeyPackage)
}

func TestWelcomeAndMessages(t *testing.T) {
	groupA, groupB := setupPair(t)
	require.Equal(t, uint64(1), groupA.Epoch())
	require.Equal(t, uint64(1), groupB.Epoch())
	require.Equal(t, groupA.ID(), groupB.ID())
	require.Equal(t, 2, groupB.Size())
	require.Equal(t, uint32(1), groupB.Self())

	msg, err := groupB.CreateMessage([]byte("hello"))
	require.NoError(t, err)
	data, err := msg.MarshalBinary()
	require.NoError(t, err)

	var decoded gka.Message
	require.NoError(t, decoded.UnmarshalBinary(data))
	processed, err := groupA.ProcessMessage(&decoded)
	require.NoError(t, err)
	require.Equal(t, gka.ContentApplication, processed.ContentType)
	require.Equal(t, []byte("hello"), processed.Data)
	require.Equal(t, uint32(1), processed.Sender)

	reply, err := groupA.CreateMessage([]byte("hi bob"))
	require.NoError(t, err)
	processed, err = groupB.ProcessMessage(reply)
	require.NoError(t, err)
	require.Equal(t, []byte("hi bob"), processed.Data)
}

func TestCiphertextIsPadded(t *testing.T) {
	groupA, _ := setupPair(t)
	short, err := groupA.CreateMessage([]byte("a"))
	require.NoError(t, err)
	longer, err := groupA.CreateMessage([]byte("abcdefghij"))
	require.NoError(t, err)
	require.Equal(t, len(short.Ciphertext), len(longer.Ciphertext))
}

func TestMessageReplay(t *testing.T) {
	groupA, groupB := setupPair(t)
	msg, err := groupB.CreateMessage([]byte("once"))
	require.NoError(t, err)
	_, err = groupA.ProcessMessage(msg)
	require.NoError(t, err)
	_, err = groupA.ProcessMessage(msg)
	require.ErrorIs(t, err, gka.ErrReplay)
}

func TestOutOfOrderMessages(t *testing.T) {
	groupA, groupB := setupPair(t)
	first, err := groupB.CreateMessage([]byte("first"))
	require.NoError(t, err)
	second, err := groupB.CreateMessage([]byte("second"))
	require.NoError(t, err)

	processed, err := groupA.ProcessMessage(second)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), processed.Data)
	processed, err = groupA.ProcessMessage(first)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), processed.Data)
}

func TestSequenceIsSigned(t *testing.T) {
	groupA, groupB := setupPair(t)
	msg, err := groupB.CreateMessage([]byte("far"))
	require.NoError(t, err)
	msg.Sequence = gka.DefaultMaximumForwardDistance + 1
	_, err = groupA.ProcessMessage(msg)
	require.ErrorIs(t, err, gka.ErrInvalidSignature)
}

func TestTamperedCiphertext(t *testing.T) {
	groupA, groupB := setupPair(t)
	msg, err := groupB.CreateMessage([]byte("hello"))
	require.NoError(t, err)
	msg.Ciphertext[len(msg.Ciphertext)-1] ^= 0xff
	_, err = groupA.ProcessMessage(msg)
	require.ErrorIs(t, err, gka.ErrInvalidSignature)
}

func TestOwnMessageRejected(t *testing.T) {
	groupA, _ := setupPair(t)
	msg, err := groupA.CreateMessage([]byte("echo"))
	require.NoError(t, err)
	_, err = groupA.ProcessMessage(msg)
	require.ErrorIs(t, err, gka.ErrOwnMessage)
}

func TestCommitAdvancesExistingMembers(t *testing.T) {
	groupA, groupB := setupPair(t)
	carol := newMember(t)

	commit, welcome, err := groupA.AddMembers(carol.keyPackage(t))
	require.NoError(t, err)
	require.NoError(t, groupA.MergePendingCommit())
	require.Equal(t, uint64(2), groupA.Epoch())

	processed, err := groupB.ProcessMessage(commit)
	require.NoError(t, err)
	require.Equal(t, gka.ContentCommit, processed.ContentType)
	require.NotNil(t, processed.Commit)
	require.Len(t, processed.Commit.Adds(), 1)
	require.NoError(t, groupB.MergeStagedCommit(processed.Commit))
	require.Equal(t, uint64(2), groupB.Epoch())
	require.Equal(t, 3, groupB.Size())

	// a replayed commit is from an old epoch
	_, err = groupB.ProcessMessage(commit)
	var epochErr *gka.EpochError
	require.ErrorAs(t, err, &epochErr)
	require.ErrorIs(t, err, gka.ErrStaleEpoch)

	groupC, err := carol.provider.NewGroupFromWelcome(welcome)
	require.NoError(t, err)
	msg, err := groupC.CreateMessage([]byte("hi all"))
	require.NoError(t, err)
	for _, g := range []*gka.Group{groupA, groupB} {
		processed, err := g.ProcessMessage(msg)
		require.NoError(t, err)
		require.Equal(t, []byte("hi all"), processed.Data)
	}
}

func TestStagedCommitMergedTwice(t *testing.T) {
	groupA, groupB := setupPair(t)
	commit, _, err := groupA.AddMembers(newMember(t).keyPackage(t))
	require.NoError(t, err)
	processed, err := groupB.ProcessMessage(commit)
	require.NoError(t, err)
	require.NoError(t, groupB.MergeStagedCommit(processed.Commit))
	require.ErrorIs(t, groupB.MergeStagedCommit(processed.Commit), gka.ErrStaleEpoch)
	require.Equal(t, uint64(2), groupB.Epoch())
}

func TestWelcomeForSomeoneElse(t *testing.T) {
	alice, bob, carol := newMember(t), newMember(t), newMember(t)
	groupA, err := alice.provider.NewGroup(alice.keyPackage(t))
	require.NoError(t, err)
	_, welcome, err := groupA.AddMembers(bob.keyPackage(t))
	require.NoError(t, err)

	carol.keyPackage(t)
	_, err = carol.provider.NewGroupFromWelcome(welcome)
	require.ErrorIs(t, err, gka.ErrNoKeyPackage)
}

func TestKeyPackageConsumedByWelcome(t *testing.T) {
	alice, bob := newMember(t), newMember(t)
	groupA, err := alice.provider.NewGroup(alice.keyPackage(t))
	require.NoError(t, err)
	_, welcome, err := groupA.AddMembers(bob.keyPackage(t))
	require.NoError(t, err)

	_, err = bob.provider.NewGroupFromWelcome(welcome)
	require.NoError(t, err)
	_, err = bob.provider.NewGroupFromWelcome(welcome)
	require.ErrorIs(t, err, gka.ErrNoKeyPackage)
}

func TestWelcomeRoundTrip(t *testing.T) {
	alice, bob := newMember(t), newMember(t)
	groupA, err := alice.provider.NewGroup(alice.keyPackage(t))
	require.NoError(t, err)
	kp := bob.keyPackage(t)
	_, welcome, err := groupA.AddMembers(kp)
	require.NoError(t, err)

	data, err := welcome.MarshalBinary()
	require.NoError(t, err)
	var decoded gka.Welcome
	require.NoError(t, decoded.UnmarshalBinary(data))
	ref, err := kp.Ref()
	require.NoError(t, err)
	require.True(t, decoded.Addresses(ref))

	_, err = bob.provider.NewGroupFromWelcome(&decoded)
	require.NoError(t, err)
}

func TestAddDuplicateMember(t *testing.T) {
	groupA, _ := setupPair(t)
	alice := newMember(t)
	kp := alice.keyPackage(t)
	_, _, err := groupA.AddMembers(kp, kp)
	require.ErrorIs(t, err, gka.ErrDuplicateMember)
}

func TestPendingCommitBlocksSecondAdd(t *testing.T) {
	groupA, _ := setupPair(t)
	_, _, err := groupA.AddMembers(newMember(t).keyPackage(t))
	require.NoError(t, err)
	_, _, err = groupA.AddMembers(newMember(t).keyPackage(t))
	require.ErrorIs(t, err, gka.ErrPendingCommit)

	groupA.ClearPendingCommit()
	require.ErrorIs(t, groupA.MergePendingCommit(), gka.ErrNoPendingCommit)
}

func TestProposalIsSurfaced(t *testing.T) {
	groupA, groupB := setupPair(t)
	kp := newMember(t).keyPackage(t)
	proposal, err := groupB.Propose(kp)
	require.NoError(t, err)

	processed, err := groupA.ProcessMessage(proposal)
	require.NoError(t, err)
	require.Equal(t, gka.ContentProposal, processed.ContentType)
	require.NotNil(t, processed.Proposal)
	require.Equal(t, kp.Credential.Identity, processed.Proposal.Add.Credential.Identity)
	require.Equal(t, uint64(1), groupA.Epoch())
	require.Equal(t, 2, groupA.Size())
}

func TestWrongGroup(t *testing.T) {
	groupA, _ := setupPair(t)
	_, groupY := setupPair(t)
	msg, err := groupY.CreateMessage([]byte("stray"))
	require.NoError(t, err)
	_, err = groupA.ProcessMessage(msg)
	require.ErrorIs(t, err, gka.ErrWrongGroup)
}

func TestMalformedMessage(t *testing.T) {
	var msg gka.Message
	require.ErrorIs(t, msg.UnmarshalBinary([]byte{0x01, 0x02}), gka.ErrMalformedMessage)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, gka.DefaultConfig().Validate())

	cfg := gka.DefaultConfig()
	cfg.CipherSuite = 0x9999
	require.ErrorIs(t, cfg.Validate(), gka.ErrCipherSuite)

	_, err := gka.NewProvider(cfg)
	require.Error(t, err)
}

// spoofedKeyPackage signs a key package with the attacker's key while
// claiming the victim's identity.
func spoofedKeyPackage(t *testing.T, attacker, victim *member) *gka.KeyPackage {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	pub, err := crypto.MarshalPublicKey(priv.GetPublic())
	require.NoError(t, err)
	cred := &gka.Credential{Identity: victim.cred.Identity, SignatureKey: pub}
	require.NoError(t, attacker.provider.KeyStore().StoreCredential(cred, priv))
	kp, err := attacker.provider.NewKeyPackage(cred, 1)
	require.NoError(t, err)
	return kp
}

func TestNewCredentialRequiresMatchingIdentity(t *testing.T) {
	other := newMember(t)
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	provider, err := gka.NewProvider(gka.DefaultConfig())
	require.NoError(t, err)

	_, err = provider.NewCredential(other.cred.Identity, priv)
	require.ErrorIs(t, err, gka.ErrInvalidCredential)
	_, err = provider.NewCredential([]byte("not a peer id"), priv)
	require.ErrorIs(t, err, gka.ErrInvalidCredential)
}

func TestSpoofedKeyPackageRejected(t *testing.T) {
	alice, mallory := newMember(t), newMember(t)
	victim := newMember(t)
	kp := spoofedKeyPackage(t, mallory, victim)

	err := kp.Verify()
	require.ErrorIs(t, err, gka.ErrInvalidKeyPackage)
	require.ErrorIs(t, err, gka.ErrInvalidCredential)

	_, err = mallory.provider.NewGroup(kp)
	require.ErrorIs(t, err, gka.ErrInvalidCredential)

	groupA, err := alice.provider.NewGroup(alice.keyPackage(t))
	require.NoError(t, err)
	_, _, err = groupA.AddMembers(kp)
	require.ErrorIs(t, err, gka.ErrInvalidCredential)
	require.False(t, groupA.HasPendingCommit())
	require.Equal(t, 1, groupA.Size())
}

func TestOnlyLeaderCommits(t *testing.T) {
	groupA, groupB := setupPair(t)
	require.Equal(t, uint32(0), groupA.Leader())
	require.Equal(t, uint32(0), groupB.Leader())

	_, _, err := groupB.AddMembers(newMember(t).keyPackage(t))
	require.ErrorIs(t, err, gka.ErrUnauthorizedCommit)
	require.False(t, groupB.HasPendingCommit())
	require.Equal(t, uint64(1), groupB.Epoch())
}

func TestCommitRotatesLeaderLeaf(t *testing.T) {
	groupA, groupB := setupPair(t)
	before := groupA.Leaves()[0].EncryptionKey
	require.Equal(t, before, groupB.Leaves()[0].EncryptionKey)

	commit, _, err := groupA.AddMembers(newMember(t).keyPackage(t))
	require.NoError(t, err)
	require.NoError(t, groupA.MergePendingCommit())
	after := groupA.Leaves()[0].EncryptionKey
	require.NotEqual(t, before, after)

	processed, err := groupB.ProcessMessage(commit)
	require.NoError(t, err)
	require.NoError(t, groupB.MergeStagedCommit(processed.Commit))
	require.Equal(t, after, groupB.Leaves()[0].EncryptionKey)

	// the rotated leaf key still opens the next commit
	commit, _, err = groupA.AddMembers(newMember(t).keyPackage(t))
	require.NoError(t, err)
	require.NoError(t, groupA.MergePendingCommit())
	processed, err = groupB.ProcessMessage(commit)
	require.NoError(t, err)
	require.NoError(t, groupB.MergeStagedCommit(processed.Commit))
	require.Equal(t, groupA.Epoch(), groupB.Epoch())

	msg, err := groupA.CreateMessage([]byte("epoch three"))
	require.NoError(t, err)
	processed, err = groupB.ProcessMessage(msg)
	require.NoError(t, err)
	require.Equal(t, []byte("epoch three"), processed.Data)
}
