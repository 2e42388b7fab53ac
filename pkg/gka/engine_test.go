package gka_test

import (
	"testing"

	"github.com/cmwaters/parley/pkg/gka"
	"github.com/cmwaters/parley/session"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

type issuerFunc func() (*gka.KeyPackage, error)

func (f issuerFunc) KeyPackage() (*gka.KeyPackage, error) {
	return f()
}

func (m *member) engine() *gka.Engine {
	return gka.NewEngine(m.provider, issuerFunc(func() (*gka.KeyPackage, error) {
		m.issued++
		return m.provider.NewKeyPackage(m.cred, m.issued)
	}))
}

func (m *member) encodedKeyPackage(t *testing.T) []byte {
	t.Helper()
	data, err := m.keyPackage(t).MarshalBinary()
	require.NoError(t, err)
	return data
}

func TestEngineRoundTrip(t *testing.T) {
	alice, bob, carol := newMember(t), newMember(t), newMember(t)

	groupA, err := alice.engine().NewGroup()
	require.NoError(t, err)
	require.Equal(t, []peer.ID{peer.ID(alice.cred.Identity)}, groupA.Members())

	_, welcome, err := groupA.AddMember(bob.encodedKeyPackage(t))
	require.NoError(t, err)
	require.Equal(t, uint64(1), groupA.Epoch())

	groupB, err := bob.engine().JoinGroup(welcome)
	require.NoError(t, err)
	require.Equal(t, groupA.ID(), groupB.ID())
	require.Equal(t, groupA.Members(), groupB.Members())

	msg, err := groupB.CreateMessage([]byte("hello"))
	require.NoError(t, err)
	processed, err := groupA.ProcessMessage(msg)
	require.NoError(t, err)
	require.Equal(t, session.ContentApplication, processed.Content)
	require.Equal(t, peer.ID(bob.cred.Identity), processed.Sender)
	require.Equal(t, uint64(1), processed.Epoch)
	require.Equal(t, []byte("hello"), processed.Plaintext)

	commit, _, err := groupA.AddMember(carol.encodedKeyPackage(t))
	require.NoError(t, err)
	processed, err = groupB.ProcessMessage(commit)
	require.NoError(t, err)
	require.Equal(t, session.ContentCommit, processed.Content)
	require.Nil(t, processed.Plaintext)
	require.Equal(t, uint64(2), groupB.Epoch())
	require.Len(t, groupB.Members(), 3)
}

func TestEngineRejectsMalformedInput(t *testing.T) {
	alice := newMember(t)
	engine := alice.engine()

	_, err := engine.JoinGroup([]byte{0xff})
	require.ErrorIs(t, err, gka.ErrInvalidWelcome)

	g, err := engine.NewGroup()
	require.NoError(t, err)
	_, _, err = g.AddMember([]byte{0xff})
	require.ErrorIs(t, err, gka.ErrInvalidKeyPackage)
	_, err = g.ProcessMessage([]byte{0xff})
	require.ErrorIs(t, err, gka.ErrMalformedMessage)
	require.Equal(t, uint64(0), g.Epoch())
	require.Len(t, g.Members(), 1)
}
