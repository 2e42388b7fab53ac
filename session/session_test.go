package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmwaters/parley/identity"
	"github.com/cmwaters/parley/pkg/gka"
	"github.com/cmwaters/parley/session"
	"github.com/stretchr/testify/require"
)

type participant struct {
	provider *gka.Provider
	ident    *identity.Identity
	session  *session.Session
}

func newParticipant(t *testing.T) *participant {
	t.Helper()
	provider, err := gka.NewProvider(gka.DefaultConfig())
	require.NoError(t, err)
	ident, err := identity.New(provider)
	require.NoError(t, err)
	return &participant{
		provider: provider,
		ident:    ident,
		session:  session.New(gka.NewEngine(provider, ident)),
	}
}

func (p *participant) keyPackage(t *testing.T) []byte {
	t.Helper()
	kp, err := p.ident.KeyPackage()
	require.NoError(t, err)
	data, err := kp.MarshalBinary()
	require.NoError(t, err)
	return data
}

// admit has leader add joiner and returns the commit sent to existing
// members.
func admit(t *testing.T, leader, joiner *participant) []byte {
	t.Helper()
	commit, welcome, err := leader.session.AddMember(joiner.keyPackage(t))
	require.NoError(t, err)
	require.NoError(t, joiner.session.Join(welcome))
	return commit
}

func TestCreateAndSendHello(t *testing.T) {
	a, b := newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	require.True(t, a.session.IsLeader())

	admit(t, a, b)
	require.True(t, b.session.HasGroup())
	require.False(t, b.session.IsLeader())
	require.Equal(t, a.session.Epoch(), b.session.Epoch())
	require.Equal(t, a.session.GroupID(), b.session.GroupID())

	msg, err := b.session.CreateMessage("hello")
	require.NoError(t, err)
	received, err := a.session.Process(msg)
	require.NoError(t, err)
	require.NotNil(t, received)
	require.Equal(t, "hello", received.Text)
	require.Equal(t, b.ident.PeerID(), received.From)
}

func TestRoundTripDecodesIdentically(t *testing.T) {
	a, b, c := newParticipant(t), newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	admit(t, a, b)

	// b is an existing member when c is admitted and processes the commit
	commit := admit(t, a, c)
	received, err := b.session.Process(commit)
	require.NoError(t, err)
	require.Nil(t, received)
	require.Equal(t, a.session.Epoch(), b.session.Epoch())
	require.Equal(t, a.session.Members(), c.session.Members())

	for _, sender := range []*participant{a, b, c} {
		msg, err := sender.session.CreateMessage("ping from " + sender.ident.PeerID().String())
		require.NoError(t, err)
		for _, receiver := range []*participant{a, b, c} {
			if receiver == sender {
				continue
			}
			received, err := receiver.session.Process(msg)
			require.NoError(t, err)
			require.Equal(t, "ping from "+sender.ident.PeerID().String(), received.Text)
		}
	}
}

func TestCreateTwiceDiscardsGroup(t *testing.T) {
	a, b := newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	admit(t, a, b)
	firstID := a.session.GroupID()
	require.Len(t, a.session.Members(), 2)

	require.NoError(t, a.session.Create())
	require.True(t, a.session.IsLeader())
	require.NotEqual(t, firstID, a.session.GroupID())
	require.Len(t, a.session.Members(), 1)
	require.Equal(t, uint64(0), a.session.Epoch())

	// messages for the old group are no longer accepted
	msg, err := b.session.CreateMessage("stale")
	require.NoError(t, err)
	_, err = a.session.Process(msg)
	require.ErrorIs(t, err, gka.ErrWrongGroup)
}

func TestProcessWithoutGroupIsNoop(t *testing.T) {
	a, b := newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	msg, err := a.session.CreateMessage("anyone?")
	require.NoError(t, err)

	for _, m := range [][]byte{msg, nil, {0xff, 0x00}} {
		received, err := b.session.Process(m)
		require.NoError(t, err)
		require.Nil(t, received)
	}
	require.False(t, b.session.HasGroup())
	require.Equal(t, uint64(1), b.ident.Issued())
}

func TestCommitReplayIsRecoverable(t *testing.T) {
	a, b, c := newParticipant(t), newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	admit(t, a, b)
	commit := admit(t, a, c)

	_, err := b.session.Process(commit)
	require.NoError(t, err)
	epoch := b.session.Epoch()

	_, err = b.session.Process(commit)
	require.Error(t, err)
	require.ErrorIs(t, err, gka.ErrStaleEpoch)
	require.False(t, session.IsUnrecoverable(err))
	require.Equal(t, epoch, b.session.Epoch())

	// the group still works after the rejected replay
	msg, err := c.session.CreateMessage("still here")
	require.NoError(t, err)
	received, err := b.session.Process(msg)
	require.NoError(t, err)
	require.Equal(t, "still here", received.Text)
}

func TestAddMemberRequiresLeader(t *testing.T) {
	a, b, c := newParticipant(t), newParticipant(t), newParticipant(t)

	kp := c.keyPackage(t)
	_, _, err := b.session.AddMember(kp)
	require.ErrorIs(t, err, session.ErrNoGroup)

	require.NoError(t, a.session.Create())
	admit(t, a, b)
	_, _, err = b.session.AddMember(kp)
	require.ErrorIs(t, err, session.ErrNotLeader)
}

func TestAddMemberRejectsInvalidKeyPackage(t *testing.T) {
	a, b := newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	epoch := a.session.Epoch()

	kp, err := b.ident.KeyPackage()
	require.NoError(t, err)
	kp.Signature = []byte("forged")
	data, err := kp.MarshalBinary()
	require.NoError(t, err)
	_, _, err = a.session.AddMember(data)
	require.ErrorIs(t, err, gka.ErrInvalidKeyPackage)
	require.False(t, session.IsUnrecoverable(err))
	require.Equal(t, epoch, a.session.Epoch())
}

func TestJoinWithForeignWelcome(t *testing.T) {
	a, b, c := newParticipant(t), newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	_, welcome, err := a.session.AddMember(b.keyPackage(t))
	require.NoError(t, err)

	err = c.session.Join(welcome)
	var welcomeErr *session.WelcomeError
	require.ErrorAs(t, err, &welcomeErr)
	require.ErrorIs(t, err, gka.ErrNoKeyPackage)
	require.False(t, c.session.HasGroup())
}

// joinDirectly has leader admit joiner but keeps the joiner's group outside of
// any session so the test can craft messages a session would never send.
func joinDirectly(t *testing.T, leader, joiner *participant) *gka.Group {
	t.Helper()
	_, data, err := leader.session.AddMember(joiner.keyPackage(t))
	require.NoError(t, err)
	var welcome gka.Welcome
	require.NoError(t, welcome.UnmarshalBinary(data))
	g, err := joiner.provider.NewGroupFromWelcome(&welcome)
	require.NoError(t, err)
	return g
}

func TestInvalidUTF8IsRecoverable(t *testing.T) {
	a, b := newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	groupB := joinDirectly(t, a, b)
	epoch := a.session.Epoch()

	msg, err := groupB.CreateMessage([]byte{0xff, 0xfe, 0xfd})
	require.NoError(t, err)
	data, err := msg.MarshalBinary()
	require.NoError(t, err)
	received, err := a.session.Process(data)
	require.ErrorIs(t, err, session.ErrInvalidUTF8)
	require.False(t, session.IsUnrecoverable(err))
	require.Nil(t, received)
	require.Equal(t, epoch, a.session.Epoch())

	msg, err = groupB.CreateMessage([]byte("valid"))
	require.NoError(t, err)
	data, err = msg.MarshalBinary()
	require.NoError(t, err)
	received, err = a.session.Process(data)
	require.NoError(t, err)
	require.Equal(t, "valid", received.Text)
}

func TestProposalIsNotApplied(t *testing.T) {
	a, b, c := newParticipant(t), newParticipant(t), newParticipant(t)
	require.NoError(t, a.session.Create())
	groupB := joinDirectly(t, a, b)
	epoch := a.session.Epoch()
	members := a.session.Members()

	kp, err := c.ident.KeyPackage()
	require.NoError(t, err)
	proposal, err := groupB.Propose(kp)
	require.NoError(t, err)
	data, err := proposal.MarshalBinary()
	require.NoError(t, err)

	received, err := a.session.Process(data)
	require.NoError(t, err)
	require.Nil(t, received)
	require.Equal(t, epoch, a.session.Epoch())
	require.Equal(t, members, a.session.Members())
}

func TestCreateMessageWithoutGroup(t *testing.T) {
	a := newParticipant(t)
	_, err := a.session.CreateMessage("hi")
	require.ErrorIs(t, err, session.ErrNoGroup)
}

type brokenIssuer struct{}

func (brokenIssuer) KeyPackage() (*gka.KeyPackage, error) {
	return nil, errors.New("key store unavailable")
}

func TestCreateFailureIsUnrecoverable(t *testing.T) {
	provider, err := gka.NewProvider(gka.DefaultConfig())
	require.NoError(t, err)
	s := session.New(gka.NewEngine(provider, brokenIssuer{}))
	err = s.Create()
	require.True(t, session.IsUnrecoverable(err))
	require.False(t, s.HasGroup())
}

func TestActor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, b := newParticipant(t), newParticipant(t)
	actorA, actorB := session.NewActor(a.session), session.NewActor(b.session)
	runCtx, stop := context.WithCancel(ctx)
	go func() { _ = actorA.Run(runCtx) }()
	go func() { _ = actorB.Run(runCtx) }()

	require.NoError(t, actorA.Create(ctx))
	_, welcome, err := actorA.AddMember(ctx, b.keyPackage(t))
	require.NoError(t, err)
	require.NoError(t, actorB.Join(ctx, welcome))

	msg, err := actorB.CreateMessage(ctx, "hello")
	require.NoError(t, err)
	received, err := actorA.Process(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, "hello", received.Text)

	status, err := actorA.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Leader)
	require.Len(t, status.Members, 2)

	stop()
	<-actorA.Done()
	_, err = actorA.Status(ctx)
	require.ErrorIs(t, err, session.ErrStopped)
}

func TestActorRespectsContext(t *testing.T) {
	a := newParticipant(t)
	actor := session.NewActor(a.session)

	// the actor is not running so the request can never be delivered
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := actor.Create(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
