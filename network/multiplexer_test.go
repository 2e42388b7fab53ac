package network_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmwaters/parley/network"
	"github.com/cmwaters/parley/pkg/queue"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

type node struct {
	substrate *network.LocalSubstrate
	mux       *network.Multiplexer
	inbound   *queue.Queue[network.Inbound]
	outbound  *queue.Queue[[]byte]
}

func startNode(ctx context.Context, t *testing.T, n *network.LocalNetwork, id peer.ID) *node {
	t.Helper()
	substrate := n.Join(id)
	inbound, outbound := queue.New[network.Inbound](0), queue.New[[]byte](0)
	mux := network.NewMultiplexer(substrate, inbound, outbound)
	go func() { _ = mux.Run(ctx) }()
	t.Cleanup(func() { _ = substrate.Close() })
	return &node{substrate: substrate, mux: mux, inbound: inbound, outbound: outbound}
}

func waitForView(t *testing.T, n *node, peers ...peer.ID) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, p := range peers {
			if !n.mux.InView(p) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMultiplexerBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	net := network.NewLocalNetwork()
	a := startNode(ctx, t, net, "a")
	b := startNode(ctx, t, net, "b")
	c := startNode(ctx, t, net, "c")
	waitForView(t, a, "b", "c")
	waitForView(t, b, "a", "c")
	waitForView(t, c, "a", "b")

	require.NoError(t, a.outbound.Push([]byte("first")))
	require.NoError(t, a.outbound.Push([]byte("second")))

	for _, receiver := range []*node{b, c} {
		for _, expected := range []string{"first", "second"} {
			msg, err := receiver.inbound.Pop(ctx)
			require.NoError(t, err)
			require.Equal(t, peer.ID("a"), msg.From)
			require.Equal(t, expected, string(msg.Data))
		}
	}

	// the sender does not receive its own messages
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, a.inbound.Len())
}

func TestMultiplexerRemovesExpiredPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	net := network.NewLocalNetwork()
	a := startNode(ctx, t, net, "a")
	b := startNode(ctx, t, net, "b")
	waitForView(t, a, "b")

	require.NoError(t, b.substrate.Close())
	require.Eventually(t, func() bool {
		return !a.mux.InView("b")
	}, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, a.mux.View())
}

func TestMultiplexerKeepsReachablePeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	net := network.NewLocalNetwork()
	a := startNode(ctx, t, net, "a")
	b := startNode(ctx, t, net, "b")
	waitForView(t, a, "b")

	// discovery expires but the connection stays open
	net.Expire("a", "b")
	require.NoError(t, b.outbound.Push([]byte("still connected")))
	msg, err := a.inbound.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "still connected", string(msg.Data))
	require.True(t, a.mux.InView("b"))
}

func TestMultiplexerDropsExpiredPeerOnceDisconnected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	net := network.NewLocalNetwork()
	a := startNode(ctx, t, net, "a")
	b := startNode(ctx, t, net, "b")
	waitForView(t, a, "b")
	waitForView(t, b, "a")

	net.Expire("a", "b")
	require.NoError(t, b.outbound.Push([]byte("still connected")))
	_, err := a.inbound.Pop(ctx)
	require.NoError(t, err)
	require.True(t, a.mux.InView("b"))

	// the connection goes away without any further discovery event
	require.NoError(t, a.substrate.RemovePeer("b"))
	require.Eventually(t, func() bool {
		return !a.mux.InView("b")
	}, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, a.mux.View())
}

func TestMultiplexerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	net := network.NewLocalNetwork()
	substrate := net.Join("a")
	defer substrate.Close()

	mux := network.NewMultiplexer(substrate, queue.New[network.Inbound](0), queue.New[[]byte](0))
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("multiplexer did not stop")
	}
}

func TestMultiplexerStopsWhenSubstrateCloses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	net := network.NewLocalNetwork()
	substrate := net.Join("a")

	mux := network.NewMultiplexer(substrate, queue.New[network.Inbound](0), queue.New[[]byte](0))
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Run(ctx) }()
	require.NoError(t, substrate.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, network.ErrSubstrateClosed)
	case <-ctx.Done():
		t.Fatal("multiplexer did not stop")
	}
}

func TestMultiplexerDropsWhenInboundFull(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	net := network.NewLocalNetwork()
	a := startNode(ctx, t, net, "a")

	substrate := net.Join("b")
	t.Cleanup(func() { _ = substrate.Close() })
	inbound := queue.New[network.Inbound](1)
	bMux := network.NewMultiplexer(substrate, inbound, queue.New[[]byte](0))
	go func() { _ = bMux.Run(ctx) }()
	waitForView(t, a, "b")

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, a.outbound.Push([]byte(m)))
	}
	require.Eventually(t, func() bool { return inbound.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	msg, ok := inbound.TryPop()
	require.True(t, ok)
	require.Equal(t, "one", string(msg.Data))
}
