package p2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/libp2p/go-libp2p/p2p/transport/websocket"
	"github.com/multiformats/go-multiaddr"
)

// DefaultListenAddrs listens on all interfaces over TCP with an OS assigned
// port.
var DefaultListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}

// NewHost creates a libp2p host identified by priv. Connections are made over
// TCP or websockets, authenticated with noise and multiplexed with yamux.
func NewHost(priv crypto.PrivKey, listenAddrs ...string) (host.Host, error) {
	if len(listenAddrs) == 0 {
		listenAddrs = DefaultListenAddrs
	}
	for _, addr := range listenAddrs {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
	}
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(websocket.New),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	)
	if err != nil {
		return nil, fmt.Errorf("libp2p host: %w", err)
	}
	return h, nil
}
