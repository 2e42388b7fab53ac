package network

import (
	"context"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Substrate is the transport and discovery layer a node broadcasts over. It
// reports what happens on the network as a stream of events and accepts raw
// payloads to broadcast on the conversation topic. How peers are found and how
// a broadcast reaches them is left to the implementation.
type Substrate interface {
	io.Closer

	// ID is the local peer's identity.
	ID() peer.ID

	// Events delivers discovery, connection and message events in the order
	// they occurred. The channel is closed when the substrate is closed.
	Events() <-chan Event

	// Publish broadcasts data to every peer in the broadcast view.
	Publish(ctx context.Context, data []byte) error

	// AddPeer adds a discovered peer to the broadcast view.
	AddPeer(ctx context.Context, info peer.AddrInfo) error

	// RemovePeer removes a peer from the broadcast view.
	RemovePeer(id peer.ID) error

	// Reachable reports whether the peer is still reachable through some
	// other means, such as an open connection.
	Reachable(id peer.ID) bool
}

type EventType uint8

const (
	PeerDiscovered EventType = iota + 1
	PeerExpired
	ConnectionOpened
	ConnectionClosed
	MessageReceived
)

func (t EventType) String() string {
	switch t {
	case PeerDiscovered:
		return "peer_discovered"
	case PeerExpired:
		return "peer_expired"
	case ConnectionOpened:
		return "connection_opened"
	case ConnectionClosed:
		return "connection_closed"
	case MessageReceived:
		return "message_received"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Event is something that happened on the substrate. Addrs is set for
// discovery events and Data for received messages.
type Event struct {
	Type  EventType
	Peer  peer.ID
	Addrs []multiaddr.Multiaddr
	Data  []byte
}

// Inbound is a payload received from the broadcast topic.
type Inbound struct {
	From peer.ID
	Data []byte
}
