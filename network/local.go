package network

import (
	"context"
	"errors"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

var ErrClosed = errors.New("substrate is closed")

// LocalNetwork is an in memory broadcast network. Joining announces the new
// peer to every other peer, mirroring local discovery, and payloads are
// delivered to every connected peer and to the publisher itself.
type LocalNetwork struct {
	mtx   sync.Mutex
	nodes map[peer.ID]*LocalSubstrate
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		nodes: make(map[peer.ID]*LocalSubstrate),
	}
}

// Join adds a peer to the network and returns its substrate.
func (n *LocalNetwork) Join(id peer.ID) *LocalSubstrate {
	s := &LocalSubstrate{
		id:        id,
		network:   n,
		events:    NewEventBuffer(),
		closing:   make(chan struct{}),
		connected: make(map[peer.ID]struct{}),
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()
	for other, node := range n.nodes {
		node.emit(Event{Type: PeerDiscovered, Peer: id})
		s.emit(Event{Type: PeerDiscovered, Peer: other})
	}
	n.nodes[id] = s
	return s
}

// Expire tells observer that discovery of id has expired without affecting
// any connection between them.
func (n *LocalNetwork) Expire(observer, id peer.ID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if node, ok := n.nodes[observer]; ok {
		node.emit(Event{Type: PeerExpired, Peer: id})
	}
}

func (n *LocalNetwork) leave(id peer.ID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.nodes, id)
	for _, node := range n.nodes {
		if node.disconnect(id) {
			node.emit(Event{Type: ConnectionClosed, Peer: id})
		}
		node.emit(Event{Type: PeerExpired, Peer: id})
	}
}

func (n *LocalNetwork) node(id peer.ID) (*LocalSubstrate, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	node, ok := n.nodes[id]
	return node, ok
}

var _ Substrate = (*LocalSubstrate)(nil)

// LocalSubstrate is one peer's handle on a LocalNetwork.
type LocalSubstrate struct {
	id      peer.ID
	network *LocalNetwork

	events  *EventBuffer
	closing chan struct{}
	once    sync.Once

	mtx       sync.Mutex
	connected map[peer.ID]struct{}
}

func (s *LocalSubstrate) ID() peer.ID {
	return s.id
}

func (s *LocalSubstrate) Events() <-chan Event {
	return s.events.Events()
}

func (s *LocalSubstrate) Publish(ctx context.Context, data []byte) error {
	select {
	case <-s.closing:
		return ErrClosed
	default:
	}
	payload := append([]byte(nil), data...)
	s.emit(Event{Type: MessageReceived, Peer: s.id, Data: payload})
	for _, p := range s.peers() {
		if node, ok := s.network.node(p); ok {
			node.emit(Event{Type: MessageReceived, Peer: s.id, Data: payload})
		}
	}
	return ctx.Err()
}

func (s *LocalSubstrate) AddPeer(_ context.Context, info peer.AddrInfo) error {
	other, ok := s.network.node(info.ID)
	if !ok {
		return errors.New("peer is not part of the network")
	}
	if s.connect(info.ID) {
		s.emit(Event{Type: ConnectionOpened, Peer: info.ID})
	}
	if other.connect(s.id) {
		other.emit(Event{Type: ConnectionOpened, Peer: s.id})
	}
	return nil
}

func (s *LocalSubstrate) RemovePeer(id peer.ID) error {
	if s.disconnect(id) {
		s.emit(Event{Type: ConnectionClosed, Peer: id})
	}
	if other, ok := s.network.node(id); ok && other.disconnect(s.id) {
		other.emit(Event{Type: ConnectionClosed, Peer: s.id})
	}
	return nil
}

func (s *LocalSubstrate) Reachable(id peer.ID) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, ok := s.connected[id]
	return ok
}

// Close leaves the network. Peers observe the connection closing and the
// discovery record expiring.
func (s *LocalSubstrate) Close() error {
	s.once.Do(func() {
		close(s.closing)
		s.events.Close()
		s.network.leave(s.id)
	})
	return nil
}

func (s *LocalSubstrate) emit(ev Event) {
	s.events.Emit(ev)
}

func (s *LocalSubstrate) peers() []peer.ID {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	peers := make([]peer.ID, 0, len(s.connected))
	for p := range s.connected {
		peers = append(peers, p)
	}
	return peers
}

func (s *LocalSubstrate) connect(id peer.ID) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.connected[id]; ok {
		return false
	}
	s.connected[id] = struct{}{}
	return true
}

func (s *LocalSubstrate) disconnect(id peer.ID) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.connected[id]; !ok {
		return false
	}
	delete(s.connected, id)
	return true
}
