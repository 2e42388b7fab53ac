// Package network connects the protocol to a broadcast substrate. The
// Multiplexer owns the network facing side of a node: it tracks the broadcast
// view, forwards received payloads to the inbound queue and publishes
// everything pushed onto the outbound queue.
package network

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cmwaters/parley/pkg/queue"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

var ErrSubstrateClosed = errors.New("substrate closed")

type Multiplexer struct {
	substrate Substrate
	inbound   *queue.Queue[Inbound]
	outbound  *queue.Queue[[]byte]

	mtx  sync.Mutex
	view map[peer.ID]struct{}

	logger zerolog.Logger
}

type Option func(*Multiplexer)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = logger
	}
}

func NewMultiplexer(
	substrate Substrate,
	inbound *queue.Queue[Inbound],
	outbound *queue.Queue[[]byte],
	opts ...Option,
) *Multiplexer {
	m := &Multiplexer{
		substrate: substrate,
		inbound:   inbound,
		outbound:  outbound,
		view:      make(map[peer.ID]struct{}),
		logger:    zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run selects over substrate events and the outbound queue until the context
// is cancelled or the substrate closes. Neither source takes priority.
func (m *Multiplexer) Run(ctx context.Context) error {
	events := m.substrate.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return ErrSubstrateClosed
			}
			m.handleEvent(ctx, ev)

		case <-m.outbound.Notify():
			// one entry per wake up, the queue signals again if more remain
			data, ok := m.outbound.TryPop()
			if !ok {
				continue
			}
			if err := m.substrate.Publish(ctx, data); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Error().Err(err).Int("bytes", len(data)).Msg("publishing message")
			}
		}
	}
}

func (m *Multiplexer) handleEvent(ctx context.Context, ev Event) {
	switch ev.Type {
	case PeerDiscovered:
		if ev.Peer == m.substrate.ID() {
			return
		}
		err := m.substrate.AddPeer(ctx, peer.AddrInfo{ID: ev.Peer, Addrs: ev.Addrs})
		if err != nil {
			m.logger.Info().Err(err).Str("peer", ev.Peer.String()).Msg("adding discovered peer")
			return
		}
		m.mtx.Lock()
		m.view[ev.Peer] = struct{}{}
		m.mtx.Unlock()
		m.logger.Debug().Str("peer", ev.Peer.String()).Msg("peer discovered")

	case PeerExpired:
		if m.substrate.Reachable(ev.Peer) {
			m.logger.Debug().Str("peer", ev.Peer.String()).Msg("discovery expired for reachable peer")
			return
		}
		if err := m.substrate.RemovePeer(ev.Peer); err != nil {
			m.logger.Info().Err(err).Str("peer", ev.Peer.String()).Msg("removing expired peer")
		}
		m.mtx.Lock()
		delete(m.view, ev.Peer)
		m.mtx.Unlock()
		m.logger.Debug().Str("peer", ev.Peer.String()).Msg("peer expired")

	case ConnectionOpened:
		m.logger.Debug().Str("peer", ev.Peer.String()).Msg("connection opened")

	case ConnectionClosed:
		if m.substrate.Reachable(ev.Peer) {
			m.logger.Debug().Str("peer", ev.Peer.String()).Msg("connection closed, peer still reachable")
			return
		}
		// a peer whose discovery expired while connected is only dropped here
		m.mtx.Lock()
		delete(m.view, ev.Peer)
		m.mtx.Unlock()
		m.logger.Debug().Str("peer", ev.Peer.String()).Msg("connection closed")

	case MessageReceived:
		if ev.Peer == m.substrate.ID() {
			return
		}
		err := m.inbound.Push(Inbound{From: ev.Peer, Data: ev.Data})
		if err != nil {
			m.logger.Error().Err(err).Str("from", ev.Peer.String()).Msg("dropping inbound message")
		}

	default:
		m.logger.Debug().Str("type", ev.Type.String()).Msg("ignoring event")
	}
}

// View returns the peers currently in the broadcast view.
func (m *Multiplexer) View() []peer.ID {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	peers := make([]peer.ID, 0, len(m.view))
	for p := range m.view {
		peers = append(peers, p)
	}
	return peers
}

// InView reports whether p is in the broadcast view.
func (m *Multiplexer) InView(p peer.ID) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, ok := m.view[p]
	return ok
}
