// Package p2p provides the libp2p substrate: a floodsub topic for broadcast,
// mDNS for discovery on the local network and the host's event bus for
// connection state.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cmwaters/parley/network"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	corenet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// DefaultConnectTimeout bounds dialing a discovered peer.
const DefaultConnectTimeout = 20 * time.Second

var _ network.Substrate = (*Substrate)(nil)

type Substrate struct {
	host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	connSub   event.Subscription
	discovery *Discovery
	events    *network.EventBuffer

	connectTimeout time.Duration
	serviceName    string
	discoveryTTL   time.Duration
	enableMDNS     bool

	cancel context.CancelFunc
	wg     conc.WaitGroup

	logger zerolog.Logger
}

type Option func(*Substrate)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Substrate) {
		s.logger = logger
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(s *Substrate) {
		s.connectTimeout = timeout
	}
}

// WithMDNS enables local discovery under serviceName. Records that are not
// refreshed within ttl expire.
func WithMDNS(serviceName string, ttl time.Duration) Option {
	return func(s *Substrate) {
		s.enableMDNS = true
		s.serviceName = serviceName
		s.discoveryTTL = ttl
	}
}

// New joins topic with floodsub on h. The substrate owns the subscription but
// not the host.
func New(ctx context.Context, h host.Host, topic string, opts ...Option) (*Substrate, error) {
	s := &Substrate{
		host:           h,
		events:         network.NewEventBuffer(),
		connectTimeout: DefaultConnectTimeout,
		serviceName:    DefaultServiceName,
		discoveryTTL:   DefaultDiscoveryTTL,
		logger:         zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}

	ps, err := pubsub.NewFloodSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("creating floodsub: %w", err)
	}
	s.ps = ps
	if s.topic, err = ps.Join(topic); err != nil {
		return nil, fmt.Errorf("joining topic %s: %w", topic, err)
	}
	if s.sub, err = s.topic.Subscribe(); err != nil {
		_ = s.topic.Close()
		return nil, fmt.Errorf("subscribing to topic %s: %w", topic, err)
	}
	s.connSub, err = h.EventBus().Subscribe(new(event.EvtPeerConnectednessChanged))
	if err != nil {
		s.sub.Cancel()
		_ = s.topic.Close()
		return nil, fmt.Errorf("subscribing to connectedness events: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Go(func() { s.readLoop(runCtx) })
	s.wg.Go(s.connLoop)

	if s.enableMDNS {
		s.discovery = newDiscovery(h.ID(), s.discoveryTTL, s.events.Emit)
		if err := s.discovery.start(h, s.serviceName); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("starting mdns: %w", err)
		}
		s.wg.Go(func() { s.discovery.run(runCtx) })
	}

	for _, addr := range h.Addrs() {
		s.logger.Info().
			Str("addr", fmt.Sprintf("%s/p2p/%s", addr, h.ID())).
			Msg("listening")
	}
	return s, nil
}

func (s *Substrate) ID() peer.ID {
	return s.host.ID()
}

func (s *Substrate) Events() <-chan network.Event {
	return s.events.Events()
}

// Publish broadcasts data on the topic. It does not wait for peers to join
// the topic; with nobody listening the message is simply lost.
func (s *Substrate) Publish(ctx context.Context, data []byte) error {
	return s.topic.Publish(ctx, data)
}

// AddPeer connects to a discovered peer. Floodsub adds connected peers that
// share the topic to the broadcast view.
func (s *Substrate) AddPeer(ctx context.Context, info peer.AddrInfo) error {
	if s.Reachable(info.ID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	return s.host.Connect(ctx, info)
}

func (s *Substrate) RemovePeer(id peer.ID) error {
	return s.host.Network().ClosePeer(id)
}

func (s *Substrate) Reachable(id peer.ID) bool {
	return s.host.Network().Connectedness(id) == corenet.Connected
}

// TopicPeers lists the peers floodsub currently broadcasts to.
func (s *Substrate) TopicPeers() []peer.ID {
	return s.topic.ListPeers()
}

func (s *Substrate) Close() (err error) {
	s.cancel()
	s.sub.Cancel()
	if s.discovery != nil {
		err = errors.Join(err, s.discovery.close())
	}
	err = errors.Join(err, s.connSub.Close())
	s.wg.Wait()
	err = errors.Join(err, s.topic.Close())
	s.events.Close()
	return err
}

func (s *Substrate) readLoop(ctx context.Context) {
	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			// happens when the subscription is cancelled
			return
		}
		s.events.Emit(network.Event{
			Type: network.MessageReceived,
			Peer: msg.GetFrom(),
			Data: msg.Data,
		})
	}
}

func (s *Substrate) connLoop() {
	for e := range s.connSub.Out() {
		evt, ok := e.(event.EvtPeerConnectednessChanged)
		if !ok {
			continue
		}
		switch evt.Connectedness {
		case corenet.Connected:
			s.events.Emit(network.Event{Type: network.ConnectionOpened, Peer: evt.Peer})
		case corenet.NotConnected:
			s.events.Emit(network.Event{Type: network.ConnectionClosed, Peer: evt.Peer})
		}
	}
}
