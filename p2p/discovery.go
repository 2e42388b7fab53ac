package p2p

import (
	"context"
	"sync"
	"time"

	"github.com/cmwaters/parley/network"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

const (
	// DefaultServiceName is the mDNS service peers advertise and browse for.
	DefaultServiceName = "parley"

	// DefaultDiscoveryTTL is how long a discovered peer is remembered after
	// it was last seen.
	DefaultDiscoveryTTL = 2 * time.Minute
)

var _ mdns.Notifee = (*Discovery)(nil)

// Discovery finds peers on the local network with mDNS. mDNS only reports
// sightings, so every sighting refreshes a record and records that are not
// refreshed within the TTL are reported as expired.
type Discovery struct {
	self peer.ID
	ttl  time.Duration
	emit func(network.Event)

	mtx      sync.Mutex
	lastSeen map[peer.ID]time.Time

	service mdns.Service
}

func newDiscovery(self peer.ID, ttl time.Duration, emit func(network.Event)) *Discovery {
	return &Discovery{
		self:     self,
		ttl:      ttl,
		emit:     emit,
		lastSeen: make(map[peer.ID]time.Time),
	}
}

// start advertises h under serviceName and begins browsing for other peers.
func (d *Discovery) start(h host.Host, serviceName string) error {
	d.service = mdns.NewMdnsService(h, serviceName, d)
	return d.service.Start()
}

// HandlePeerFound is called by the mDNS service for every sighting.
func (d *Discovery) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == d.self {
		return
	}
	d.mtx.Lock()
	_, known := d.lastSeen[info.ID]
	d.lastSeen[info.ID] = time.Now()
	d.mtx.Unlock()

	if !known {
		d.emit(network.Event{
			Type:  network.PeerDiscovered,
			Peer:  info.ID,
			Addrs: info.Addrs,
		})
	}
}

// run expires stale records until the context is cancelled.
func (d *Discovery) run(ctx context.Context) {
	interval := d.ttl / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.sweep(now)
		}
	}
}

func (d *Discovery) sweep(now time.Time) {
	var expired []peer.ID
	d.mtx.Lock()
	for id, seen := range d.lastSeen {
		if now.Sub(seen) > d.ttl {
			expired = append(expired, id)
			delete(d.lastSeen, id)
		}
	}
	d.mtx.Unlock()

	for _, id := range expired {
		d.emit(network.Event{Type: network.PeerExpired, Peer: id})
	}
}

// Known returns the peers with a live discovery record.
func (d *Discovery) Known() []peer.ID {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	peers := make([]peer.ID, 0, len(d.lastSeen))
	for id := range d.lastSeen {
		peers = append(peers, id)
	}
	return peers
}

func (d *Discovery) close() error {
	if d.service == nil {
		return nil
	}
	return d.service.Close()
}
