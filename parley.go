package parley

import (
	"context"
	"fmt"

	"github.com/cmwaters/parley/config"
	"github.com/cmwaters/parley/identity"
	"github.com/cmwaters/parley/p2p"
	"github.com/cmwaters/parley/pkg/app"
	"github.com/cmwaters/parley/pkg/gka"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/rs/zerolog"
)

// NewLibP2PNode builds a node on a libp2p host from cfg. The returned node
// owns the host and releases it on Close.
func NewLibP2PNode(ctx context.Context, cfg *config.Config, display app.Display, logger zerolog.Logger) (*Node, error) {
	provider, err := gka.NewProvider(cfg.GroupParams())
	if err != nil {
		return nil, err
	}

	var priv crypto.PrivKey
	if cfg.Identity.KeyFile != "" {
		priv, err = identity.LoadKeyFile(cfg.Identity.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading identity: %w", err)
		}
	}
	var ident *identity.Identity
	if priv != nil {
		ident, err = identity.FromKey(priv, provider)
	} else {
		ident, err = identity.New(provider)
	}
	if err != nil {
		return nil, err
	}

	h, err := p2p.NewHost(ident.PrivKey(), cfg.Network.ListenAddrs...)
	if err != nil {
		return nil, err
	}

	opts := []p2p.Option{
		p2p.WithLogger(logger.With().Str("module", "p2p").Logger()),
		p2p.WithConnectTimeout(cfg.Network.ConnectTimeout()),
	}
	if cfg.Network.MDNS {
		opts = append(opts, p2p.WithMDNS(cfg.Network.ServiceName, cfg.Network.DiscoveryTTL()))
	}
	substrate, err := p2p.New(ctx, h, cfg.Network.Topic, opts...)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	return New(ident, gka.NewEngine(provider, ident), substrate, display,
		WithLogger(logger),
		WithQueueCapacity(cfg.Queue.InboundCapacity, cfg.Queue.OutboundCapacity),
		withClosers(h),
	), nil
}
