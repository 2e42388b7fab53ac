package parley

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmwaters/parley/network"
	"github.com/cmwaters/parley/pkg/app"
	"github.com/cmwaters/parley/pkg/gka"
	"github.com/cmwaters/parley/session"
	"github.com/cmwaters/parley/wire"
	"github.com/libp2p/go-libp2p/core/peer"
)

// handle classifies an inbound payload and dispatches it to the session.
func (n *Node) handle(ctx context.Context, in network.Inbound) error {
	msg := wire.Classify(in.From, in.Data)
	switch msg.Kind {
	case wire.KindKeyPackage:
		return n.handleKeyPackage(ctx, msg)
	case wire.KindControl:
		return n.handleControl(ctx, msg)
	case wire.KindWelcome:
		return n.handleWelcome(ctx, msg)
	default:
		n.logger.Debug().
			Err(msg.Err).
			Str("from", msg.From.String()).
			Int("bytes", len(msg.Raw)).
			Msg("unrecognized payload")
		return nil
	}
}

// handleKeyPackage admits the sender when this node leads the group. Anyone
// claiming leadership may do this; other members cannot tell the difference.
// A key package is only accepted from the peer it names, so a relayed or
// replayed key package cannot pull its owner into a group.
func (n *Node) handleKeyPackage(ctx context.Context, msg wire.Message) error {
	if owner := peer.ID(msg.KeyPackage.Credential.Identity); owner != msg.From {
		n.logger.Debug().
			Str("from", msg.From.String()).
			Str("owner", owner.String()).
			Msg("ignoring key package from another peer")
		return nil
	}
	commit, welcome, err := n.session.AddMember(ctx, msg.Payload)
	switch {
	case errors.Is(err, session.ErrNoGroup), errors.Is(err, session.ErrNotLeader):
		n.logger.Debug().Str("from", msg.From.String()).Msg("ignoring key package")
		return nil
	case err != nil:
		return fmt.Errorf("admitting %s: %w", msg.From, err)
	}

	// the welcome goes out first so the new member is ready before
	// existing members move to the next epoch
	if err := n.enqueue(wire.EncodeWelcome(welcome)); err != nil {
		return err
	}
	if err := n.enqueue(wire.EncodeControl(commit)); err != nil {
		return err
	}
	n.display.Info(fmt.Sprintf("Added %s to the group", app.ShortID(msg.From)))
	return nil
}

func (n *Node) handleControl(ctx context.Context, msg wire.Message) error {
	received, err := n.session.Process(ctx, msg.Payload)
	if err != nil {
		return fmt.Errorf("processing %s message: %w", msg.Control.ContentType, err)
	}
	if received != nil {
		n.display.Message(received.From, received.Text)
	}
	return nil
}

func (n *Node) handleWelcome(ctx context.Context, msg wire.Message) error {
	err := n.session.Join(ctx, msg.Payload)
	switch {
	case errors.Is(err, gka.ErrNoKeyPackage):
		// addressed to someone else
		n.logger.Debug().Str("from", msg.From.String()).Msg("ignoring welcome")
		return nil
	case err != nil:
		n.display.Warn("Failed to join group")
		return err
	}
	n.display.Info(fmt.Sprintf("Received welcome from %s", app.ShortID(msg.From)))
	return nil
}
