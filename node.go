package parley

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cmwaters/parley/identity"
	"github.com/cmwaters/parley/network"
	"github.com/cmwaters/parley/pkg/app"
	"github.com/cmwaters/parley/pkg/queue"
	"github.com/cmwaters/parley/session"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Node is one participant in a conversation.
//
// A node runs three long lived routines. The multiplexer owns the network
// facing side: it keeps the broadcast view in sync with discovery, pushes
// received payloads onto the inbound queue and publishes whatever is pushed
// onto the outbound queue. The processor pops inbound payloads, classifies
// them and drives the session. The session actor is the only routine that
// touches group state; the processor and the command interface both reach
// it through requests. If any routine fails the others are cancelled.
type Node struct {
	identity *identity.Identity
	session  *session.Actor

	substrate network.Substrate
	mux       *network.Multiplexer
	inbound   *queue.Queue[network.Inbound]
	outbound  *queue.Queue[[]byte]

	display app.Display

	inboundCapacity  int
	outboundCapacity int

	// closers are released by Close after the substrate
	closers []io.Closer

	// status tracks if the node is running or not.
	status atomic.Bool

	mtx    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

// Option is a set of configurable parameters. If left empty, defaults
// will be used
type Option func(n *Node)

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithQueueCapacity bounds the inbound and outbound queues. Zero means
// unbounded.
func WithQueueCapacity(inbound, outbound int) Option {
	return func(n *Node) {
		n.inboundCapacity = inbound
		n.outboundCapacity = outbound
	}
}

func withClosers(closers ...io.Closer) Option {
	return func(n *Node) {
		n.closers = append(n.closers, closers...)
	}
}

// New creates a node for ident on the given substrate. backend must be the
// same engine ident issues its key packages from.
func New(
	ident *identity.Identity,
	backend session.Backend,
	substrate network.Substrate,
	display app.Display,
	opts ...Option,
) *Node {
	n := &Node{
		identity:         ident,
		substrate:        substrate,
		display:          display,
		inboundCapacity:  DefaultQueueCapacity,
		outboundCapacity: DefaultQueueCapacity,
		done:             make(chan struct{}),
		logger:           zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With().Str("peer", ident.PeerID().String()).Logger()
	n.inbound = queue.New[network.Inbound](n.inboundCapacity)
	n.outbound = queue.New[[]byte](n.outboundCapacity)
	n.session = session.NewActor(session.New(backend,
		session.WithLogger(n.logger.With().Str("module", "session").Logger())))
	n.mux = network.NewMultiplexer(substrate, n.inbound, n.outbound,
		network.WithLogger(n.logger.With().Str("module", "network").Logger()))
	return n
}

// DefaultQueueCapacity bounds each queue unless configured otherwise.
const DefaultQueueCapacity = 1024

// Start runs the node until the context is cancelled, Stop is called or one
// of its routines fails. Cancellation is not an error.
func (n *Node) Start(ctx context.Context) error {
	if !n.status.CompareAndSwap(false, true) {
		return errors.New("node already running")
	}
	defer close(n.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	n.mtx.Lock()
	n.cancel = cancel
	n.mtx.Unlock()

	n.logger.Info().Msg("starting node")
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	p.Go(supervise("session", n.session.Run))
	p.Go(supervise("multiplexer", n.mux.Run))
	p.Go(supervise("processor", n.process))

	err := p.Wait()
	n.inbound.Close()
	n.outbound.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop cancels the node and waits for its routines to exit.
func (n *Node) Stop() {
	n.mtx.Lock()
	cancel := n.cancel
	n.mtx.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-n.done
}

// Wait returns a channel that is closed once Start has returned.
func (n *Node) Wait() <-chan struct{} {
	return n.done
}

// Close releases the substrate and anything the node was built on top of.
func (n *Node) Close() error {
	err := n.substrate.Close()
	for _, c := range n.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (n *Node) ID() string {
	return n.identity.PeerID().String()
}

// Status returns a snapshot of the session.
func (n *Node) Status(ctx context.Context) (session.Status, error) {
	return n.session.Status(ctx)
}

// View returns the peers in the broadcast view.
func (n *Node) View() []string {
	peers := n.mux.View()
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.String()
	}
	return out
}

// process pops inbound payloads and handles them one at a time. Only
// unrecoverable errors stop it.
func (n *Node) process(ctx context.Context) error {
	for {
		in, err := n.inbound.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			return err
		}
		if err := n.handle(ctx, in); err != nil {
			if session.IsUnrecoverable(err) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Info().
				Err(err).
				Str("from", in.From.String()).
				Msg("invalid message")
		}
	}
}

// enqueue hands data to the multiplexer for broadcast. A full queue drops the
// message.
func (n *Node) enqueue(data []byte) error {
	if err := n.outbound.Push(data); err != nil {
		n.logger.Error().Err(err).Int("bytes", len(data)).Msg("dropping outbound message")
		return err
	}
	return nil
}

// supervise turns a panic in a routine into an error so that it cancels its
// siblings instead of crashing the process.
func supervise(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) (err error) {
		var pc panics.Catcher
		pc.Try(func() { err = fn(ctx) })
		if r := pc.Recovered(); r != nil {
			return fmt.Errorf("%s: %w", name, r.AsError())
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return err
	}
}
