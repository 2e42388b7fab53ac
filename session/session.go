// Package session implements the group session state machine. A session
// holds at most one active group. It starts without a group and enters one
// through Create or Join, each of which replaces any previous group.
package session

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

// Session is not safe for concurrent use. Wrap it in an Actor to share it
// between goroutines.
type Session struct {
	backend Backend

	// group is nil until Create or Join succeeds
	group Group
	// leader is set only by Create. Leadership is self declared: nothing
	// proves to other members that this session created the group.
	leader bool

	logger zerolog.Logger
}

type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		logger:  zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Received is a decrypted application message.
type Received struct {
	From  peer.ID
	Epoch uint64
	Text  string
}

// Create starts a new group with this session as its only member and leader.
// Any existing group is discarded.
func (s *Session) Create() error {
	group, err := s.backend.NewGroup()
	if err != nil {
		return unrecoverable(fmt.Errorf("creating group: %w", err))
	}
	s.group = group
	s.leader = true
	s.logger.Info().
		Hex("group", group.ID()).
		Msg("created group")
	return nil
}

// AddMember admits the owner of the encoded key package. The resulting commit
// is merged before returning so that the leader's view is authoritative
// before either message reaches the network. The commit is for existing
// members and the welcome for the new one.
func (s *Session) AddMember(keyPackage []byte) (commit, welcome []byte, err error) {
	if s.group == nil {
		return nil, nil, ErrNoGroup
	}
	if !s.leader {
		return nil, nil, ErrNotLeader
	}
	commit, welcome, err = s.group.AddMember(keyPackage)
	if err != nil {
		return nil, nil, fmt.Errorf("adding member: %w", err)
	}
	s.logger.Info().
		Uint64("epoch", s.group.Epoch()).
		Int("size", len(s.group.Members())).
		Msg("added member")
	return commit, welcome, nil
}

// Join replaces the current group with the group described by the encoded
// welcome. On failure a *WelcomeError is returned and the session is left
// unchanged.
func (s *Session) Join(welcome []byte) error {
	group, err := s.backend.JoinGroup(welcome)
	if err != nil {
		return &WelcomeError{Err: err}
	}
	s.group = group
	s.leader = false
	s.logger.Info().
		Hex("group", group.ID()).
		Uint64("epoch", group.Epoch()).
		Int("size", len(group.Members())).
		Msg("joined group")
	return nil
}

// CreateMessage encrypts text for the current group and returns the encoded
// group message.
func (s *Session) CreateMessage(text string) ([]byte, error) {
	if s.group == nil {
		return nil, ErrNoGroup
	}
	msg, err := s.group.CreateMessage([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return msg, nil
}

// Process handles an encoded group message from another member. Without an
// active group it is a no-op. Application messages are returned, commits are
// merged and proposals are only logged. Every error leaves the group state as
// it was.
func (s *Session) Process(msg []byte) (*Received, error) {
	if s.group == nil {
		return nil, nil
	}
	processed, err := s.group.ProcessMessage(msg)
	if err != nil {
		return nil, err
	}

	switch processed.Content {
	case ContentApplication:
		if !utf8.Valid(processed.Plaintext) {
			return nil, ErrInvalidUTF8
		}
		return &Received{
			From:  processed.Sender,
			Epoch: processed.Epoch,
			Text:  string(processed.Plaintext),
		}, nil

	case ContentCommit:
		s.logger.Info().
			Str("from", processed.Sender.String()).
			Uint64("epoch", s.group.Epoch()).
			Int("size", len(s.group.Members())).
			Msg("merged commit")
		return nil, nil

	case ContentProposal:
		// proposals are not applied until a commit references them
		s.logger.Debug().
			Str("from", processed.Sender.String()).
			Msg("received proposal")
		return nil, nil

	default:
		return nil, errors.New("unexpected content type")
	}
}

func (s *Session) HasGroup() bool {
	return s.group != nil
}

func (s *Session) IsLeader() bool {
	return s.group != nil && s.leader
}

// Epoch returns the epoch of the active group or zero without one.
func (s *Session) Epoch() uint64 {
	if s.group == nil {
		return 0
	}
	return s.group.Epoch()
}

// GroupID returns the id of the active group or nil without one.
func (s *Session) GroupID() []byte {
	if s.group == nil {
		return nil
	}
	return s.group.ID()
}

// Members returns the peer ids of the members of the active group in index
// order.
func (s *Session) Members() []peer.ID {
	if s.group == nil {
		return nil
	}
	return s.group.Members()
}

// Status is a snapshot of the session.
type Status struct {
	HasGroup bool
	Leader   bool
	GroupID  []byte
	Epoch    uint64
	Members  []peer.ID
}

func (s *Session) Status() Status {
	return Status{
		HasGroup: s.HasGroup(),
		Leader:   s.IsLeader(),
		GroupID:  s.GroupID(),
		Epoch:    s.Epoch(),
		Members:  s.Members(),
	}
}
