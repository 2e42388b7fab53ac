package gka

import (
	"fmt"

	"github.com/cmwaters/parley/session"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Issuer hands out single use key packages for the local identity.
type Issuer interface {
	KeyPackage() (*KeyPackage, error)
}

// Engine exposes a Provider to a chat session. Everything crossing the
// session boundary is CBOR encoded.
type Engine struct {
	provider *Provider
	issuer   Issuer
}

var (
	_ session.Backend = (*Engine)(nil)
	_ session.Group   = (*engineGroup)(nil)
)

func NewEngine(provider *Provider, issuer Issuer) *Engine {
	return &Engine{
		provider: provider,
		issuer:   issuer,
	}
}

func (e *Engine) NewGroup() (session.Group, error) {
	kp, err := e.issuer.KeyPackage()
	if err != nil {
		return nil, fmt.Errorf("issuing key package: %w", err)
	}
	g, err := e.provider.NewGroup(kp)
	if err != nil {
		return nil, err
	}
	return &engineGroup{group: g}, nil
}

func (e *Engine) JoinGroup(data []byte) (session.Group, error) {
	var welcome Welcome
	if err := welcome.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	g, err := e.provider.NewGroupFromWelcome(&welcome)
	if err != nil {
		return nil, err
	}
	return &engineGroup{group: g}, nil
}

type engineGroup struct {
	group *Group
}

func (eg *engineGroup) ID() []byte {
	return eg.group.ID()
}

func (eg *engineGroup) Epoch() uint64 {
	return eg.group.Epoch()
}

func (eg *engineGroup) Members() []peer.ID {
	creds := eg.group.Members()
	members := make([]peer.ID, len(creds))
	for i := range creds {
		members[i] = peer.ID(creds[i].Identity)
	}
	return members
}

func (eg *engineGroup) AddMember(data []byte) ([]byte, []byte, error) {
	var kp KeyPackage
	if err := kp.UnmarshalBinary(data); err != nil {
		return nil, nil, err
	}
	commit, welcome, err := eg.group.AddMembers(&kp)
	if err != nil {
		return nil, nil, err
	}
	commitData, err := commit.MarshalBinary()
	if err != nil {
		eg.group.ClearPendingCommit()
		return nil, nil, err
	}
	welcomeData, err := welcome.MarshalBinary()
	if err != nil {
		eg.group.ClearPendingCommit()
		return nil, nil, err
	}
	if err := eg.group.MergePendingCommit(); err != nil {
		eg.group.ClearPendingCommit()
		return nil, nil, fmt.Errorf("merging commit: %w", err)
	}
	return commitData, welcomeData, nil
}

func (eg *engineGroup) CreateMessage(plaintext []byte) ([]byte, error) {
	msg, err := eg.group.CreateMessage(plaintext)
	if err != nil {
		return nil, err
	}
	return msg.MarshalBinary()
}

func (eg *engineGroup) ProcessMessage(data []byte) (*session.Processed, error) {
	var msg Message
	if err := msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	processed, err := eg.group.ProcessMessage(&msg)
	if err != nil {
		return nil, err
	}
	out := &session.Processed{
		Sender: peer.ID(processed.SenderID),
		Epoch:  msg.Epoch,
	}
	switch processed.ContentType {
	case ContentApplication:
		out.Content = session.ContentApplication
		out.Plaintext = processed.Data
	case ContentProposal:
		out.Content = session.ContentProposal
	case ContentCommit:
		if err := eg.group.MergeStagedCommit(processed.Commit); err != nil {
			return nil, fmt.Errorf("merging commit from %s: %w", out.Sender, err)
		}
		out.Content = session.ContentCommit
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, processed.ContentType)
	}
	return out, nil
}
