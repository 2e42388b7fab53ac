package session

import (
	"context"
)

// Actor owns a Session on a single goroutine. Requests are serialised through
// one channel so the session is never accessed concurrently.
type Actor struct {
	session *Session

	// reqCh serialises every request to the session
	reqCh chan func(*Session)
	// done is closed when Run returns
	done chan struct{}
}

func NewActor(s *Session) *Actor {
	return &Actor{
		session: s,
		reqCh:   make(chan func(*Session)),
		done:    make(chan struct{}),
	}
}

// Run executes requests until the context is cancelled. It must only be
// called once.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-a.reqCh:
			req(a.session)
		}
	}
}

// Done is closed once Run has returned.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

func (a *Actor) Create(ctx context.Context) error {
	_, err := call(ctx, a, func(s *Session) (struct{}, error) {
		return struct{}{}, s.Create()
	})
	return err
}

func (a *Actor) AddMember(ctx context.Context, keyPackage []byte) (commit, welcome []byte, err error) {
	type added struct {
		commit  []byte
		welcome []byte
	}
	res, err := call(ctx, a, func(s *Session) (added, error) {
		commit, welcome, err := s.AddMember(keyPackage)
		return added{commit, welcome}, err
	})
	return res.commit, res.welcome, err
}

func (a *Actor) Join(ctx context.Context, welcome []byte) error {
	_, err := call(ctx, a, func(s *Session) (struct{}, error) {
		return struct{}{}, s.Join(welcome)
	})
	return err
}

func (a *Actor) CreateMessage(ctx context.Context, text string) ([]byte, error) {
	return call(ctx, a, func(s *Session) ([]byte, error) {
		return s.CreateMessage(text)
	})
}

func (a *Actor) Process(ctx context.Context, msg []byte) (*Received, error) {
	return call(ctx, a, func(s *Session) (*Received, error) {
		return s.Process(msg)
	})
}

func (a *Actor) Status(ctx context.Context) (Status, error) {
	return call(ctx, a, func(s *Session) (Status, error) {
		return s.Status(), nil
	})
}

type result[T any] struct {
	value T
	err   error
}

// call runs fn on the actor's goroutine and waits for its result.
func call[T any](ctx context.Context, a *Actor, fn func(*Session) (T, error)) (T, error) {
	var zero T
	resCh := make(chan result[T], 1)
	req := func(s *Session) {
		v, err := fn(s)
		resCh <- result[T]{value: v, err: err}
	}

	select {
	case a.reqCh <- req:
	case <-a.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case res := <-resCh:
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
