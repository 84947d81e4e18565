package gateway

import (
	"context"
	"fmt"
	"sync"

	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"

	"github.com/google/uuid"
)

var _ contract.Connection = (*Session)(nil)

type State int

const (
	Connected State = iota
	Bound
	Closed
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Bound:
		return "bound"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one live client connection.
// Frames pushed to it are buffered in outbound and drained by the transport writer.
// The outbound channel is never closed, writers select on Done instead.
type Session struct {
	id        string
	identity  auth.Identity
	mu        sync.Mutex
	state     State
	userID    domain.UserID
	outbound  chan Outbound
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(identity auth.Identity, bufferSize int) *Session {
	return &Session{
		id:       uuid.NewString(),
		identity: identity,
		state:    Connected,
		outbound: make(chan Outbound, bufferSize),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() auth.Identity { return s.identity }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Outbound is drained by the transport writer.
func (s *Session) Outbound() <-chan Outbound { return s.outbound }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Push is called by the fanout.
// It waits for buffer space until ctx expires, then reports backpressure.
func (s *Session) Push(ctx context.Context, message domain.Message) error {
	return s.Enqueue(ctx, ReceiveFrame(message))
}

func (s *Session) Enqueue(ctx context.Context, frame Outbound) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.outbound <- frame:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errors.ErrBackpressure, ctx.Err())
	}
}

func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		close(s.done)
		closed = true
	})
	return closed
}
