// Package gateway holds the transport independent part of a realtime connection:
// its state machine and the handling of join and send commands.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
	"market-chat/observability"
	"market-chat/services"
)

type Gateway struct {
	log        *slog.Logger
	registry   contract.IRegistry
	chat       services.IChatService
	monitoring *observability.MonitoringManager
	bufferSize int
}

func NewGateway(
	log *slog.Logger,
	registry contract.IRegistry,
	chat services.IChatService,
	monitoring *observability.MonitoringManager,
	bufferSize int,
) *Gateway {
	return &Gateway{log: log, registry: registry, chat: chat, monitoring: monitoring, bufferSize: bufferSize}
}

// Open starts a session for an authenticated identity and records its display name.
func (g *Gateway) Open(identity auth.Identity) *Session {
	session := NewSession(identity, g.bufferSize)
	// A missing name only degrades conversation lists to ids
	if identity.Name != "" {
		user := domain.User{ID: identity.UserID, Name: identity.Name, UpdatedAt: time.Now().UTC()}
		if err := g.chat.RegisterUser(user); err != nil {
			g.log.Warn("Failed to record user", "user", identity.UserID, "error", err)
		}
	}
	if g.monitoring != nil {
		g.monitoring.ConnectionOpened()
	}
	g.log.Debug("Session opened", "session", session.ID(), "identity", identity.UserID)
	return session
}

// Handle processes one inbound command and returns the reply for the originating connection.
// Commands of one session must be handled sequentially.
func (g *Gateway) Handle(ctx context.Context, session *Session, in Inbound) Outbound {
	switch in.Type {
	case FrameJoin:
		if err := g.join(session, in.UserID); err != nil {
			return ErrorFrame(err, in.ClientRef)
		}
		return JoinedFrame(in.UserID)
	case FrameSend:
		message, err := g.send(ctx, session, in)
		if err != nil {
			return ErrorFrame(err, in.ClientRef)
		}
		return SentFrame(message, in.ClientRef)
	default:
		return ErrorFrame(errors.ErrUnknownCommand, in.ClientRef)
	}
}

// Close moves the session to Closed and removes it from the registry. Closing twice is a no-op.
func (g *Gateway) Close(session *Session) {
	if !session.close() {
		return
	}
	g.registry.Leave(session)
	if g.monitoring != nil {
		g.monitoring.ConnectionClosed()
	}
	g.log.Debug("Session closed", "session", session.ID(), "user", session.UserID())
}

// join binds the session while holding its lock, so that a concurrent Close
// either sees the binding and leaves the registry, or prevents it.
func (g *Gateway) join(session *Session, userID domain.UserID) error {
	if userID == "" {
		return errors.Validation("userId is required")
	}
	if userID != session.identity.UserID {
		return errors.Unauthorized("cannot join as %s", userID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state == Closed {
		return errors.ErrConnectionClosed
	}
	session.state = Bound
	session.userID = userID
	g.registry.Join(userID, session)
	return nil
}

func (g *Gateway) send(ctx context.Context, session *Session, in Inbound) (domain.Message, error) {
	session.mu.Lock()
	state, sender := session.state, session.userID
	session.mu.Unlock()

	switch state {
	case Closed:
		return domain.Message{}, errors.ErrConnectionClosed
	case Connected:
		return domain.Message{}, errors.Unauthorized("connection is not joined")
	}
	return g.chat.Send(ctx, domain.SendCommand{
		Sender:    sender,
		Receiver:  in.Receiver,
		Content:   in.Content,
		ClientRef: in.ClientRef,
	})
}
