package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
	"market-chat/observability"
)

// IChatService is what both transports (websocket and REST) talk to.
type IChatService interface {
	Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error)
	History(user, other domain.UserID) ([]domain.Message, error)
	Conversations(user domain.UserID) ([]domain.ConversationSummary, error)
	RegisterUser(user domain.User) error
}

var _ IChatService = (*ChatService)(nil)

type ChatService struct {
	log           *slog.Logger
	store         contract.IMessageStore
	fanout        contract.IFanout
	conversations contract.IConversations
	directory     contract.IUserDirectory
	relay         contract.IRelay
	monitoring    *observability.MonitoringManager
}

func NewChatService(
	log *slog.Logger,
	store contract.IMessageStore,
	fanout contract.IFanout,
	conversations contract.IConversations,
	directory contract.IUserDirectory,
	monitoring *observability.MonitoringManager,
) *ChatService {
	return &ChatService{
		log:           log,
		store:         store,
		fanout:        fanout,
		conversations: conversations,
		directory:     directory,
		monitoring:    monitoring,
	}
}

// WithRelay enables cross instance delivery.
func (s *ChatService) WithRelay(relay contract.IRelay) *ChatService {
	s.relay = relay
	return s
}

// Send persists the message then delivers it to every live connection of both participants.
// Once Append succeeded the send is a success: delivery and relay failures are only logged.
// Delivery runs on a context detached from the caller so that it completes even if
// the sender disconnects right after sending.
func (s *ChatService) Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error) {
	message, err := s.store.Append(cmd.Sender, cmd.Receiver, cmd.Content)
	if err != nil {
		if s.monitoring != nil && stderrors.Is(err, errors.ErrValidation) {
			s.monitoring.IncrMessagesRejected()
		}
		return domain.Message{}, err
	}
	if s.monitoring != nil {
		s.monitoring.IncrMessagesStored()
	}

	deliveryCtx := context.WithoutCancel(ctx)
	start := time.Now()
	report := s.fanout.Deliver(deliveryCtx, message)
	s.log.Debug("Message delivered",
		"message", message.ID,
		"seq", message.Seq,
		"targets", report.Targets,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"duration", time.Since(start),
	)

	if s.relay != nil {
		if err := s.relay.Publish(deliveryCtx, message); err != nil {
			s.log.Warn("Relay publish failed", "message", message.ID, "error", err)
		} else if s.monitoring != nil {
			s.monitoring.IncrRelayedOut()
		}
	}
	return message, nil
}

func (s *ChatService) History(user, other domain.UserID) ([]domain.Message, error) {
	if user == "" || other == "" {
		return nil, errors.Validation("both participants are required")
	}
	return s.store.History(user, other)
}

func (s *ChatService) Conversations(user domain.UserID) ([]domain.ConversationSummary, error) {
	if user == "" {
		return nil, errors.Validation("user is required")
	}
	return s.conversations.ConversationsFor(user)
}

// RegisterUser records the display name carried by the identity.
func (s *ChatService) RegisterUser(user domain.User) error {
	return s.directory.Upsert(user)
}
