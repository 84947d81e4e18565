// Package projection derives read models from the message history.
// Nothing here is stored, every call folds the history again.
package projection

import (
	"log/slog"
	"sort"

	"market-chat/contract"
	"market-chat/domain"

	"github.com/samber/lo"
)

var _ contract.IConversations = (*Conversations)(nil)

// Conversations folds a user's messages into one summary per counterparty.
type Conversations struct {
	store     contract.IMessageStore
	directory contract.IUserDirectory
	log       *slog.Logger
}

func NewConversations(store contract.IMessageStore, directory contract.IUserDirectory, log *slog.Logger) *Conversations {
	return &Conversations{store: store, directory: directory, log: log}
}

// ConversationsFor returns the user's conversations, most recent first.
// Ties on the last timestamp are broken by counterparty id so the order is stable.
// A counterparty with no known display name is shown with its id.
func (c *Conversations) ConversationsFor(user domain.UserID) ([]domain.ConversationSummary, error) {
	messages, err := c.store.AllInvolving(user)
	if err != nil {
		return nil, err
	}

	latest := make(map[domain.UserID]domain.Message)
	for _, message := range messages {
		if !message.Involves(user) {
			continue
		}
		counterparty := message.Counterparty(user)
		if current, ok := latest[counterparty]; !ok || current.Before(message) {
			latest[counterparty] = message
		}
	}

	names, err := c.directory.Names(lo.Keys(latest))
	if err != nil {
		c.log.Warn("Directory unavailable, falling back to ids", "user", user, "error", err)
		names = map[domain.UserID]string{}
	}

	summaries := make([]domain.ConversationSummary, 0, len(latest))
	for counterparty, message := range latest {
		name, ok := names[counterparty]
		if !ok || name == "" {
			name = string(counterparty)
		}
		summaries = append(summaries, domain.ConversationSummary{
			CounterpartyID:     counterparty,
			CounterpartyName:   name,
			LastMessageID:      message.ID,
			LastSenderID:       message.Sender,
			LastMessageContent: message.Content,
			LastMessageAt:      message.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastMessageAt.Equal(summaries[j].LastMessageAt) {
			return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
		}
		return summaries[i].CounterpartyID < summaries[j].CounterpartyID
	})
	return summaries, nil
}
