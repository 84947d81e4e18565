package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationSummary is derived on read: one row per counterparty, never persisted.
type ConversationSummary struct {
	CounterpartyID     UserID    `json:"counterpartyId"`
	CounterpartyName   string    `json:"counterpartyName"`
	LastMessageID      uuid.UUID `json:"lastMessageId"`
	LastSenderID       UserID    `json:"lastSenderId"`
	LastMessageContent string    `json:"lastMessageContent"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
}

// User is a directory entry filled from the identity provider claims.
type User struct {
	ID        UserID    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}
