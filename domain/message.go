// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once the store has assigned their identity.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID is the opaque identity handed over by the identity provider.
type UserID string

// Message is a persisted chat message between two users.
// ID and Seq are assigned together by the store, Seq is strictly increasing per store
// and CreatedAt never goes backwards, so (CreatedAt, Seq) is a stable total order.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	Sender    UserID    `json:"sender"`
	Receiver  UserID    `json:"receiver"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Before reports whether m is ordered before other.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

func (m Message) Involves(user UserID) bool {
	return m.Sender == user || m.Receiver == user
}

// Counterparty returns the other participant from the point of view of user.
func (m Message) Counterparty(user UserID) UserID {
	if m.Sender == user {
		return m.Receiver
	}
	return m.Sender
}
