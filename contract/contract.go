//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"market-chat/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// The supervisor restarts it when it panics
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live client transport bound to at most one user.
// Push must not block longer than the context allows.
type Connection interface {
	ID() string
	Push(ctx context.Context, message domain.Message) error
}

// IMessageStore is the only source of truth for message history.
type IMessageStore interface {
	Append(sender, receiver domain.UserID, content string) (domain.Message, error)
	History(userA, userB domain.UserID) ([]domain.Message, error)
	AllInvolving(user domain.UserID) ([]domain.Message, error)
}

// IUserDirectory resolves display names supplied by the identity provider.
type IUserDirectory interface {
	Upsert(user domain.User) error
	Names(ids []domain.UserID) (map[domain.UserID]string, error)
}

type IRegistry interface {
	Join(userID domain.UserID, conn Connection)
	Leave(conn Connection)
	ConnectionsFor(userID domain.UserID) []Connection
}

// IFanout pushes a persisted message to both participants' live connections.
type IFanout interface {
	Deliver(ctx context.Context, message domain.Message) DeliveryReport
}

// IRelay forwards persisted messages to other instances of the service.
type IRelay interface {
	Publish(ctx context.Context, message domain.Message) error
}

type IConversations interface {
	ConversationsFor(user domain.UserID) ([]domain.ConversationSummary, error)
}

type DeliveryReport struct {
	Targets   int
	Delivered int
	Failed    int
}
