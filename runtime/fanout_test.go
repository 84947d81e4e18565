package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/mocks"
	"market-chat/observability"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMessage() domain.Message {
	return domain.Message{ID: uuid.New(), Seq: 1, Sender: "u1", Receiver: "u2", Content: "hi", CreatedAt: time.Now().UTC()}
}

func mockConnection(ctrl *gomock.Controller, id string) *mocks.MockConnection {
	conn := mocks.NewMockConnection(ctrl)
	conn.EXPECT().ID().Return(id).AnyTimes()
	return conn
}

func TestFanout_Deliver_To_Both_Participants(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	monitoring := observability.NewMonitoringManager(log)

	receiverTab := mockConnection(ctrl, "r1")
	senderTab1 := mockConnection(ctrl, "s1")
	senderTab2 := mockConnection(ctrl, "s2")
	message := newMessage()

	// Given the receiver has one tab and the sender two
	mockRegistry.EXPECT().ConnectionsFor(domain.UserID("u2")).Return([]contract.Connection{receiverTab}).Times(1)
	mockRegistry.EXPECT().ConnectionsFor(domain.UserID("u1")).Return([]contract.Connection{senderTab1, senderTab2}).Times(1)
	// Then each tab gets the message exactly once
	receiverTab.EXPECT().Push(gomock.Any(), message).Return(nil).Times(1)
	senderTab1.EXPECT().Push(gomock.Any(), message).Return(nil).Times(1)
	senderTab2.EXPECT().Push(gomock.Any(), message).Return(nil).Times(1)

	// When the message is delivered
	report := NewFanout(log, mockRegistry, monitoring, time.Second).Deliver(context.Background(), message)

	req.Equal(contract.DeliveryReport{Targets: 3, Delivered: 3}, report)
	monitoring.UpdateStats()
	req.Equal(uint64(3), monitoring.GetLatest().DeliveriesOK)
}

func TestFanout_Deliver_Dedupes_Shared_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	shared := mockConnection(ctrl, "shared")
	message := newMessage()

	// Given the same connection appears for both participants
	mockRegistry.EXPECT().ConnectionsFor(gomock.Any()).Return([]contract.Connection{shared}).Times(2)
	// Then it is pushed once
	shared.EXPECT().Push(gomock.Any(), message).Return(nil).Times(1)

	report := NewFanout(slog.Default(), mockRegistry, nil, time.Second).Deliver(context.Background(), message)

	req.Equal(1, report.Targets)
	req.Equal(1, report.Delivered)
}

func TestFanout_Deliver_Without_Connections(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockRegistry.EXPECT().ConnectionsFor(gomock.Any()).Return(nil).Times(2)

	report := NewFanout(slog.Default(), mockRegistry, nil, time.Second).Deliver(context.Background(), newMessage())

	req.Zero(report.Targets)
}

func TestFanout_Slow_Connection_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slow := mockConnection(ctrl, "slow")
	fast := mockConnection(ctrl, "fast")
	message := newMessage()

	mockRegistry.EXPECT().ConnectionsFor(domain.UserID("u2")).Return([]contract.Connection{slow}).Times(1)
	mockRegistry.EXPECT().ConnectionsFor(domain.UserID("u1")).Return([]contract.Connection{fast}).Times(1)
	// Given one connection never drains its buffer
	slow.EXPECT().Push(gomock.Any(), message).
		DoAndReturn(func(ctx context.Context, _ domain.Message) error {
			<-ctx.Done() // Waiting for the sink timeout
			return ctx.Err()
		}).Times(1)
	fast.EXPECT().Push(gomock.Any(), message).Return(nil).Times(1)

	sinkTimeout := 20 * time.Millisecond
	start := time.Now()
	report := NewFanout(log, mockRegistry, nil, sinkTimeout).Deliver(context.Background(), message)

	// Then the fast one is delivered and the slow one is dropped after the timeout
	req.Equal(contract.DeliveryReport{Targets: 2, Delivered: 1, Failed: 1}, report)
	req.Less(time.Since(start), time.Second)
}
