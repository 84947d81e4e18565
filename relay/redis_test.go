package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/mocks"
	"market-chat/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMessage() domain.Message {
	return domain.Message{ID: uuid.New(), Seq: 7, Sender: "u1", Receiver: "u2", Content: "hi", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
}

func TestRedisRelay_Handle_Delivers_Foreign_Messages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout := mocks.NewMockIFanout(ctrl)
	monitoring := observability.NewMonitoringManager(slog.Default())
	relay := NewRedisRelay(slog.Default(), nil, "chat", "instance-a", fanout, monitoring)
	message := newMessage()

	payload, err := json.Marshal(envelope{Origin: "instance-b", Message: message})
	req.NoError(err)

	// Then the message is delivered locally once
	fanout.EXPECT().Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got domain.Message) contract.DeliveryReport {
			req.Equal(message.ID, got.ID)
			req.True(message.CreatedAt.Equal(got.CreatedAt))
			return contract.DeliveryReport{Targets: 1, Delivered: 1}
		}).Times(1)

	// When a message from another instance arrives
	relay.handle(context.Background(), string(payload))

	monitoring.UpdateStats()
	req.Equal(uint64(1), monitoring.GetLatest().RelayedIn)
}

func TestRedisRelay_Handle_Skips_Own_And_Malformed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout := mocks.NewMockIFanout(ctrl)
	relay := NewRedisRelay(slog.Default(), nil, "chat", "instance-a", fanout, nil)

	own, err := json.Marshal(envelope{Origin: "instance-a", Message: newMessage()})
	req.NoError(err)

	fanout.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	relay.handle(context.Background(), string(own))
	relay.handle(context.Background(), "{broken")
}

// Requires a reachable redis, e.g. REDIS_ADDR=localhost:6379
func TestRedisRelay_Publish_Subscribe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	channel := "market-chat-test-" + uuid.NewString()
	localFanout := mocks.NewMockIFanout(ctrl)
	remoteFanout := mocks.NewMockIFanout(ctrl)
	publisher := NewRedisRelay(slog.Default(), client, channel, "a", localFanout, nil)
	subscriber := NewRedisRelay(slog.Default(), client, channel, "b", remoteFanout, nil)
	message := newMessage()

	delivered := make(chan domain.Message, 1)
	remoteFanout.EXPECT().Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got domain.Message) contract.DeliveryReport {
			delivered <- got
			return contract.DeliveryReport{}
		}).Times(1)
	localFanout.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = subscriber.Run(ctx) }()
	go func() { _ = publisher.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	req.NoError(publisher.Publish(ctx, message))

	select {
	case got := <-delivered:
		req.Equal(message.ID, got.ID)
	case <-time.After(2 * time.Second):
		req.Fail("relayed message not delivered")
	}
}
