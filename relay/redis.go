// Package relay lets several instances of the server share live delivery.
// Each instance publishes what it persisted and delivers what the others persisted
// to its own local connections. Persistence stays the durability boundary: a lost
// relay message only means a live push is missed, history is unaffected.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/observability"

	"github.com/redis/go-redis/v9"
)

var (
	_ contract.IRelay = (*RedisRelay)(nil)
	_ contract.Worker = (*RedisRelay)(nil)
)

type envelope struct {
	Origin  string         `json:"origin"`
	Message domain.Message `json:"message"`
}

type RedisRelay struct {
	log        *slog.Logger
	client     *redis.Client
	channel    string
	origin     string
	fanout     contract.IFanout
	monitoring *observability.MonitoringManager
}

func NewRedisRelay(
	log *slog.Logger,
	client *redis.Client,
	channel, origin string,
	fanout contract.IFanout,
	monitoring *observability.MonitoringManager,
) *RedisRelay {
	return &RedisRelay{
		log:        log,
		client:     client,
		channel:    channel,
		origin:     origin,
		fanout:     fanout,
		monitoring: monitoring,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, message domain.Message) error {
	payload, err := json.Marshal(envelope{Origin: r.origin, Message: message})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run subscribes to the relay channel until ctx is done.
// A broken subscription returns an error so that the supervisor subscribes again.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("Relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("relay channel %s closed", r.channel)
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("Dropping malformed relay payload", "error", err)
		return
	}
	// Our own messages were already delivered locally
	if env.Origin == r.origin {
		return
	}
	report := r.fanout.Deliver(ctx, env.Message)
	if r.monitoring != nil {
		r.monitoring.IncrRelayedIn()
	}
	r.log.Debug("Relayed message delivered",
		"message", env.Message.ID,
		"origin", env.Origin,
		"targets", report.Targets,
		"delivered", report.Delivered,
	)
}
