package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/observability"

	"github.com/samber/lo"
)

var _ contract.IFanout = (*Fanout)(nil)

// Fanout pushes a persisted message to every live connection of its sender and receiver.
//
// It is best effort: a slow or dead connection is given sinkTimeout and then skipped,
// it never blocks the other targets nor fails the send that produced the message.
// A connection bound to both participants is pushed once.
type Fanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	monitoring  *observability.MonitoringManager
	sinkTimeout time.Duration
}

func NewFanout(log *slog.Logger, registry contract.IRegistry, monitoring *observability.MonitoringManager, sinkTimeout time.Duration) *Fanout {
	return &Fanout{log: log, registry: registry, monitoring: monitoring, sinkTimeout: sinkTimeout}
}

func (f *Fanout) Deliver(ctx context.Context, message domain.Message) contract.DeliveryReport {
	targets := lo.UniqBy(
		append(f.registry.ConnectionsFor(message.Receiver), f.registry.ConnectionsFor(message.Sender)...),
		func(conn contract.Connection) string { return conn.ID() },
	)
	report := contract.DeliveryReport{Targets: len(targets)}
	if len(targets) == 0 {
		return report
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, conn := range targets {
		wg.Add(1)
		go func(conn contract.Connection) {
			defer wg.Done()
			pushCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
			defer cancel()

			err := conn.Push(pushCtx, message)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				f.log.Debug("Push failed", "connection", conn.ID(), "message", message.ID, "error", err)
				return
			}
			report.Delivered++
		}(conn)
	}
	wg.Wait()

	if f.monitoring != nil {
		f.monitoring.AddDeliveries(report.Delivered, report.Failed)
	}
	return report
}
