package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats aggregates the metrics exposed on /debug/stats.
type MonitoringStats struct {
	MessagesStored     uint64  `json:"messages_stored"`
	MessagesRejected   uint64  `json:"messages_rejected"`
	DeliveriesOK       uint64  `json:"deliveries_ok"`
	DeliveriesFailed   uint64  `json:"deliveries_failed"`
	RelayedIn          uint64  `json:"relayed_in"`
	RelayedOut         uint64  `json:"relayed_out"`
	OpenConnections    int64   `json:"open_connections"`
	BoundConnections   int     `json:"bound_connections"`
	DeliveriesPerSec   float64 `json:"deliveries_per_sec"`
	ProcessRSSBytes    uint64  `json:"process_rss_bytes"`
	ProcessCPUPercent  float64 `json:"process_cpu_percent"`
	ProcessStatus      string  `json:"process_status"`
	AllocMemMb         uint64  `json:"alloc_mem_mb"`
	NumGC              uint32  `json:"num_gc"`
	NumGoroutine       int     `json:"num_goroutine"`
	LastUpdateUnixNano int64   `json:"last_update_unix_nano"`
}

// ProcessStats is filled by the heartbeat worker.
type ProcessStats struct {
	RSSBytes   uint64
	CPUPercent float64
	Status     string
}

// MonitoringManager holds real time counters, incremented from the hot path without locking.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	boundCount  func() int

	messagesStored   uint64
	messagesRejected uint64
	deliveriesOK     uint64
	deliveriesFailed uint64
	relayedIn        uint64
	relayedOut       uint64
	openConnections  int64

	windowDeliveries uint64
	lastCheck        time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log, lastCheck: time.Now()}
}

// WithBoundCount plugs the registry connection counter.
func (mm *MonitoringManager) WithBoundCount(count func() int) *MonitoringManager {
	mm.boundCount = count
	return mm
}

func (mm *MonitoringManager) IncrMessagesStored()   { atomic.AddUint64(&mm.messagesStored, 1) }
func (mm *MonitoringManager) IncrMessagesRejected() { atomic.AddUint64(&mm.messagesRejected, 1) }
func (mm *MonitoringManager) IncrRelayedIn()        { atomic.AddUint64(&mm.relayedIn, 1) }
func (mm *MonitoringManager) IncrRelayedOut()       { atomic.AddUint64(&mm.relayedOut, 1) }
func (mm *MonitoringManager) ConnectionOpened()     { atomic.AddInt64(&mm.openConnections, 1) }
func (mm *MonitoringManager) ConnectionClosed()     { atomic.AddInt64(&mm.openConnections, -1) }

// AddDeliveries records the outcome of one fanout.
func (mm *MonitoringManager) AddDeliveries(delivered, failed int) {
	atomic.AddUint64(&mm.deliveriesOK, uint64(delivered))
	atomic.AddUint64(&mm.deliveriesFailed, uint64(failed))
	atomic.AddUint64(&mm.windowDeliveries, uint64(delivered))
}

// RecordProcess stores the last process sample.
func (mm *MonitoringManager) RecordProcess(stats ProcessStats) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.ProcessRSSBytes = stats.RSSBytes
	mm.latestStats.ProcessCPUPercent = stats.CPUPercent
	mm.latestStats.ProcessStatus = stats.Status
}

// Listen refreshes the snapshot every interval until ctx is done.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.UpdateStats()
		}
	}
}

// UpdateStats computes rates and copies the counters into the snapshot.
func (mm *MonitoringManager) UpdateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(mm.lastCheck).Seconds()
	if duration > 0 {
		window := atomic.SwapUint64(&mm.windowDeliveries, 0)
		mm.latestStats.DeliveriesPerSec = float64(window) / duration
	}
	mm.lastCheck = now

	mm.latestStats.MessagesStored = atomic.LoadUint64(&mm.messagesStored)
	mm.latestStats.MessagesRejected = atomic.LoadUint64(&mm.messagesRejected)
	mm.latestStats.DeliveriesOK = atomic.LoadUint64(&mm.deliveriesOK)
	mm.latestStats.DeliveriesFailed = atomic.LoadUint64(&mm.deliveriesFailed)
	mm.latestStats.RelayedIn = atomic.LoadUint64(&mm.relayedIn)
	mm.latestStats.RelayedOut = atomic.LoadUint64(&mm.relayedOut)
	mm.latestStats.OpenConnections = atomic.LoadInt64(&mm.openConnections)
	if mm.boundCount != nil {
		mm.latestStats.BoundConnections = mm.boundCount()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.NumGoroutine = runtime.NumGoroutine()
	mm.latestStats.LastUpdateUnixNano = now.UnixNano()

	mm.log.Debug("Stats updated",
		"messages_stored", mm.latestStats.MessagesStored,
		"deliveries_per_sec", mm.latestStats.DeliveriesPerSec,
		"open_connections", mm.latestStats.OpenConnections,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
