package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RegistryStats is the gauge part of the stats, read from the connection registry.
type RegistryStats struct {
	Connections           int `json:"connections"`
	IdentifiedConnections int `json:"identified_connections"`
	Rooms                 int `json:"rooms"`
	OnlineUsers           int `json:"online_users"`
}

// ProcessStats is sampled periodically from the OS.
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Status     string  `json:"status"`
}

// MonitoringStats aggregates every metric exposed on /debug/stats
type MonitoringStats struct {
	RegistryStats
	Process ProcessStats `json:"process"`

	EventsDelivered     uint64 `json:"events_delivered"`
	EventsDropped       uint64 `json:"events_dropped"`
	EventsRejected      uint64 `json:"events_rejected"`
	CommandsDropped     uint64 `json:"commands_dropped"`
	DisconnectsDeferred uint64 `json:"disconnects_deferred"`
	SlowConsumerClosed  uint64 `json:"slow_consumer_closed"`

	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

type RegistryStatsProvider func() RegistryStats

// MonitoringManager holds realtime counters.
// Counters are atomics, the sampled part is guarded by mu.
type MonitoringManager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	process  ProcessStats
	sampled  time.Time
	registry RegistryStatsProvider

	eventsDelivered     uint64
	eventsDropped       uint64
	eventsRejected      uint64
	commandsDropped     uint64
	disconnectsDeferred uint64
	slowConsumerClosed  uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

// WithRegistry plugs the gauge provider, usually Registry.Stats.
func (mm *MonitoringManager) WithRegistry(provider RegistryStatsProvider) *MonitoringManager {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.registry = provider
	return mm
}

func (mm *MonitoringManager) IncrDelivered() {
	atomic.AddUint64(&mm.eventsDelivered, 1)
}

func (mm *MonitoringManager) IncrDropped() {
	atomic.AddUint64(&mm.eventsDropped, 1)
}

func (mm *MonitoringManager) IncrRejected() {
	atomic.AddUint64(&mm.eventsRejected, 1)
}

func (mm *MonitoringManager) IncrCommandsDropped() {
	atomic.AddUint64(&mm.commandsDropped, 1)
}

// IncrDisconnectsDeferred counts disconnects that found the router queue full.
func (mm *MonitoringManager) IncrDisconnectsDeferred() {
	atomic.AddUint64(&mm.disconnectsDeferred, 1)
}

func (mm *MonitoringManager) IncrSlowConsumerClosed() {
	atomic.AddUint64(&mm.slowConsumerClosed, 1)
}

// SetProcessStats is called by the process sampler.
func (mm *MonitoringManager) SetProcessStats(stats ProcessStats) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.process = stats
	mm.sampled = time.Now().UTC()
	mm.log.Debug("Process stats sampled",
		"rss_bytes", stats.RSSBytes,
		"cpu_percent", stats.CPUPercent,
		"status", stats.Status,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	process, sampled, provider := mm.process, mm.sampled, mm.registry
	mm.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := MonitoringStats{
		Process:             process,
		EventsDelivered:     atomic.LoadUint64(&mm.eventsDelivered),
		EventsDropped:       atomic.LoadUint64(&mm.eventsDropped),
		EventsRejected:      atomic.LoadUint64(&mm.eventsRejected),
		CommandsDropped:     atomic.LoadUint64(&mm.commandsDropped),
		DisconnectsDeferred: atomic.LoadUint64(&mm.disconnectsDeferred),
		SlowConsumerClosed:  atomic.LoadUint64(&mm.slowConsumerClosed),
		AllocMemMb:          m.Alloc / 1024 / 1024,
		NumGC:               m.NumGC,
		Goroutines:          runtime.NumGoroutine(),
		SampledAt:           sampled,
	}
	if provider != nil {
		stats.RegistryStats = provider()
	}
	return stats
}
