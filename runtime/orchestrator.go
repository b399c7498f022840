// Package runtime holds the realtime core: who is connected, who is in
// which room, and the single router that turns client events into
// outbound fan-out.
package runtime

import (
	"collab-realtime/contract"
	"collab-realtime/observability"
	"collab-realtime/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

type OrchestratorOptions struct {
	Router                RouterOptions
	PerConnectionPresence bool
	SlowConsumerPolicy    workers.SlowConsumerPolicy
	SinkTimeout           time.Duration
	MetricInterval        time.Duration
	ReportInterval        time.Duration
}

// Orchestrator wires the registry, the router and the fan-out together and
// hands their workers to the supervisor.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	monitoring *observability.MonitoringManager
	registry   *Registry
	router     *Router
	fanout     *workers.EventFanout
	sampler    *workers.ProcessSampler
	reporter   *workers.ReporterWorker
	started    bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	monitoring *observability.MonitoringManager, opts OrchestratorOptions) *Orchestrator {
	registry := NewRegistry(opts.PerConnectionPresence)
	monitoring.WithRegistry(registry.Stats)
	fanout := workers.NewEventFanout(log, monitoring, opts.SlowConsumerPolicy, opts.Router.BufferSize, opts.SinkTimeout)
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		monitoring: monitoring,
		registry:   registry,
		router:     NewRouter(log, registry, fanout, monitoring, opts.Router),
		fanout:     fanout,
		sampler:    workers.NewProcessSampler(log, monitoring, opts.MetricInterval),
		reporter:   workers.NewReporterWorker(log, monitoring, opts.ReportInterval),
	}
}

// Add registers permanent sinks, they receive every outbound event.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.fanout.Add(sinks...)
}

// Hub is the entry point of the transport layer.
func (o *Orchestrator) Hub() contract.IHub {
	return o.router
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Start registers the workers and runs the supervisor in the background.
// Calling it twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	o.supervisor.Add(o.router, o.fanout, o.sampler, o.reporter)
	go o.supervisor.Run(ctx)
	o.log.Info("Orchestrator started")
}

func (o *Orchestrator) Stop() {
	o.router.Close()
	o.supervisor.Stop()
}
