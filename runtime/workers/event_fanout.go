package workers

import (
	"collab-realtime/contract"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"collab-realtime/observability"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type SlowConsumerPolicy string

const (
	// PolicyDrop loses the event for that connection only.
	PolicyDrop SlowConsumerPolicy = "drop"
	// PolicyDisconnect closes the connection, its reader then triggers the usual cleanup.
	PolicyDisconnect SlowConsumerPolicy = "disconnect"
)

func ParseSlowConsumerPolicy(raw string) (SlowConsumerPolicy, error) {
	switch p := SlowConsumerPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyDrop, PolicyDisconnect:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidPolicy, raw)
	}
}

// EventFanout delivers outbound events to their resolved targets.
//
// Connection targets are offered the event without blocking: a slow client
// never stalls the router nor other clients. Permanent sinks (journal, ...)
// receive every event from a dedicated goroutine, each call bounded by
// sinkTimeout.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries.
type EventFanout struct {
	log             *slog.Logger
	monitoring      *observability.MonitoringManager
	policy          SlowConsumerPolicy
	permanentSinks  []contract.EventSink
	permanentEvents chan event.DomainEvent
	sinkTimeout     time.Duration
}

func NewEventFanout(log *slog.Logger, monitoring *observability.MonitoringManager,
	policy SlowConsumerPolicy, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:             log,
		monitoring:      monitoring,
		policy:          policy,
		permanentEvents: make(chan event.DomainEvent, bufferSize),
		sinkTimeout:     sinkTimeout,
	}
}

// Add registers sinks receiving every delivered event. Call before Run.
func (f *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	f.permanentSinks = append(f.permanentSinks, sinks...)
	return f
}

// Deliver encodes the event once, hands the frame to every target, then
// queues the event for permanent sinks.
func (f *EventFanout) Deliver(ctx context.Context, e event.DomainEvent, targets []contract.Target) {
	if len(targets) > 0 {
		encoded, err := event.EncodeOnce(e)
		if err != nil {
			f.monitoring.IncrDropped()
			f.log.Error("Unable to encode event", "event", e.Name(), "error", err)
		} else {
			for _, target := range targets {
				f.offer(ctx, encoded, target)
			}
		}
	}
	if len(f.permanentSinks) == 0 {
		return
	}
	select {
	case f.permanentEvents <- e:
	default:
		f.log.Debug("Permanent sink queue full, event lost", "event", e.Name())
	}
}

func (f *EventFanout) offer(ctx context.Context, e event.DomainEvent, target contract.Target) {
	err := target.Sink.Consume(ctx, e)
	switch {
	case err == nil:
		f.monitoring.IncrDelivered()
	case errors.Is(err, errors.ErrSlowConsumer):
		f.monitoring.IncrDropped()
		if f.policy == PolicyDisconnect {
			f.log.Warn("Slow consumer, closing connection",
				"connection_id", target.ConnectionID, "event", e.Name())
			target.Sink.Close()
			f.monitoring.IncrSlowConsumerClosed()
			return
		}
		f.log.Warn("Slow consumer, event dropped",
			"connection_id", target.ConnectionID, "event", e.Name())
	case errors.Is(err, errors.ErrConnectionClosed):
		// Gone between target resolution and delivery, nothing to notify.
		f.monitoring.IncrDropped()
		f.log.Debug("Target already closed", "connection_id", target.ConnectionID)
	default:
		f.monitoring.IncrDropped()
		f.log.Warn("Delivery failed", "connection_id", target.ConnectionID, "error", err)
	}
}

func (f *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case e := <-f.permanentEvents:
			f.consumePermanent(ctx, e)
		case <-ctx.Done():
			f.log.Debug("Context done, stopping permanent sinks fanout")
			return nil
		}
	}
}

func (f *EventFanout) consumePermanent(ctx context.Context, e event.DomainEvent) {
	for _, sink := range f.permanentSinks {
		sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
		if err := sink.Consume(sinkCtx, e); err != nil {
			f.log.Warn("Permanent sink failed", "event", e.Name(), "error", err)
		}
		cancel()
	}
}
