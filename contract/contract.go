//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
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

// EventSink receives outbound events.
// A connection sink must never block: a full queue returns errors.ErrSlowConsumer.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	Close()
}

// Target is one resolved fan-out destination.
type Target struct {
	ConnectionID domain.ConnectionID
	Sink         EventSink
}

type IFanout interface {
	Deliver(ctx context.Context, e event.DomainEvent, targets []Target)
}

// IHub is what the transport layer sees of the realtime core.
type IHub interface {
	Connect(sink EventSink) domain.ConnectionID
	Submit(connID domain.ConnectionID, env event.Envelope) bool
	Disconnect(connID domain.ConnectionID)
}
