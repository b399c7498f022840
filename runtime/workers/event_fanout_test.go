package workers

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"collab-realtime/mocks"
	"collab-realtime/observability"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newFanout(policy SlowConsumerPolicy) (*EventFanout, *observability.MonitoringManager) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	return NewEventFanout(log, monitoring, policy, 10, 20*time.Millisecond), monitoring
}

func TestEventFanout_Deliver_To_Every_Target(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout, monitoring := newFanout(PolicyDisconnect)

	sink1 := mocks.NewMockEventSink(ctrl)
	sink2 := mocks.NewMockEventSink(ctrl)
	evt := event.NewMessage{Room: "proj-42"}
	expected, err := event.EncodeOnce(evt)
	req.NoError(err)

	// Given two targets accepting the event
	var frames [][]byte
	record := func(_ context.Context, e event.DomainEvent) error {
		frames = append(frames, e.(event.Encoded).Frame)
		return nil
	}
	sink1.EXPECT().Consume(gomock.Any(), expected).DoAndReturn(record).Times(1)
	sink2.EXPECT().Consume(gomock.Any(), expected).DoAndReturn(record).Times(1)

	// When the event is delivered
	fanout.Deliver(context.Background(), evt, []contract.Target{
		{ConnectionID: "c1", Sink: sink1},
		{ConnectionID: "c2", Sink: sink2},
	})

	// Then both got it once
	req.Equal(uint64(2), monitoring.GetLatest().EventsDelivered)
	// And they share the frame encoded once
	req.Len(frames, 2)
	req.Same(&frames[0][0], &frames[1][0])
	req.Equal(evt, event.Unwrap(expected))
}

func TestEventFanout_Slow_Consumer_Is_Closed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout, monitoring := newFanout(PolicyDisconnect)

	slow := mocks.NewMockEventSink(ctrl)
	fast := mocks.NewMockEventSink(ctrl)

	// Given a target whose queue is full
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrSlowConsumer).Times(1)
	slow.EXPECT().Close().Times(1)
	// And a healthy one after it
	fast.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	fanout.Deliver(context.Background(), event.NewMessage{Room: "proj-42"}, []contract.Target{
		{ConnectionID: "slow", Sink: slow},
		{ConnectionID: "fast", Sink: fast},
	})

	// Then the slow one is closed and the other still served
	stats := monitoring.GetLatest()
	req.Equal(uint64(1), stats.EventsDelivered)
	req.Equal(uint64(1), stats.EventsDropped)
	req.Equal(uint64(1), stats.SlowConsumerClosed)
}

func TestEventFanout_Slow_Consumer_Drop_Policy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout, monitoring := newFanout(PolicyDrop)

	slow := mocks.NewMockEventSink(ctrl)
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrSlowConsumer).Times(1)
	slow.EXPECT().Close().Times(0)

	fanout.Deliver(context.Background(), event.NewMessage{Room: "proj-42"},
		[]contract.Target{{ConnectionID: "slow", Sink: slow}})

	require.Zero(t, monitoring.GetLatest().SlowConsumerClosed)
}

func TestEventFanout_Permanent_Sinks(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout, _ := newFanout(PolicyDisconnect)

	journal := mocks.NewMockEventSink(ctrl)
	fanout.Add(journal)

	done := make(chan struct{})
	evt := event.UserStatus{Identity: domain.Identity{UserID: "u1"}, Status: domain.StatusOffline}

	// Given a permanent sink expecting the event
	journal.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			close(done)
			return nil
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When a global event without connection targets is delivered
	fanout.Deliver(ctx, evt, nil)

	// Then the permanent sink consumes it
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Permanent sink was not called in time")
	}
}

func TestEventFanout_Permanent_Sink_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanout, _ := newFanout(PolicyDisconnect)

	journal := mocks.NewMockEventSink(ctrl)
	fanout.Add(journal)

	done := make(chan error, 1)
	journal.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			done <- ctx.Err()
			return ctx.Err()
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	fanout.Deliver(ctx, event.NewMessage{Room: "proj-42"}, nil)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		require.Fail(t, "Sink timeout was not enforced")
	}
}

func TestParseSlowConsumerPolicy(t *testing.T) {
	req := require.New(t)

	policy, err := ParseSlowConsumerPolicy(" Drop ")
	req.NoError(err)
	req.Equal(PolicyDrop, policy)

	_, err = ParseSlowConsumerPolicy("block")
	req.ErrorIs(err, errors.ErrInvalidPolicy)
}
