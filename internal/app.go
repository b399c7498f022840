package internal

import (
	"collab-realtime/infrastructure/api"
	"collab-realtime/infrastructure/storage"
	"collab-realtime/infrastructure/websocket"
	"collab-realtime/observability"
	"collab-realtime/runtime"
	"collab-realtime/runtime/workers"
	"collab-realtime/services"
	"collab-realtime/sink"
	"context"
	"log/slog"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

// App is the whole server minus its listeners, so tests can mount it on
// an httptest server.
type App struct {
	Orchestrator *runtime.Orchestrator
	Monitoring   *observability.MonitoringManager
	Handler      http.Handler
}

func NewApp(log *slog.Logger, config Config, db *badger.DB) (*App, error) {
	policy, err := workers.ParseSlowConsumerPolicy(config.SlowConsumerPolicy)
	if err != nil {
		return nil, err
	}

	monitoring := observability.NewMonitoringManager(log)
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, monitoring, runtime.OrchestratorOptions{
		Router: runtime.RouterOptions{
			BufferSize:        config.BufferSize,
			RequireMembership: config.RequireMembership,
			MaxRoomIDLength:   config.MaxRoomIDLength,
		},
		PerConnectionPresence: config.PresencePerConnection,
		SlowConsumerPolicy:    policy,
		SinkTimeout:           config.SinkTimeout,
		MetricInterval:        config.MetricInterval,
		ReportInterval:        config.ReportInterval,
	})

	repository := storage.NewPresenceRepository(db, log)
	orchestrator.Add(sink.NewJournalSink(log, repository))

	socket := websocket.NewHandler(log, orchestrator.Hub(), config.Origins(), websocket.Options{
		SendBufferSize: config.ConnectionBufferSize,
		MaxFrameBytes:  config.MaxFrameBytes,
		PongWait:       config.PongWait,
		WriteWait:      config.WriteWait,
	})
	presence := services.NewPresenceService(orchestrator.Registry(), repository)

	return &App{
		Orchestrator: orchestrator,
		Monitoring:   monitoring,
		Handler:      api.NewMux(log, socket, presence, monitoring),
	}, nil
}

func (a *App) Start(ctx context.Context) {
	a.Orchestrator.Start(ctx)
}

func (a *App) Stop() {
	a.Orchestrator.Stop()
}
