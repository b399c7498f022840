package workers

import (
	"bytes"
	"collab-realtime/observability"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporterWorker_Logs_Stats(t *testing.T) {
	req := require.New(t)
	out := &syncBuffer{}
	log := slog.New(slog.NewTextHandler(out, nil))
	monitoring := observability.NewMonitoringManager(log).WithRegistry(func() observability.RegistryStats {
		return observability.RegistryStats{Connections: 7, OnlineUsers: 3}
	})
	reporter := NewReporterWorker(log, monitoring, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- reporter.Run(ctx) }()

	req.Eventually(func() bool {
		return bytes.Contains([]byte(out.String()), []byte("connections=7"))
	}, time.Second, 10*time.Millisecond)

	cancel()
	req.NoError(<-done)
	req.Contains(out.String(), "online_users=3")
}
