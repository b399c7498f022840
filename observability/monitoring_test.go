package observability

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Counters_Are_Concurrent_Safe(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mm.IncrDelivered()
			mm.IncrDropped()
		}()
	}
	wg.Wait()

	stats := mm.GetLatest()
	req.Equal(uint64(50), stats.EventsDelivered)
	req.Equal(uint64(50), stats.EventsDropped)
	req.Zero(stats.EventsRejected)
}

func TestMonitoringManager_Uses_Registry_Provider(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default()).WithRegistry(func() RegistryStats {
		return RegistryStats{Connections: 3, Rooms: 2, OnlineUsers: 1}
	})
	mm.SetProcessStats(ProcessStats{RSSBytes: 1024, Status: "R"})

	stats := mm.GetLatest()
	req.Equal(3, stats.Connections)
	req.Equal(2, stats.Rooms)
	req.Equal(uint64(1024), stats.Process.RSSBytes)
	req.False(stats.SampledAt.IsZero())
}
