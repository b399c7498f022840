package internal

import (
	"collab-realtime/runtime/workers"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/samber/lo"
)

type Config struct {
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=3001"`
	GRPCPort              int           `env:"GRPC_PORT,default=3002"`
	LogLevel              string        `env:"LOG_LEVEL,default=INFO"`
	BufferSize            int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize  int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SlowConsumerPolicy    string        `env:"SLOW_CONSUMER_POLICY,default=disconnect"`
	PresencePerConnection bool          `env:"PRESENCE_PER_CONNECTION,default=false"`
	RequireMembership     bool          `env:"REQUIRE_MEMBERSHIP,default=true"`
	MaxFrameBytes         int64         `env:"MAX_FRAME_BYTES,default=65536"`
	MaxRoomIDLength       int           `env:"MAX_ROOM_ID_LENGTH,default=128"`
	PongWait              time.Duration `env:"PONG_WAIT,default=60s"`
	WriteWait             time.Duration `env:"WRITE_WAIT,default=10s"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,default=1s"`
	SinkTimeout           time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval        time.Duration `env:"METRIC_INTERVAL,default=10s"`
	ReportInterval        time.Duration `env:"REPORT_INTERVAL,default=1m"`
	BadgerFilepath        string        `env:"BADGER_FILEPATH"`
	AllowedOrigins        string        `env:"ALLOWED_ORIGINS,default=*"`
}

// LoadConfig reads the environment, .env must already be loaded.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if _, err := workers.ParseSlowConsumerPolicy(c.SlowConsumerPolicy); err != nil {
		return err
	}
	positives := map[string]int64{
		"BUFFER_SIZE":            int64(c.BufferSize),
		"CONNECTION_BUFFER_SIZE": int64(c.ConnectionBufferSize),
		"MAX_FRAME_BYTES":        c.MaxFrameBytes,
		"MAX_ROOM_ID_LENGTH":     int64(c.MaxRoomIDLength),
		"PONG_WAIT":              int64(c.PongWait),
		"WRITE_WAIT":             int64(c.WriteWait),
		"METRIC_INTERVAL":        int64(c.MetricInterval),
		"REPORT_INTERVAL":        int64(c.ReportInterval),
		"RESTART_INTERVAL":       int64(c.RestartInterval),
		"SINK_TIMEOUT":           int64(c.SinkTimeout),
	}
	for _, key := range lo.Keys(positives) {
		if positives[key] <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, positives[key])
		}
	}
	if c.Port == c.GRPCPort {
		return fmt.Errorf("PORT and GRPC_PORT must differ, both are %d", c.Port)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// Origins splits ALLOWED_ORIGINS, an empty list means any origin.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Compact(origins)
}
