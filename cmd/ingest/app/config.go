package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/groundstation-io/vrt-ingest/internal/source"
)

// Config is the top level daemon configuration.
type Config struct {
	Settings Settings       `yaml:"settings"`
	Source   source.Config  `yaml:"source"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Storage  StorageConfig  `yaml:"storage"`
	Streams  StreamsConfig  `yaml:"streams"`
}

// Settings holds global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`

	// MetricsListen exposes Prometheus metrics over HTTP when set,
	// e.g. ":9090".
	MetricsListen string `yaml:"metricsListen"`
}

// Level maps the configured log level name to a slog level. Unknown
// names fall back to info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ReceiverConfig tunes the receive pipeline.
type ReceiverConfig struct {
	ReorderDepth   int          `yaml:"reorderDepth"`
	ReorderHorizon TimeDuration `yaml:"reorderHorizon"`
	ChannelDepth   int          `yaml:"channelDepth"`
	EmitTimeout    TimeDuration `yaml:"emitTimeout"`
}

// StorageConfig locates the capture database.
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// StreamsConfig controls stream housekeeping.
type StreamsConfig struct {
	// StaleAfter is how long a stream may stay silent before it is
	// reported idle. Zero disables the check.
	StaleAfter TimeDuration `yaml:"staleAfter"`

	// StatsInterval is the period of the throughput log line.
	StatsInterval TimeDuration `yaml:"statsInterval"`
}

// TimeDuration is a time.Duration with YAML support in Go duration
// syntax ("250ms", "1m30s").
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the parts a zero default cannot cover.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Receiver.ReorderDepth < 0 {
		return fmt.Errorf("receiver: reorder depth must not be negative, got %d", c.Receiver.ReorderDepth)
	}
	if d := time.Duration(c.Receiver.ReorderHorizon); d < 0 {
		return fmt.Errorf("receiver: reorder horizon must not be negative, got %s", d)
	}
	if d := time.Duration(c.Streams.StaleAfter); d < 0 {
		return fmt.Errorf("streams: staleAfter must not be negative, got %s", d)
	}
	return nil
}
