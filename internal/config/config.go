// Package config handles configuration loading using viper.
package config

import (
	"time"

	"firestige.xyz/rxsink/internal/filter"
)

// Config represents the top-level configuration.
// Maps to the `rxsink:` root key in YAML.
type Config struct {
	OutputDir string        `mapstructure:"output_dir" yaml:"output_dir"`
	Log       LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Trace     TraceConfig   `mapstructure:"trace" yaml:"trace"`
	Sinks     []SinkConfig  `mapstructure:"sinks" yaml:"sinks"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus and status endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Trace ───

// TraceConfig selects the observers attached to the trace bus.
type TraceConfig struct {
	Log   bool             `mapstructure:"log" yaml:"log"` // debug line per packet
	NATS  NATSTraceConfig  `mapstructure:"nats" yaml:"nats"`
	Kafka KafkaTraceConfig `mapstructure:"kafka" yaml:"kafka"`
}

// NATSTraceConfig configures the NATS exporter.
type NATSTraceConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	URL       string `mapstructure:"url" yaml:"url"`
	Subject   string `mapstructure:"subject" yaml:"subject"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// KafkaTraceConfig configures the Kafka exporter.
type KafkaTraceConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	Compression  string        `mapstructure:"compression" yaml:"compression"` // none|gzip|snappy|lz4|zstd
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// ─── Sinks ───

// SinkConfig is one receive endpoint.
type SinkConfig struct {
	Name              string        `mapstructure:"name" yaml:"name"`
	Protocol          string        `mapstructure:"protocol" yaml:"protocol"` // udp | tcp
	Local             string        `mapstructure:"local" yaml:"local"`       // ip:port
	TotalExpectedRx   uint64        `mapstructure:"total_expected_rx" yaml:"total_expected_rx"`
	BandwidthInterval time.Duration `mapstructure:"bandwidth_interval" yaml:"bandwidth_interval"` // 0 disables sampling
	WindowSize        int           `mapstructure:"window_size" yaml:"window_size"`
	SamplingPolicy    string        `mapstructure:"sampling_policy" yaml:"sampling_policy"` // keep | cancel
	MulticastIfIndex  int           `mapstructure:"multicast_ifindex" yaml:"multicast_ifindex"`
	Filter            FilterConfig  `mapstructure:"filter" yaml:"filter"`
}

// FilterConfig holds the filter elements of a sink and how non-matching packets are treated.
type FilterConfig struct {
	Mode     string        `mapstructure:"mode" yaml:"mode"` // count | trace | both
	Elements []filter.Spec `mapstructure:"elements" yaml:"elements,omitempty"`
}
