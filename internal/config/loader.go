package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/rxsink/internal/bandwidth"
	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/filter"
	"firestige.xyz/rxsink/internal/sink"
)

// configRoot is the top-level wrapper matching the YAML structure `rxsink: ...`.
type configRoot struct {
	RxSink Config `mapstructure:"rxsink"`
}

// Load loads configuration from file.
// The YAML file uses `rxsink:` as root key; env vars map through the key replacer
// (key "rxsink.log.level" → env "RXSINK_LOG_LEVEL").
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.RxSink

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "rxsink." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("rxsink.output_dir", ".")

	// Log defaults
	v.SetDefault("rxsink.log.level", "info")
	v.SetDefault("rxsink.log.format", "text")
	v.SetDefault("rxsink.log.outputs.file.enabled", false)
	v.SetDefault("rxsink.log.outputs.file.path", "rxsink.log")
	v.SetDefault("rxsink.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("rxsink.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("rxsink.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("rxsink.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("rxsink.metrics.enabled", true)
	v.SetDefault("rxsink.metrics.listen", ":9102")
	v.SetDefault("rxsink.metrics.path", "/metrics")

	// Trace defaults
	v.SetDefault("rxsink.trace.log", false)
	v.SetDefault("rxsink.trace.nats.enabled", false)
	v.SetDefault("rxsink.trace.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("rxsink.trace.nats.subject", "rxsink.packets")
	v.SetDefault("rxsink.trace.nats.queue_size", 1024)
	v.SetDefault("rxsink.trace.kafka.enabled", false)
	v.SetDefault("rxsink.trace.kafka.topic", "rxsink-packets")
	v.SetDefault("rxsink.trace.kafka.compression", "snappy")
	v.SetDefault("rxsink.trace.kafka.batch_size", 100)
	v.SetDefault("rxsink.trace.kafka.batch_timeout", "100ms")
	v.SetDefault("rxsink.trace.kafka.queue_size", 1024)
}

// ValidateAndApplyDefaults validates configuration and fills per-sink defaults,
// which viper cannot express for list elements.
func (cfg *Config) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Trace.NATS.Enabled && cfg.Trace.NATS.URL == "" {
		return fmt.Errorf("%w: trace.nats.url is required when trace.nats.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Trace.Kafka.Enabled && len(cfg.Trace.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: trace.kafka.brokers is required when trace.kafka.enabled=true", core.ErrConfigInvalid)
	}

	if len(cfg.Sinks) == 0 {
		return fmt.Errorf("%w: at least one sink is required", core.ErrConfigInvalid)
	}
	seen := make(map[string]bool, len(cfg.Sinks))
	for i := range cfg.Sinks {
		sc := &cfg.Sinks[i]
		sc.applyDefaults()
		if seen[sc.Name] {
			return fmt.Errorf("%w: duplicate sink name %q", core.ErrConfigInvalid, sc.Name)
		}
		seen[sc.Name] = true
		if _, err := sc.Build(); err != nil {
			return fmt.Errorf("sinks[%d]: %w", i, err)
		}
	}
	return nil
}

func (sc *SinkConfig) applyDefaults() {
	if sc.Name == "" {
		sc.Name = sink.DefaultName
	}
	if sc.Protocol == "" {
		sc.Protocol = string(core.ProtocolUDP)
	}
	if sc.WindowSize == 0 {
		sc.WindowSize = bandwidth.DefaultSize
	}
	if sc.SamplingPolicy == "" {
		sc.SamplingPolicy = string(sink.SamplingKeep)
	}
	if sc.Filter.Mode == "" {
		sc.Filter.Mode = string(sink.FilterModeBoth)
	}
}

// Build converts the configuration into a sink.Config, constructing the filter.
func (sc SinkConfig) Build() (sink.Config, error) {
	proto, err := core.ParseProtocol(sc.Protocol)
	if err != nil {
		return sink.Config{}, err
	}
	local, err := netip.ParseAddrPort(sc.Local)
	if err != nil {
		return sink.Config{}, fmt.Errorf("%w: sink %s: local %q: %v", core.ErrConfigInvalid, sc.Name, sc.Local, err)
	}
	if sc.BandwidthInterval < 0 {
		return sink.Config{}, fmt.Errorf("%w: sink %s: bandwidth_interval must be >= 0", core.ErrConfigInvalid, sc.Name)
	}
	if sc.WindowSize < 1 {
		return sink.Config{}, fmt.Errorf("%w: sink %s: window_size must be >= 1", core.ErrConfigInvalid, sc.Name)
	}
	mode, err := sink.ParseFilterMode(sc.Filter.Mode)
	if err != nil {
		return sink.Config{}, err
	}
	policy, err := sink.ParseSamplingPolicy(sc.SamplingPolicy)
	if err != nil {
		return sink.Config{}, err
	}
	f, err := filter.Build(sc.Filter.Elements)
	if err != nil {
		return sink.Config{}, fmt.Errorf("sink %s filter: %w", sc.Name, err)
	}
	return sink.Config{
		Name:               sc.Name,
		Protocol:           proto,
		Local:              local,
		TotalExpectedRx:    sc.TotalExpectedRx,
		Interval:           sc.BandwidthInterval,
		WindowSize:         sc.WindowSize,
		Filter:             f,
		FilterMode:         mode,
		SamplingPolicy:     policy,
		MulticastInterface: sc.MulticastIfIndex,
	}, nil
}

// SinkConfigs builds every configured sink.
func (cfg *Config) SinkConfigs() ([]sink.Config, error) {
	out := make([]sink.Config, 0, len(cfg.Sinks))
	for _, sc := range cfg.Sinks {
		c, err := sc.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
