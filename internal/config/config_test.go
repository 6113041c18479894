package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/filter"
	"firestige.xyz/rxsink/internal/sink"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
rxsink:
  output_dir: "/tmp/rx"
  log:
    level: "debug"
    format: "json"
  metrics:
    listen: "127.0.0.1:9200"
  trace:
    kafka:
      enabled: true
      brokers: ["localhost:9092"]
  sinks:
    - name: "R"
      protocol: "tcp"
      local: "10.0.0.2:9000"
      total_expected_rx: 4000
      bandwidth_interval: "1s"
      window_size: 10
      sampling_policy: "cancel"
      filter:
        mode: "count"
        elements:
          - type: "source_address"
            params:
              address: "10.0.0.1"
    - name: "U"
      local: "0.0.0.0:9001"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.OutputDir != "/tmp/rx" {
		t.Errorf("Expected output_dir /tmp/rx, got %s", cfg.OutputDir)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Expected debug/json log, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9200" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.Trace.Kafka.Topic != "rxsink-packets" || cfg.Trace.Kafka.BatchTimeout != 100*time.Millisecond {
		t.Errorf("Expected kafka defaults, got %+v", cfg.Trace.Kafka)
	}
	if len(cfg.Sinks) != 2 {
		t.Fatalf("Expected 2 sinks, got %d", len(cfg.Sinks))
	}

	sc, err := cfg.Sinks[0].Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if sc.Protocol != core.ProtocolTCP {
		t.Errorf("Expected tcp, got %s", sc.Protocol)
	}
	if sc.Interval != time.Second {
		t.Errorf("Expected 1s interval, got %s", sc.Interval)
	}
	if sc.WindowSize != 10 || sc.TotalExpectedRx != 4000 {
		t.Errorf("Unexpected window/expected: %d/%d", sc.WindowSize, sc.TotalExpectedRx)
	}
	if sc.FilterMode != sink.FilterModeCount || sc.SamplingPolicy != sink.SamplingCancel {
		t.Errorf("Unexpected policies: %s/%s", sc.FilterMode, sc.SamplingPolicy)
	}
	if _, ok := sc.Filter.(filter.SourceAddress); !ok {
		t.Errorf("Expected SourceAddress filter, got %T", sc.Filter)
	}

	u := cfg.Sinks[1]
	if u.Protocol != "udp" || u.WindowSize != 20 || u.SamplingPolicy != "keep" || u.Filter.Mode != "both" {
		t.Errorf("Expected per-sink defaults, got %+v", u)
	}
	uc, err := u.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if uc.Filter != nil {
		t.Errorf("Expected no filter, got %T", uc.Filter)
	}
	if uc.Interval != 0 {
		t.Errorf("Expected sampling disabled, got %s", uc.Interval)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
rxsink:
  sinks:
    - local: "127.0.0.1:9000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.OutputDir != "." {
		t.Errorf("Expected output_dir '.', got %q", cfg.OutputDir)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Expected info/text, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Listen != ":9102" {
		t.Errorf("Expected default metrics listen, got %s", cfg.Metrics.Listen)
	}
	if cfg.Sinks[0].Name != sink.DefaultName {
		t.Errorf("Expected default sink name, got %s", cfg.Sinks[0].Name)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
rxsink:
  sinks:
    - local: "127.0.0.1:9000"
`)
	t.Setenv("RXSINK_LOG_LEVEL", "warn")
	t.Setenv("RXSINK_OUTPUT_DIR", "/var/lib/rxsink")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env override warn, got %s", cfg.Log.Level)
	}
	if cfg.OutputDir != "/var/lib/rxsink" {
		t.Errorf("Expected env override output dir, got %s", cfg.OutputDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"log level", `
rxsink:
  log: {level: "loud"}
  sinks: [{local: "127.0.0.1:9000"}]
`, "invalid log level"},
		{"log format", `
rxsink:
  log: {format: "xml"}
  sinks: [{local: "127.0.0.1:9000"}]
`, "invalid log format"},
		{"no sinks", `
rxsink:
  output_dir: "."
`, "at least one sink"},
		{"duplicate names", `
rxsink:
  sinks:
    - {local: "127.0.0.1:9000"}
    - {local: "127.0.0.1:9001"}
`, "duplicate sink name"},
		{"bad protocol", `
rxsink:
  sinks: [{local: "127.0.0.1:9000", protocol: "sctp"}]
`, "sctp"},
		{"bad local", `
rxsink:
  sinks: [{local: "localhost"}]
`, "local"},
		{"negative window", `
rxsink:
  sinks: [{local: "127.0.0.1:9000", window_size: -1}]
`, "window_size"},
		{"bad filter mode", `
rxsink:
  sinks: [{local: "127.0.0.1:9000", filter: {mode: "drop"}}]
`, "filter mode"},
		{"bad filter element", `
rxsink:
  sinks:
    - local: "127.0.0.1:9000"
      filter:
        elements: [{type: "regex"}]
`, "filter"},
		{"kafka without brokers", `
rxsink:
  trace: {kafka: {enabled: true}}
  sinks: [{local: "127.0.0.1:9000"}]
`, "trace.kafka.brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
