// Package kafkaexport writes trace events to a Kafka topic as JSON.
package kafkaexport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/core/decoder"
	"firestige.xyz/rxsink/internal/trace"
)

const (
	name                = "kafka"
	defaultTopic        = "rxsink-packets"
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	writeTimeout        = 10 * time.Second
)

// Writer is the part of *kafka.Writer the exporter uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the exporter.
type Config struct {
	Brokers      []string
	Topic        string
	Compression  string // none|gzip|snappy|lz4|zstd, default snappy
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// Record is the JSON document written per event.
type Record struct {
	Sink    string  `json:"sink"`
	Time    float64 `json:"time"`
	Bytes   int     `json:"bytes"`
	From    string  `json:"from"`
	SrcIP   string  `json:"src_ip,omitempty"`
	DstIP   string  `json:"dst_ip,omitempty"`
	IPProto uint8   `json:"ip_proto,omitempty"`
	SrcPort uint16  `json:"src_port,omitempty"`
	DstPort uint16  `json:"dst_port,omitempty"`
}

// Exporter is a trace.Observer backed by a Kafka writer.
type Exporter struct {
	writer Writer
	queue  *trace.Async[kafka.Message]
}

var _ trace.Observer = (*Exporter)(nil)

// Dial builds a *kafka.Writer from cfg.
func Dial(cfg Config) (*Exporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", core.ErrConfigInvalid)
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{},
		BatchSize:        cfg.BatchSize,
		BatchTimeout:     cfg.BatchTimeout,
		MaxAttempts:      defaultMaxAttempts,
		CompressionCodec: codec,
	})
	slog.Info("kafka trace exporter started",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"compression", cfg.Compression)
	return New(w, cfg), nil
}

// New returns an exporter writing to w.
func New(w Writer, cfg Config) *Exporter {
	e := &Exporter{writer: w}
	e.queue = trace.NewAsync(name, cfg.QueueSize, func(msg kafka.Message) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return e.writer.WriteMessages(ctx, msg)
	})
	return e
}

func (e *Exporter) Observe(ev trace.Event) {
	value, err := json.Marshal(NewRecord(ev))
	if err != nil {
		slog.Warn("failed to encode trace event", "exporter", name, "error", err)
		return
	}
	e.queue.Offer(kafka.Message{
		Key:   []byte(ev.Sink),
		Value: value,
		Time:  time.Now(),
	})
}

// Close flushes queued events and closes the writer.
func (e *Exporter) Close() error {
	e.queue.Close()
	if err := e.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// NewRecord flattens ev, adding decoded header fields when available.
func NewRecord(ev trace.Event) Record {
	r := Record{
		Sink:  ev.Sink,
		Time:  ev.Time.Seconds(),
		Bytes: ev.Size(),
		From:  ev.From.String(),
	}
	if h, err := decoder.Decode(ev.Packet); err == nil {
		r.SrcIP = h.SrcIP.String()
		r.DstIP = h.DstIP.String()
		r.IPProto = h.Protocol
		r.SrcPort = h.SrcPort
		r.DstPort = h.DstPort
	}
	return r
}

func compressionCodec(s string) (kafka.CompressionCodec, error) {
	switch s {
	case "", defaultCompression:
		return compress.Snappy.Codec(), nil
	case "none":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	case "zstd":
		return compress.Zstd.Codec(), nil
	default:
		return nil, fmt.Errorf("%w: invalid compression type: %s", core.ErrConfigInvalid, s)
	}
}
