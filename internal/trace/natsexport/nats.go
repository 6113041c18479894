// Package natsexport publishes trace events to a NATS subject as protobuf Struct messages.
package natsexport

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/rxsink/internal/core/decoder"
	"firestige.xyz/rxsink/internal/trace"
)

const (
	name           = "nats"
	defaultSubject = "rxsink.packets"
)

// Conn is the part of *nats.Conn the exporter uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Config configures the exporter.
type Config struct {
	URL       string
	Subject   string
	QueueSize int
}

// Exporter is a trace.Observer. Events are encoded on the publishing goroutine and sent
// from a background worker.
type Exporter struct {
	conn    Conn
	subject string
	queue   *trace.Async[[]byte]
}

var _ trace.Observer = (*Exporter)(nil)

// Connect dials the NATS server in cfg.URL.
func Connect(cfg Config) (*Exporter, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("rxsink"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	slog.Info("connected to NATS server", "url", cfg.URL, "subject", cfg.Subject)
	return New(nc, cfg), nil
}

// New returns an exporter publishing on conn.
func New(conn Conn, cfg Config) *Exporter {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	e := &Exporter{conn: conn, subject: subject}
	e.queue = trace.NewAsync(name, cfg.QueueSize, func(data []byte) error {
		return e.conn.Publish(e.subject, data)
	})
	return e
}

func (e *Exporter) Observe(ev trace.Event) {
	data, err := Encode(ev)
	if err != nil {
		slog.Warn("failed to encode trace event", "exporter", name, "error", err)
		return
	}
	e.queue.Offer(data)
}

// Close flushes queued events and drains the connection.
func (e *Exporter) Close() error {
	e.queue.Close()
	if err := e.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	slog.Info("NATS connection drained and closed")
	return nil
}

// Encode converts ev to a serialized google.protobuf.Struct.
func Encode(ev trace.Event) ([]byte, error) {
	fields := map[string]any{
		"sink":  ev.Sink,
		"time":  ev.Time.Seconds(),
		"bytes": float64(ev.Size()),
		"from":  ev.From.String(),
	}
	if h, err := decoder.Decode(ev.Packet); err == nil {
		fields["src_ip"] = h.SrcIP.String()
		fields["dst_ip"] = h.DstIP.String()
		fields["ip_proto"] = float64(h.Protocol)
		if h.HasTransport() {
			fields["src_port"] = float64(h.SrcPort)
			fields["dst_port"] = float64(h.DstPort)
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
