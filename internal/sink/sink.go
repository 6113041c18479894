// Package sink implements the receive-side endpoint: it accepts datagrams or connections,
// counts delivered bytes and periodically samples a sliding-window throughput estimate.
//
// A Sink is driven entirely by its scheduler. Every method and callback must run on the
// scheduler's goroutine; none of them lock.
package sink

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"firestige.xyz/rxsink/internal/bandwidth"
	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/metrics"
	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/trace"
	"firestige.xyz/rxsink/internal/transport"
)

// State is the lifecycle state of a sink.
type State string

const (
	// StateIdle indicates the sink has not been started.
	StateIdle State = "idle"
	// StateListening indicates the sink is receiving.
	StateListening State = "listening"
	// StateStopped indicates the sink released its sockets.
	StateStopped State = "stopped"
)

// Recorder persists throughput samples.
type Recorder interface {
	Append(name string, at time.Duration, bps float64) error
}

// Publisher receives per-packet trace events.
type Publisher interface {
	Publish(e trace.Event)
}

// Option configures optional collaborators.
type Option func(*Sink)

// WithRecorder sets where throughput samples are appended.
func WithRecorder(r Recorder) Option {
	return func(s *Sink) { s.recorder = r }
}

// WithPublisher sets the trace event destination.
func WithPublisher(p Publisher) Option {
	return func(s *Sink) { s.publisher = p }
}

// WithLogger sets the base logger; the sink name is added to every record.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSocket makes Start use sock instead of creating one through the factory.
func WithSocket(sock transport.Socket) Option {
	return func(s *Sink) { s.socket = sock }
}

// Sink counts received bytes and samples throughput.
type Sink struct {
	cfg       Config
	sched     sched.Scheduler
	factory   transport.Factory
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger

	state    State
	socket   transport.Socket
	sessions []*Session
	bySocket map[transport.Socket]*Session

	total           uint64
	packets         uint64
	filtered        uint64
	expectedReached bool

	window     *bandwidth.Window
	sampleID   sched.EventID
	throughput float64

	rxBytes   prometheus.Counter
	rxPackets prometheus.Counter
	rxDropped prometheus.Counter
	bps       prometheus.Gauge
	active    prometheus.Gauge
	stateG    prometheus.Gauge
}

// New validates cfg and returns an idle sink.
func New(cfg Config, s sched.Scheduler, f transport.Factory, opts ...Option) (*Sink, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval == 0 {
		// the window is still allocated so Status can report its geometry
		interval = time.Second
	}
	w, err := bandwidth.NewWindow(cfg.WindowSize, interval)
	if err != nil {
		return nil, fmt.Errorf("%w: sink %s: %v", core.ErrConfigInvalid, cfg.Name, err)
	}

	sk := &Sink{
		cfg:      cfg,
		sched:    s,
		factory:  f,
		logger:   slog.Default(),
		state:    StateIdle,
		bySocket: make(map[transport.Socket]*Session),
		window:   w,

		rxBytes:   metrics.ReceivedBytesTotal.WithLabelValues(cfg.Name, string(cfg.Protocol)),
		rxPackets: metrics.ReceivedPacketsTotal.WithLabelValues(cfg.Name, string(cfg.Protocol)),
		rxDropped: metrics.FilteredPacketsTotal.WithLabelValues(cfg.Name),
		bps:       metrics.ThroughputBitsPerSecond.WithLabelValues(cfg.Name),
		active:    metrics.ActiveSessions.WithLabelValues(cfg.Name),
		stateG:    metrics.SinkState.WithLabelValues(cfg.Name),
	}
	for _, opt := range opts {
		opt(sk)
	}
	sk.logger = sk.logger.With("sink", cfg.Name)
	sk.stateG.Set(metrics.SinkStateIdle)
	return sk, nil
}

func (s *Sink) Name() string {
	return s.cfg.Name
}

func (s *Sink) Config() Config {
	return s.cfg
}

func (s *Sink) State() State {
	return s.state
}

// TotalRx returns the number of payload bytes counted so far.
func (s *Sink) TotalRx() uint64 {
	return s.total
}

// ListeningSocket returns the listening socket, nil before Start.
func (s *Sink) ListeningSocket() transport.Socket {
	return s.socket
}

// AcceptedSockets returns the sockets of the held connections in accept order.
func (s *Sink) AcceptedSockets() []transport.Socket {
	out := make([]transport.Socket, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Socket
	}
	return out
}

// Sessions returns the held connections in accept order.
func (s *Sink) Sessions() []*Session {
	return append([]*Session(nil), s.sessions...)
}

// Throughput returns the most recent sample in bits per second.
func (s *Sink) Throughput() float64 {
	return s.throughput
}

// Window exposes the sampling window.
func (s *Sink) Window() *bandwidth.Window {
	return s.window
}

func (s *Sink) setState(st State) {
	s.state = st
	switch st {
	case StateIdle:
		s.stateG.Set(metrics.SinkStateIdle)
	case StateListening:
		s.stateG.Set(metrics.SinkStateListening)
	case StateStopped:
		s.stateG.Set(metrics.SinkStateStopped)
	}
	s.logger.Info("sink state changed", "state", st)
}

// Start opens the listening socket and, when an interval is configured, schedules the
// first throughput sample one interval from now.
//
// A multicast local address on a socket without group membership support fails with
// core.ErrMulticastUnsupported before the socket is bound; the sink stays idle.
func (s *Sink) Start() error {
	switch s.state {
	case StateListening:
		return fmt.Errorf("cannot start sink %s in state %s", s.cfg.Name, s.state)
	case StateStopped:
		return fmt.Errorf("start sink %s: %w", s.cfg.Name, core.ErrSinkStopped)
	}

	sock := s.socket
	created := false
	if sock == nil {
		var err error
		if sock, err = s.factory.NewSocket(s.cfg.Protocol); err != nil {
			return fmt.Errorf("create %s socket: %w", s.cfg.Protocol, err)
		}
		created = true
	}
	abort := func(err error) error {
		if created {
			sock.Close()
		}
		return err
	}

	local := s.cfg.Local
	var joiner transport.MulticastJoiner
	if local.Addr().IsMulticast() {
		j, ok := sock.(transport.MulticastJoiner)
		if !ok {
			s.logger.Error("multicast address on a transport without group membership",
				"local", local.String(), "protocol", s.cfg.Protocol)
			return abort(fmt.Errorf("sink %s on %s/%s: %w", s.cfg.Name, s.cfg.Protocol, local, core.ErrMulticastUnsupported))
		}
		joiner = j
	}

	if err := sock.Bind(local); err != nil {
		return abort(fmt.Errorf("bind %s: %w", local, err))
	}
	if joiner != nil {
		if err := joiner.JoinGroup(s.cfg.MulticastInterface, local.Addr()); err != nil {
			return abort(fmt.Errorf("join group %s: %w", local.Addr(), err))
		}
	}
	if err := sock.Listen(); err != nil {
		return abort(fmt.Errorf("listen on %s: %w", local, err))
	}
	if err := sock.ShutdownSend(); err != nil {
		return abort(fmt.Errorf("shutdown send on %s: %w", local, err))
	}

	sock.SetRecvCallback(s.handleRead)
	if !s.cfg.Protocol.Connectionless() {
		sock.SetAcceptCallback(s.handleAccept)
		sock.SetCloseCallbacks(s.handlePeerClose, s.handlePeerError)
	}
	s.socket = sock
	s.setState(StateListening)

	if s.cfg.Interval > 0 {
		s.sampleID = s.sched.Schedule(s.cfg.Interval, s.sample)
	}
	s.logger.Info("sink listening",
		"protocol", s.cfg.Protocol,
		"local", sock.LocalAddr().String(),
		"interval", s.cfg.Interval)
	return nil
}

// Stop closes every accepted connection and the listening socket. It is idempotent.
// Under SamplingKeep the sampling timer keeps firing; use Close to cancel it too.
func (s *Sink) Stop() error {
	if s.state == StateStopped {
		return nil
	}

	var err error
	for _, sess := range s.sessions {
		err = multierr.Append(err, sess.Socket.Close())
	}
	s.sessions = nil
	s.bySocket = make(map[transport.Socket]*Session)
	s.active.Set(0)

	if s.socket != nil {
		s.socket.SetRecvCallback(nil)
		err = multierr.Append(err, s.socket.Close())
	}
	if s.cfg.SamplingPolicy == SamplingCancel {
		s.cancelSample()
	}
	s.setState(StateStopped)

	if err != nil {
		return fmt.Errorf("stop sink %s: %w", s.cfg.Name, err)
	}
	return nil
}

// Close stops the sink and cancels any pending sample regardless of the sampling policy.
func (s *Sink) Close() error {
	err := s.Stop()
	s.cancelSample()
	return err
}

func (s *Sink) cancelSample() {
	if s.sampleID != 0 {
		s.sched.Cancel(s.sampleID)
		s.sampleID = 0
	}
}

// handleRead drains sock. A zero-length payload ends the drain.
func (s *Sink) handleRead(sock transport.Socket) {
	sess := s.bySocket[sock]
	for {
		p, ok := sock.RecvFrom()
		if !ok || p.IsEOF() {
			return
		}
		s.receive(p, sess)
	}
}

func (s *Sink) receive(p core.Packet, sess *Session) {
	matched := s.cfg.Filter == nil || s.cfg.Filter.Match(p)
	if !matched {
		s.filtered++
		s.rxDropped.Inc()
	}
	count := matched || s.cfg.FilterMode == FilterModeTrace
	publish := matched || s.cfg.FilterMode == FilterModeCount

	if count {
		n := uint64(p.Size())
		s.total += n
		s.packets++
		if sess != nil {
			sess.bytes += n
		}
		s.rxBytes.Add(float64(n))
		s.rxPackets.Inc()
		s.logger.Debug("received",
			"time", s.sched.Now().Seconds(),
			"bytes", n,
			"from", p.From.Addr().String(),
			"port", p.From.Port(),
			"total", s.total)
		s.checkExpected()
	}
	if publish && s.publisher != nil {
		s.publisher.Publish(trace.Event{
			Sink:   s.cfg.Name,
			Time:   s.sched.Now(),
			Packet: p,
			From:   p.From,
		})
	}
}

func (s *Sink) checkExpected() {
	if s.expectedReached || s.cfg.TotalExpectedRx <= 1 || s.total < s.cfg.TotalExpectedRx {
		return
	}
	s.expectedReached = true
	s.logger.Info("expected total received",
		"time", s.sched.Now().Seconds(),
		"total", s.total,
		"expected", s.cfg.TotalExpectedRx)
}

func (s *Sink) handleAccept(sock transport.Socket, from netip.AddrPort) {
	if s.state != StateListening {
		sock.Close()
		return
	}
	sock.SetRecvCallback(s.handleRead)
	sock.SetCloseCallbacks(s.handlePeerClose, s.handlePeerError)

	sess := newSession(sock, from, s.sched.Now())
	s.sessions = append(s.sessions, sess)
	s.bySocket[sock] = sess
	s.active.Set(float64(len(s.sessions)))
	s.logger.Info("connection accepted", "peer", from.String(), "session", sess.ID.String())
}

func (s *Sink) handlePeerClose(sock transport.Socket) {
	metrics.PeerEventsTotal.WithLabelValues(s.cfg.Name, metrics.PeerEventClose).Inc()
	attrs := []any{"local", sock.LocalAddr().String()}
	if sess := s.bySocket[sock]; sess != nil {
		sess.peerClosed = true
		attrs = append(attrs, "peer", sess.Peer.String(), "session", sess.ID.String())
	}
	s.logger.Info("peer closed", attrs...)
}

func (s *Sink) handlePeerError(sock transport.Socket) {
	metrics.PeerEventsTotal.WithLabelValues(s.cfg.Name, metrics.PeerEventError).Inc()
	attrs := []any{"local", sock.LocalAddr().String()}
	if sess := s.bySocket[sock]; sess != nil {
		sess.peerError = true
		attrs = append(attrs, "peer", sess.Peer.String(), "session", sess.ID.String())
	}
	s.logger.Warn("peer error", attrs...)
}

// sample reschedules itself before recording so a slow recorder cannot skew the period.
func (s *Sink) sample() {
	s.sampleID = s.sched.Schedule(s.cfg.Interval, s.sample)

	now := s.sched.Now()
	bps := s.window.Sample(s.total)
	s.throughput = bps
	s.bps.Set(bps)

	if s.recorder == nil {
		return
	}
	if err := s.recorder.Append(s.cfg.Name, now, bps); err != nil {
		s.logger.Warn("failed to record throughput sample", "error", err)
	}
}
