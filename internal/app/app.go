// Package app wires the live sinks, the event loop, exporters and the metrics server
// into one fx application.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"firestige.xyz/rxsink/internal/config"
	"firestige.xyz/rxsink/internal/metrics"
	"firestige.xyz/rxsink/internal/record"
	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/sink"
	"firestige.xyz/rxsink/internal/trace"
	"firestige.xyz/rxsink/internal/trace/kafkaexport"
	"firestige.xyz/rxsink/internal/trace/natsexport"
	"firestige.xyz/rxsink/internal/transport"
	"firestige.xyz/rxsink/internal/transport/netx"
)

// Module provides every runtime component. It requires a *config.Config in the graph.
var Module = fx.Module("rxsink",
	fx.Provide(
		ProvideLoop,
		ProvideFactory,
		ProvideRecorder,
		ProvideBus,
		ProvideRegistry,
		ProvideMetricsServer,
	),
	fx.Invoke(func(*Registry, *metrics.Server) {}),
)

// Options returns the fx options for a live run of cfg.
func Options(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: slog.Default()}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		Module,
	)
}

// New builds the application.
func New(cfg *config.Config, extra ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{Options(cfg)}, extra...)...)
}

// ProvideLoop runs the event loop for the lifetime of the app.
func ProvideLoop(lc fx.Lifecycle) *sched.Loop {
	loop := sched.NewLoop(nil, 0)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := loop.Run(context.Background()); err != nil {
					slog.Error("event loop exited", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			loop.Stop()
			select {
			case <-loop.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return loop
}

// ProvideFactory returns OS-backed sockets whose callbacks run on loop.
func ProvideFactory(loop *sched.Loop) transport.Factory {
	return netx.NewFactory(loop, netx.WithLogger(slog.Default()))
}

func ProvideRecorder(cfg *config.Config) *record.Recorder {
	return record.New(nil, cfg.OutputDir)
}

// ProvideBus builds the trace bus and closes it when the app stops.
func ProvideBus(lc fx.Lifecycle, cfg *config.Config) (*trace.Bus, error) {
	bus, err := NewBus(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(bus.Close))
	return bus, nil
}

// NewBus builds a trace bus with the configured observers attached. Observers already
// attached are closed if a later one fails.
func NewBus(cfg *config.Config) (*trace.Bus, error) {
	bus := trace.NewBus()
	if err := attachObservers(bus, cfg); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

func attachObservers(bus *trace.Bus, cfg *config.Config) error {
	if cfg.Trace.Log {
		if err := bus.Subscribe("log", trace.NewLogObserver(slog.Default())); err != nil {
			return err
		}
	}
	if nc := cfg.Trace.NATS; nc.Enabled {
		e, err := natsexport.Connect(natsexport.Config{
			URL:       nc.URL,
			Subject:   nc.Subject,
			QueueSize: nc.QueueSize,
		})
		if err != nil {
			return err
		}
		if err := bus.Subscribe("nats", e); err != nil {
			return err
		}
	}
	if kc := cfg.Trace.Kafka; kc.Enabled {
		e, err := kafkaexport.Dial(kafkaexport.Config{
			Brokers:      kc.Brokers,
			Topic:        kc.Topic,
			Compression:  kc.Compression,
			BatchSize:    kc.BatchSize,
			BatchTimeout: kc.BatchTimeout,
			QueueSize:    kc.QueueSize,
		})
		if err != nil {
			return err
		}
		if err := bus.Subscribe("kafka", e); err != nil {
			return err
		}
	}
	return nil
}

// RegistryParams are the dependencies of ProvideRegistry.
type RegistryParams struct {
	fx.In

	LC       fx.Lifecycle
	Config   *config.Config
	Loop     *sched.Loop
	Factory  transport.Factory
	Recorder *record.Recorder
	Bus      *trace.Bus
}

// ProvideRegistry creates the configured sinks. They start with the app; a fatal sink
// configuration error such as multicast on TCP aborts startup.
func ProvideRegistry(p RegistryParams) (*Registry, error) {
	cfgs, err := p.Config.SinkConfigs()
	if err != nil {
		return nil, err
	}
	group, err := sink.NewGroup(cfgs, p.Loop, p.Factory,
		sink.WithRecorder(p.Recorder),
		sink.WithPublisher(p.Bus),
		sink.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	r := &Registry{loop: p.Loop, group: group}

	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var startErr error
			if err := p.Loop.Do(ctx, func() { startErr = group.Start() }); err != nil {
				return err
			}
			if startErr != nil {
				return startErr
			}
			slog.Info("sinks started", "count", len(cfgs), "output_dir", p.Config.OutputDir)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var stopErr error
			if err := p.Loop.Do(ctx, func() { stopErr = group.Close() }); err != nil {
				return err
			}
			return stopErr
		},
	})
	return r, nil
}

// ProvideMetricsServer returns the metrics server, started only when enabled.
func ProvideMetricsServer(lc fx.Lifecycle, cfg *config.Config, r *Registry) *metrics.Server {
	s := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, r)
	if cfg.Metrics.Enabled {
		lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
	}
	return s
}

// Registry gives other goroutines access to the sinks by running on the event loop.
type Registry struct {
	loop  *sched.Loop
	group *sink.Group
}

var _ metrics.StatusSource = (*Registry)(nil)

// Do runs fn with the sink group on the loop goroutine.
func (r *Registry) Do(ctx context.Context, fn func(g *sink.Group)) error {
	return r.loop.Do(ctx, func() { fn(r.group) })
}

func (r *Registry) List(ctx context.Context) (any, error) {
	var out []sink.Status
	if err := r.Do(ctx, func(g *sink.Group) { out = g.Statuses() }); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, name string) (any, bool, error) {
	var (
		st sink.Status
		ok bool
	)
	err := r.Do(ctx, func(g *sink.Group) {
		var s *sink.Sink
		if s, ok = g.Get(name); ok {
			st = s.Status()
		}
	})
	if err != nil {
		return nil, false, fmt.Errorf("sink status: %w", err)
	}
	return st, ok, nil
}
