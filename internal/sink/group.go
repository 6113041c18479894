package sink

import (
	"fmt"

	"go.uber.org/multierr"

	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/transport"
)

// Group owns the sinks of one process. Like Sink, it must be used from the scheduler goroutine.
type Group struct {
	sinks  []*Sink
	byName map[string]*Sink
}

// NewGroup builds one sink per config, sharing the scheduler, factory and options.
func NewGroup(cfgs []Config, s sched.Scheduler, f transport.Factory, opts ...Option) (*Group, error) {
	g := &Group{byName: make(map[string]*Sink, len(cfgs))}
	for _, cfg := range cfgs {
		sk, err := New(cfg, s, f, opts...)
		if err != nil {
			return nil, err
		}
		if _, dup := g.byName[sk.Name()]; dup {
			return nil, fmt.Errorf("duplicate sink name %q", sk.Name())
		}
		g.sinks = append(g.sinks, sk)
		g.byName[sk.Name()] = sk
	}
	return g, nil
}

// Start starts every sink in order. On failure the sinks already started are closed
// and the first error is returned.
func (g *Group) Start() error {
	for i, sk := range g.sinks {
		if err := sk.Start(); err != nil {
			for _, started := range g.sinks[:i] {
				started.Close()
			}
			return fmt.Errorf("start sink %s: %w", sk.Name(), err)
		}
	}
	return nil
}

// Stop stops every sink, leaving sampling timers to their policy.
func (g *Group) Stop() error {
	var err error
	for _, sk := range g.sinks {
		err = multierr.Append(err, sk.Stop())
	}
	return err
}

// Close stops every sink and cancels all sampling.
func (g *Group) Close() error {
	var err error
	for _, sk := range g.sinks {
		err = multierr.Append(err, sk.Close())
	}
	return err
}

// Get returns the named sink.
func (g *Group) Get(name string) (*Sink, bool) {
	sk, ok := g.byName[name]
	return sk, ok
}

// Sinks returns the sinks in configuration order.
func (g *Group) Sinks() []*Sink {
	return append([]*Sink(nil), g.sinks...)
}

// Statuses returns a snapshot of every sink.
func (g *Group) Statuses() []Status {
	out := make([]Status, 0, len(g.sinks))
	for _, sk := range g.sinks {
		out = append(out, sk.Status())
	}
	return out
}
