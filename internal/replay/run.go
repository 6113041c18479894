package replay

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"firestige.xyz/rxsink/internal/record"
	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/sink"
	"firestige.xyz/rxsink/internal/trace"
	"firestige.xyz/rxsink/internal/transport/simnet"
)

// Options configures Run.
type Options struct {
	Fs        afero.Fs
	OutputDir string
	Bus       *trace.Bus
	// Tail extends the simulation past the last packet. Zero uses the longest sampling interval.
	Tail time.Duration
}

// Result is the outcome of Run.
type Result struct {
	Stats Stats
	End   time.Duration
	Sinks []sink.Status
}

// Run starts the sinks on a fresh simulator, replays the capture into them and runs until
// the capture plus the tail has elapsed.
func Run(cfgs []sink.Config, src io.Reader, opts Options) (Result, error) {
	sim := sched.NewSimulator()
	n := simnet.New(sim)

	sinkOpts := []sink.Option{sink.WithRecorder(record.New(opts.Fs, opts.OutputDir))}
	if opts.Bus != nil {
		sinkOpts = append(sinkOpts, sink.WithPublisher(opts.Bus))
	}
	group, err := sink.NewGroup(cfgs, sim, n, sinkOpts...)
	if err != nil {
		return Result{}, err
	}
	if err := group.Start(); err != nil {
		return Result{}, err
	}

	rp := New(sim, n)
	stats, err := rp.Load(src)
	if err != nil {
		group.Close()
		return Result{}, err
	}

	tail := opts.Tail
	if tail <= 0 {
		for _, c := range cfgs {
			if c.Interval > tail {
				tail = c.Interval
			}
		}
	}
	end := stats.Duration + tail
	sim.RunUntil(end)

	res := Result{Stats: rp.Stats(), End: end, Sinks: group.Statuses()}
	if err := group.Close(); err != nil {
		return res, fmt.Errorf("close sinks: %w", err)
	}
	return res, nil
}
