package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"firestige.xyz/rxsink/internal/app"
	"firestige.xyz/rxsink/internal/config"
	"firestige.xyz/rxsink/internal/record"
	"firestige.xyz/rxsink/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a pcap capture into the configured sinks",
	Long: `Replay a pcap capture through an in-memory network into the configured sinks,
under simulated time. Packet offsets in the capture become simulated send times, so
the P-<name> records match what the sinks would have measured live.

Examples:
  rxsink replay -f capture.pcap
  rxsink replay -c configs/rxsink.yml -f capture.pcap --tail 5s`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := runReplay(cfg, afero.NewOsFs(), replayFile, replayTail, cmd.OutOrStdout()); err != nil {
			exitWithError("replay failed", err)
		}
	},
}

var (
	replayFile string
	replayTail time.Duration
)

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "",
		"pcap capture to replay (required)")
	replayCmd.Flags().DurationVar(&replayTail, "tail", 0,
		"simulated time to keep sampling after the last packet (default: longest sink interval)")
	replayCmd.MarkFlagRequired("file")
}

func runReplay(cfg *config.Config, fs afero.Fs, path string, tail time.Duration, w io.Writer) error {
	cfgs, err := cfg.SinkConfigs()
	if err != nil {
		return err
	}
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	bus, err := app.NewBus(cfg)
	if err != nil {
		return err
	}
	res, err := replay.Run(cfgs, f, replay.Options{
		Fs:        fs,
		OutputDir: cfg.OutputDir,
		Bus:       bus,
		Tail:      tail,
	})
	if cerr := bus.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Replayed %d packet(s) (%d udp, %d tcp, %d skipped) over %s, simulated until %s\n",
		res.Stats.Packets, res.Stats.UDP, res.Stats.TCP, res.Stats.Skipped, res.Stats.Duration, res.End)
	for _, st := range res.Sinks {
		fmt.Fprintf(w, "  %-12s %-3s %-22s rx=%d filtered=%d samples=%d last=%s bps\n",
			st.Name, st.Protocol, st.Local, st.TotalRx, st.Filtered, st.Samples,
			record.FormatNumber(st.Throughput))
	}
	return nil
}
