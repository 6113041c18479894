package sink

import (
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/rxsink/internal/bandwidth"
	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/filter"
)

// DefaultName is used when a sink is configured without a name.
const DefaultName = "R"

// FilterMode selects what a non-matching packet is excluded from.
type FilterMode string

const (
	// FilterModeCount excludes non-matching packets from the byte total only.
	FilterModeCount FilterMode = "count"
	// FilterModeTrace excludes non-matching packets from trace notifications only.
	FilterModeTrace FilterMode = "trace"
	// FilterModeBoth excludes non-matching packets from both.
	FilterModeBoth FilterMode = "both"
)

// ParseFilterMode parses a mode name. The empty string yields FilterModeBoth.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(s) {
	case "":
		return FilterModeBoth, nil
	case FilterModeCount, FilterModeTrace, FilterModeBoth:
		return FilterMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown filter mode %q", core.ErrConfigInvalid, s)
	}
}

// SamplingPolicy decides whether Stop cancels the pending throughput sample.
type SamplingPolicy string

const (
	// SamplingKeep leaves the sampling timer running after Stop.
	SamplingKeep SamplingPolicy = "keep"
	// SamplingCancel cancels the pending sample in Stop.
	SamplingCancel SamplingPolicy = "cancel"
)

// ParseSamplingPolicy parses a policy name. The empty string yields SamplingKeep.
func ParseSamplingPolicy(s string) (SamplingPolicy, error) {
	switch SamplingPolicy(s) {
	case "":
		return SamplingKeep, nil
	case SamplingKeep, SamplingCancel:
		return SamplingPolicy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown sampling policy %q", core.ErrConfigInvalid, s)
	}
}

// Config is the per-sink configuration.
type Config struct {
	Name     string
	Protocol core.Protocol
	Local    netip.AddrPort

	// TotalExpectedRx is informational: reaching it is logged once when it is greater than 1.
	TotalExpectedRx uint64

	// Interval between throughput samples. Zero disables sampling.
	Interval   time.Duration
	WindowSize int

	Filter         filter.Element
	FilterMode     FilterMode
	SamplingPolicy SamplingPolicy

	// MulticastInterface is the interface index used to join a multicast Local address; 0 lets the system choose.
	MulticastInterface int
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Protocol == "" {
		c.Protocol = core.ProtocolUDP
	}
	if c.WindowSize == 0 {
		c.WindowSize = bandwidth.DefaultSize
	}
	if c.FilterMode == "" {
		c.FilterMode = FilterModeBoth
	}
	if c.SamplingPolicy == "" {
		c.SamplingPolicy = SamplingKeep
	}
}

func (c *Config) validate() error {
	if _, err := core.ParseProtocol(string(c.Protocol)); err != nil {
		return err
	}
	if !c.Local.IsValid() {
		return fmt.Errorf("%w: sink %s: local address not set", core.ErrConfigInvalid, c.Name)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: sink %s: negative bandwidth interval", core.ErrConfigInvalid, c.Name)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("%w: sink %s: window size must be at least 1", core.ErrConfigInvalid, c.Name)
	}
	if _, err := ParseFilterMode(string(c.FilterMode)); err != nil {
		return err
	}
	_, err := ParseSamplingPolicy(string(c.SamplingPolicy))
	return err
}
