package main

import (
	"fmt"

	"github.com/towersim/towersim/consensus"
)

// Config is the simulator's resolved command-line configuration.
type Config struct {
	Depth             int
	Threshold         int
	SubcommitteeSize  int
	SubcommitteeEpoch uint64

	Scenario    string
	Slots       int
	Seed        uint64
	MetricsAddr string
	Verbosity   int
}

// DefaultConfig returns a Config matching the compiled-in consensus
// constants and a ten-thousand-slot churn run.
func DefaultConfig() Config {
	return Config{
		Depth:             consensus.DEPTH,
		Threshold:         consensus.THRESHOLD,
		SubcommitteeSize:  consensus.SubcommitteeSize,
		SubcommitteeEpoch: uint64(consensus.SubcommitteeEpoch),
		Scenario:          "churn",
		Slots:             10_000,
		Seed:              1,
		MetricsAddr:       ":9200",
		Verbosity:         3,
	}
}

// Validate checks the resolved configuration. depth/threshold/subcommittee
// sizing are compiled into the consensus package as constants rather than
// threaded through at runtime, so any flag value that disagrees with the
// compiled-in constant is rejected rather than silently ignored.
func (c Config) Validate() error {
	if c.Depth != consensus.DEPTH {
		return fmt.Errorf("--depth=%d does not match the compiled-in tower depth %d", c.Depth, consensus.DEPTH)
	}
	if c.Threshold != consensus.THRESHOLD {
		return fmt.Errorf("--threshold=%d does not match the compiled-in threshold %d", c.Threshold, consensus.THRESHOLD)
	}
	if c.SubcommitteeSize != consensus.SubcommitteeSize {
		return fmt.Errorf("--subcommittee-size=%d does not match the compiled-in subcommittee size %d", c.SubcommitteeSize, consensus.SubcommitteeSize)
	}
	if c.SubcommitteeEpoch != uint64(consensus.SubcommitteeEpoch) {
		return fmt.Errorf("--subcommittee-epoch=%d does not match the compiled-in subcommittee epoch %d", c.SubcommitteeEpoch, consensus.SubcommitteeEpoch)
	}
	if c.Slots <= 0 {
		return fmt.Errorf("--slots must be positive, got %d", c.Slots)
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("--verbosity must be in [0, 5], got %d", c.Verbosity)
	}
	return nil
}
