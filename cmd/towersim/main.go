// Command towersim drives the lockout-tower consensus simulator: a
// committee of validators step through slots, proposing and voting on
// blocks under a schedule of simulated network partitions, while the
// simulator checks the protocol's safety and liveness invariants at every
// step.
//
// Usage:
//
//	towersim [flags]
//
// Flags:
//
//	--depth               Tower lockout depth, 2^depth is a root vote (default: 16)
//	--threshold           Lockout-depth threshold above which the bank threshold check applies (default: 6)
//	--subcommittee-size   Target size of each rotating subcommittee (default: 200)
//	--subcommittee-epoch  Super-roots per subcommittee epoch (default: 1)
//	--scenario            warmup (no churn), four-group (fixed split),
//	                      churn (randomized partition/repair schedule),
//	                      rotation (fully connected, stresses subcommittee
//	                      rotation), divergence (sustained two-group split,
//	                      stresses the divergence guard), gc (aggressive
//	                      partition/repair cycling, stresses fork_map
//	                      pruning) (default: churn)
//	--slots               Number of slots to simulate (default: 10000)
//	--seed                RNG seed for partition scheduling (default: 1)
//	--metrics-addr        Address to serve Prometheus metrics on, empty disables (default: :9200)
//	--verbosity           Value in 0-5, validated and echoed at startup; it does not
//	                      change the simulator's log output (default: 3)
//	--version             Print version and exit
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/towersim/towersim/metrics"
	"github.com/towersim/towersim/network"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("towersim %s starting", version)
	log.Printf("  scenario:           %s", cfg.Scenario)
	log.Printf("  slots:              %d", cfg.Slots)
	log.Printf("  seed:               %d", cfg.Seed)
	log.Printf("  depth:              %d", cfg.Depth)
	log.Printf("  threshold:          %d", cfg.Threshold)
	log.Printf("  subcommittee size:  %d", cfg.SubcommitteeSize)
	log.Printf("  subcommittee epoch: %d", cfg.SubcommitteeEpoch)
	log.Printf("  metrics addr:       %s", cfg.MetricsAddr)
	log.Printf("  verbosity:          %d", cfg.Verbosity)

	net := network.New(cfg.Seed)

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: exporter.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, stopping after current slot", sig)
		cancel()
	}()

	if err := runScenario(ctx, net, cfg); err != nil {
		log.Printf("simulation halted: %v", err)
		if srv != nil {
			srv.Close()
		}
		return 1
	}

	log.Printf("completed %d slots, lowest_root = %+v", cfg.Slots, net.LowestRoot())
	if srv != nil {
		srv.Close()
	}
	return 0
}

// runScenario dispatches to the concrete scenario named by cfg.Scenario.
func runScenario(ctx context.Context, net *network.Network, cfg Config) error {
	switch cfg.Scenario {
	case "warmup":
		for i := 0; i < cfg.Slots; i++ {
			if err := net.Step(ctx, 1); err != nil {
				return err
			}
		}
		return nil
	case "four-group":
		partitions := network.FourGroupPartition()
		for i := 0; i < cfg.Slots; i++ {
			if err := net.PartitionStep(ctx, partitions, net.LeaderForSlot(i)); err != nil {
				return err
			}
		}
		return nil
	case "churn":
		return network.NewScenario(net, cfg.Seed).Run(ctx, cfg.Slots)
	case "rotation":
		return network.NewScenario(net, cfg.Seed).RunRotation(ctx, cfg.Slots)
	case "divergence":
		return network.NewScenario(net, cfg.Seed).RunDivergenceStress(ctx, cfg.Slots)
	case "gc":
		return network.NewScenario(net, cfg.Seed).RunGCPressure(ctx, cfg.Slots)
	default:
		return fmt.Errorf("unknown scenario %q", cfg.Scenario)
	}
}

func parseFlags(args []string) (Config, bool, int) {
	cfg := DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("towersim %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

func newFlagSet(cfg *Config) *flagSet {
	fs := newCustomFlagSet("towersim")
	fs.IntVar(&cfg.Depth, "depth", cfg.Depth, "tower lockout depth")
	fs.IntVar(&cfg.Threshold, "threshold", cfg.Threshold, "bank threshold-check lockout depth")
	fs.IntVar(&cfg.SubcommitteeSize, "subcommittee-size", cfg.SubcommitteeSize, "target subcommittee size")
	fs.Uint64Var(&cfg.SubcommitteeEpoch, "subcommittee-epoch", cfg.SubcommitteeEpoch, "super-roots per subcommittee epoch")
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "warmup, four-group, churn, rotation, divergence, or gc")
	fs.IntVar(&cfg.Slots, "slots", cfg.Slots, "number of slots to simulate")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "rng seed")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus metrics listen address, empty disables")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "value in 0-5, validated and echoed; does not change log output")
	return fs
}
