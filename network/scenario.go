package network

import (
	"context"
	"math/rand/v2"

	"github.com/towersim/towersim/consensus"
)

// Scenario drives the reference simulator's outer randomized churn loop: run
// undisturbed for a random dwell time, carve a random number of partitions,
// hold them for a random duration, then progressively repair. It is the
// supplemented, reproducible form of the reference driver's main loop, used
// both by the towersim CLI's churn scenario and by OC-safety tests.
type Scenario struct {
	Net *Network
	rng *rand.Rand

	numPartitions int
	dwellTime     int
	partitionSlot int
	repairTime    int
}

// NewScenario returns a Scenario driving net, seeded independently of net's
// own partition-carving RNG so that churn timing and partition shapes can be
// varied independently in tests.
func NewScenario(net *Network, seed uint64) *Scenario {
	return &Scenario{
		Net:           net,
		rng:           rand.New(rand.NewPCG(seed, seed^0xbf58476d1ce4e5b9)),
		numPartitions: 1,
		dwellTime:     512,
		repairTime:    32,
	}
}

// Run executes numSlots steps of the randomized churn loop, halting early on
// the first invariant violation or context cancellation.
func (s *Scenario) Run(ctx context.Context, numSlots int) error {
	for slot := 0; slot < numSlots; slot++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Net.Step(ctx, s.numPartitions); err != nil {
			return err
		}

		if s.numPartitions <= 1 && slot >= s.partitionSlot+s.dwellTime && slot%s.dwellTime == 0 {
			churnRNG := rand.New(rand.NewPCG(uint64(slot), s.rng.Uint64()))
			s.numPartitions = 2 + churnRNG.IntN(4)
			s.dwellTime = 16 + churnRNG.IntN(496)
			s.repairTime = 1 + churnRNG.IntN(511)
			s.partitionSlot = slot
			continue
		}

		if s.numPartitions > 1 && s.partitionSlot+s.repairTime <= slot && slot%s.repairTime == 0 {
			s.numPartitions--
			if s.numPartitions <= 1 {
				s.Net.Repair()
			}
		}
	}
	return nil
}

// FourGroupPartition builds the fixed four-group partition schedule used by
// the dedicated partition scenario: the committee split into four equal
// contiguous ranges, alternating active/inactive.
func FourGroupPartition() *Partitions {
	quarter := consensus.NodeID(consensus.N / 4)
	return &Partitions{
		Ranges: []PartitionRange{
			{Start: 0, End: quarter},
			{Start: quarter, End: 2 * quarter},
			{Start: 2 * quarter, End: 3 * quarter},
			{Start: 3 * quarter, End: consensus.N},
		},
		Active: []bool{true, false, true, false},
	}
}

// twoGroupPartition splits the committee into two roughly equal halves —
// the geometry most likely to pull the primary and secondary super-roots
// onto unrelated forks, since each committee's membership is drawn
// independently of which half of the id space it falls in.
func twoGroupPartition() *Partitions {
	half := consensus.NodeID(consensus.N / 2)
	return &Partitions{
		Ranges: []PartitionRange{{Start: 0, End: half}, {Start: half, End: consensus.N}},
		Active: []bool{true, false},
	}
}

// RunRotation drives numSlots of plain slot advancement over a fully
// connected network: no partition churn at all, so every subcommittee
// rotation decision is forced by slot progress alone, never confounded by a
// partition-induced liveness stall. Distinct from Run, which interleaves
// randomized partition churn on top of the same per-slot stepping.
func (s *Scenario) RunRotation(ctx context.Context, numSlots int) error {
	for i := 0; i < numSlots; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Net.PartitionStep(ctx, AllActive(), s.Net.leaderForNextSlot()); err != nil {
			return err
		}
	}
	return nil
}

// RunDivergenceStress holds a two-group split long enough to cross several
// subcommittee rotation boundaries before repairing, then repeats — the
// condition the divergence guard (Forks.checkDivergence) exists to catch if
// a rotation boundary ever lets the two committees root incompatible
// histories.
func (s *Scenario) RunDivergenceStress(ctx context.Context, numSlots int) error {
	const holdSlots = 256
	partitioned := twoGroupPartition()
	for i := 0; i < numSlots; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cycle := i % (2 * holdSlots)
		switch cycle {
		case 0:
			partitioned = twoGroupPartition()
		case holdSlots:
			s.Net.Repair()
		}
		active := AllActive()
		if cycle < holdSlots {
			active = partitioned
		}
		if err := s.Net.PartitionStep(ctx, active, s.Net.LeaderForSlot(i)); err != nil {
			return err
		}
	}
	return nil
}

// RunGCPressure cycles many short-lived partitions with aggressive repair
// timing, growing fork_map far faster than Run's dwell/repair windows and
// exercising Forks.gc's pruning on every repair.
func (s *Scenario) RunGCPressure(ctx context.Context, numSlots int) error {
	const repairEvery = 4
	const numPartitions = 6
	for i := 0; i < numSlots; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Net.Step(ctx, numPartitions); err != nil {
			return err
		}
		if i%repairEvery == repairEvery-1 {
			s.Net.Repair()
		}
	}
	return nil
}
