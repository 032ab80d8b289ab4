package network

import (
	"math/rand/v2"

	"github.com/towersim/towersim/consensus"
)

// PartitionRange is a contiguous, half-open range of node ids [Start, End).
type PartitionRange struct {
	Start, End consensus.NodeID
}

// Partitions is the network's current partition schedule: a list of
// contiguous node-id ranges with a parallel active mask. Two node ids are
// in the same partition iff both fall in the same range and that range is
// active; a node in an inactive range cannot reach anyone.
type Partitions struct {
	Ranges []PartitionRange
	Active []bool
}

// AllActive returns the trivial, fully connected partition covering
// [0, consensus.N) — the state after a repair.
func AllActive() *Partitions {
	return &Partitions{
		Ranges: []PartitionRange{{Start: 0, End: consensus.N}},
		Active: []bool{true},
	}
}

// rangeOf returns the index of the range containing id, or -1.
func (p *Partitions) rangeOf(id consensus.NodeID) int {
	for i, r := range p.Ranges {
		if id >= r.Start && id < r.End {
			return i
		}
	}
	return -1
}

// IsActive reports whether id's range is currently active.
func (p *Partitions) IsActive(id consensus.NodeID) bool {
	i := p.rangeOf(id)
	return i >= 0 && p.Active[i]
}

// SamePartition reports whether a and b can currently reach each other.
func (p *Partitions) SamePartition(a, b consensus.NodeID) bool {
	ra, rb := p.rangeOf(a), p.rangeOf(b)
	return ra >= 0 && ra == rb && p.Active[ra]
}

// partitionedCount returns the number of node ids that currently cannot
// reach the rest of the committee, i.e. whose range is inactive.
func (p *Partitions) partitionedCount() int {
	count := 0
	for i, r := range p.Ranges {
		if p.Active[i] {
			continue
		}
		count += int(r.End - r.Start)
	}
	return count
}

// CreatePartitions carves [0, consensus.N) into numPartitions contiguous,
// randomly sized ranges and activates a random subset of them, mirroring
// the reference simulator's partition-scheduling helper. numPartitions is
// clamped to [1, consensus.N].
func CreatePartitions(rng *rand.Rand, numPartitions int) *Partitions {
	if numPartitions < 1 {
		numPartitions = 1
	}
	if numPartitions > consensus.N {
		numPartitions = consensus.N
	}

	cuts := make([]int, 0, numPartitions-1)
	for i := 0; i < numPartitions-1; i++ {
		cuts = append(cuts, 1+rng.IntN(consensus.N-1))
	}
	sortInts(cuts)

	ranges := make([]PartitionRange, 0, numPartitions)
	active := make([]bool, 0, numPartitions)
	prev := consensus.NodeID(0)
	for _, c := range cuts {
		end := consensus.NodeID(c)
		if end <= prev {
			continue
		}
		ranges = append(ranges, PartitionRange{Start: prev, End: end})
		active = append(active, rng.IntN(2) == 0)
		prev = end
	}
	ranges = append(ranges, PartitionRange{Start: prev, End: consensus.N})
	active = append(active, rng.IntN(2) == 0)

	return &Partitions{Ranges: ranges, Active: active}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
