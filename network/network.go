// Package network implements the discrete-event driver: step-by-step slot
// advancement, pseudo-random leader selection, partitioned block delivery,
// repair, and the network-level OC-safety tracking supplemented from the
// reference implementation's oc_slots bookkeeping.
package network

import (
	"context"
	"math/rand/v2"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/towersim/towersim/consensus"
	"github.com/towersim/towersim/log"
	"github.com/towersim/towersim/metrics"
	"github.com/towersim/towersim/node"
)

var netLog = log.Default().Module("network")

// Network owns the shared Forks, every validator Node, the current
// partition schedule, the repair queue of blocks not yet delivered to
// partitioned nodes, and the oc_slots set used for the OC-safety
// invariant.
type Network struct {
	Forks *consensus.Forks
	Nodes []*node.Node

	partitions  *Partitions
	repairQueue []consensus.Slot
	nextSlot    consensus.Slot

	OCSlots mapset.Set[consensus.Slot]

	rng *rand.Rand
}

// New returns a freshly seeded Network with consensus.N nodes, all in a
// single active partition.
func New(seed uint64) *Network {
	nodes := make([]*node.Node, consensus.N)
	for i := range nodes {
		nodes[i] = node.New(consensus.NodeID(i))
	}
	return &Network{
		Forks:       consensus.NewForks(),
		Nodes:       nodes,
		partitions:  AllActive(),
		nextSlot:    1,
		OCSlots:     mapset.NewThreadUnsafeSet[consensus.Slot](),
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// LowestRoot returns the network's current lowest_root watermark.
func (net *Network) LowestRoot() consensus.Vote { return net.Forks.LowestRoot }

// Repair resets the network to a single, fully active partition and
// flushes the repair queue to every node.
func (net *Network) Repair() {
	net.partitions = AllActive()
	net.flushRepairQueue()
	metrics.RepairsApplied.Inc()
}

// SetPartitions installs an explicit partition schedule, e.g. the
// four-group scenario from the scenario suite.
func (net *Network) SetPartitions(p *Partitions) { net.partitions = p }

// Step advances one slot using a freshly drawn partition schedule of
// numPartitions groups and a leader chosen by hash(slot) mod N.
func (net *Network) Step(ctx context.Context, numPartitions int) error {
	return net.PartitionStep(ctx, CreatePartitions(net.rng, numPartitions), net.leaderForNextSlot())
}

// PartitionStep advances one slot against an explicit partition schedule
// and leader: applies the repair queue, runs every active node's Vote,
// gathers the leader-partition's accepted proposals into a Block, applies
// it to Forks, and records any cross-partition delivery for later repair.
func (net *Network) PartitionStep(ctx context.Context, partitions *Partitions, leaderID consensus.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := metrics.NewTimer(metrics.StepDuration)
	defer func() {
		timer.Stop()
		metrics.LowestRootSlot.Set(int64(net.Forks.LowestRoot.Slot))
		metrics.ForkMapSize.Set(int64(len(net.Forks.ForkMap)))
		metrics.OCSlotsSize.Set(int64(net.OCSlots.Cardinality()))
		if bank, ok := net.Forks.ForkMap[net.Forks.LowestRoot.Slot]; ok {
			metrics.NumSuperRoots.Set(int64(bank.Subcom.NumSuperRoots))
		}
		metrics.PartitionedNodes.Set(int64(partitions.partitionedCount()))
	}()

	net.partitions = partitions
	net.flushRepairQueue()

	proposals := make(map[consensus.NodeID][]consensus.Vote)
	for id := consensus.NodeID(0); id < consensus.N; id++ {
		if !partitions.IsActive(id) {
			continue
		}
		n := net.Nodes[id]
		result, err := n.Vote(net.Forks)
		if err != nil {
			return err
		}
		if !result.Accepted {
			netLog.Debug("vote abstained", "node", id, "slot", net.nextSlot, "reason", result.Reason)
			continue
		}
		proposals[id] = n.Votes()
		if result.ConfirmedSlot != nil {
			net.OCSlots.Add(*result.ConfirmedSlot)
		}
	}

	if err := net.checkOCSafety(); err != nil {
		return err
	}

	if !partitions.IsActive(leaderID) {
		netLog.Debug("leader partitioned away, no block this slot", "leader", leaderID, "slot", net.nextSlot)
		return nil
	}

	shared := make(map[consensus.NodeID][]consensus.Vote)
	for id, votes := range proposals {
		if partitions.SamePartition(id, leaderID) {
			shared[id] = votes
		}
	}

	slot := net.nextSlot
	net.nextSlot++
	block := net.Nodes[leaderID].MakeBlock(slot, shared)

	if err := net.Forks.Apply(block); err != nil {
		if consensus.IsInvariantViolation(err) {
			metrics.InvariantViolations.Inc()
		}
		return err
	}
	netLog.Debug("block applied", "slot", block.Slot, "parent", block.ParentSlot, "leader", leaderID)

	for id := consensus.NodeID(0); id < consensus.N; id++ {
		if partitions.SamePartition(id, leaderID) {
			net.Nodes[id].SetActiveBlock(block.Slot)
		}
	}
	net.repairQueue = append(net.repairQueue, block.Slot)

	return nil
}

// leaderForNextSlot selects the pseudo-random leader for nextSlot using the
// determinism contract's fixed, stable 64-bit hash.
func (net *Network) leaderForNextSlot() consensus.NodeID {
	return net.LeaderForSlot(int(net.nextSlot))
}

// LeaderForSlot exposes the deterministic hash(slot) mod N leader selection
// rule for callers driving PartitionStep directly with a caller-chosen slot
// counter.
func (net *Network) LeaderForSlot(slot int) consensus.NodeID {
	return consensus.NodeID(consensus.HashU64(uint64(slot)) % consensus.N)
}

// flushRepairQueue delivers every queued slot to every node, whatever its
// partition. It runs at the start of every PartitionStep and on Repair, so a
// node that missed a block while partitioned observes it one step later.
func (net *Network) flushRepairQueue() {
	if len(net.repairQueue) == 0 {
		return
	}
	for _, slot := range net.repairQueue {
		for _, n := range net.Nodes {
			n.SetActiveBlock(slot)
		}
	}
	net.repairQueue = net.repairQueue[:0]
}

// checkOCSafety is the live form of testable property 3 (OC-safety under
// churn): every slot that has ever passed a node's threshold check must
// remain at or above lowest_root, or be recorded in Forks.Roots as having
// once been canonical.
func (net *Network) checkOCSafety() error {
	for _, slot := range net.OCSlots.ToSlice() {
		if slot >= net.Forks.LowestRoot.Slot {
			continue
		}
		if net.Forks.Roots.Contains(slot) {
			continue
		}
		metrics.InvariantViolations.Inc()
		return &consensus.InvariantViolation{
			Kind:   consensus.KindOCSlotPrunedUnrooted,
			Detail: "oc slot pruned below lowest_root without appearing in roots",
		}
	}
	return nil
}
