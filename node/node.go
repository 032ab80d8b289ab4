// Package node implements the per-validator local policy: heaviest-fork
// selection over the shared Forks snapshot, a speculative tower vote, and
// the three gating checks (lockout, threshold, optimistic-confirmation)
// that decide whether the speculative vote actually commits.
package node

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/towersim/towersim/consensus"
	"github.com/towersim/towersim/metrics"
)

// errHeaviestForkMissingRoot is the only error Vote returns: heaviest_fork
// failing to contain the network's root is treated as an assertion rather
// than an abstain path. Gate rejections are not errors; they are surfaced
// through VoteResult.Reason.
var errHeaviestForkMissingRoot = errors.New("node: heaviest fork does not contain lowest_root")

// Node is a single validator's local state: its identity, its committed
// tower, the set of block slots it has observed, and its current choice of
// heaviest fork.
type Node struct {
	ID           consensus.NodeID
	Tower        *consensus.Tower
	Blocks       mapset.Set[consensus.Slot]
	HeaviestFork mapset.Set[consensus.Slot]
}

// maxBlocksRemembered bounds Blocks before old slots below the tower root
// are forgotten.
const maxBlocksRemembered = 1024

// New returns a node rooted at genesis with no blocks observed yet.
func New(id consensus.NodeID) *Node {
	return &Node{
		ID:           id,
		Tower:        consensus.NewTower(),
		Blocks:       mapset.NewThreadUnsafeSet[consensus.Slot](0),
		HeaviestFork: mapset.NewThreadUnsafeSet[consensus.Slot](0),
	}
}

// SetActiveBlock records that this node has observed slot. Once more than
// maxBlocksRemembered slots are tracked, everything below the current
// tower root is forgotten.
func (n *Node) SetActiveBlock(slot consensus.Slot) {
	n.Blocks.Add(slot)
	if n.Blocks.Cardinality() <= maxBlocksRemembered {
		return
	}
	root := n.Tower.Root.Slot
	for _, s := range n.Blocks.ToSlice() {
		if s < root {
			n.Blocks.Remove(s)
		}
	}
}

// Votes returns the chronological reconstruction of the current tower with
// every lockout reset to 2 — the proposal payload for inclusion in future
// blocks.
func (n *Node) Votes() []consensus.Vote {
	chron := n.Tower.VotesChronological()
	out := make([]consensus.Vote, len(chron))
	for i, v := range chron {
		out[i] = consensus.Vote{Slot: v.Slot, Lockout: 2}
	}
	return out
}

// MakeBlock builds a Block targeting this node's heaviest fork: parent is
// the latest slot on that fork, and each validator's vote list is kept only
// when its last vote's slot also lies on that fork.
func (n *Node) MakeBlock(slot consensus.Slot, allVotes map[consensus.NodeID][]consensus.Vote) *consensus.Block {
	parent := consensus.Slot(0)
	for _, s := range n.HeaviestFork.ToSlice() {
		if s > parent {
			parent = s
		}
	}

	included := make([]consensus.NodeVotes, 0, len(allVotes))
	for id, votes := range allVotes {
		if len(votes) == 0 {
			continue
		}
		last := votes[len(votes)-1]
		if n.HeaviestFork.Contains(last.Slot) {
			included = append(included, consensus.NodeVotes{Node: id, Votes: votes})
		}
	}
	sort.Slice(included, func(i, j int) bool { return included[i].Node < included[j].Node })

	return &consensus.Block{Slot: slot, ParentSlot: parent, Votes: included}
}

// VoteResult reports the outcome of Vote: either the node committed its
// speculative tower (Accepted), or it abstained for a named Reason.
// ConfirmedSlot is set when the committed vote durably satisfies the bank's
// threshold check — the optimistic-confirmation claim the network-level
// oc_slots safety property tracks.
type VoteResult struct {
	Accepted      bool
	Reason        string
	ConfirmedSlot *consensus.Slot
}

func abstain(reason string) (*VoteResult, error) {
	return &VoteResult{Accepted: false, Reason: reason}, nil
}

// Vote runs the full per-slot decision procedure: pick the heaviest fork
// visible among observed blocks, simulate applying a fresh vote for it,
// gate the simulated tower through the lockout, threshold, and
// optimistic-confirmation checks, and commit only if every gate passes.
func (n *Node) Vote(forks *consensus.Forks) (*VoteResult, error) {
	heaviestSlot := n.pickHeaviestSlot(forks)

	heaviestFork := forks.ComputeFork(heaviestSlot)
	if !heaviestFork.Contains(forks.LowestRoot.Slot) {
		return nil, errors.Wrapf(errHeaviestForkMissingRoot,
			"node %d heaviest slot %d", n.ID, heaviestSlot)
	}
	n.HeaviestFork = heaviestFork

	bank, ok := forks.ForkMap[heaviestSlot]
	if !ok {
		return abstain("heaviest slot not present in fork_map")
	}
	if !bank.CheckSubcommittee(n.ID) {
		metrics.GateRejectionsNotSubcommittee.Inc()
		return abstain("not a member of primary or secondary committee")
	}

	sim := n.Tower.Clone()
	if err := sim.Apply(consensus.Vote{Slot: heaviestSlot, Lockout: 2}); err != nil {
		metrics.GateRejectionsTower.Inc()
		return abstain("tower rejected speculative vote: " + err.Error())
	}

	for _, v := range sim.Votes {
		if !heaviestFork.Contains(v.Slot) {
			metrics.GateRejectionsLockout.Inc()
			return abstain("lockout check failed")
		}
	}

	if !n.checkThreshold(bank, sim) {
		metrics.GateRejectionsThreshold.Inc()
		return abstain("threshold check failed")
	}

	var confirmedSlot *consensus.Slot
	if n.checkOptimisticConfirmation(forks, sim, heaviestFork) {
		slot := heaviestSlot
		confirmedSlot = &slot
	} else {
		metrics.GateRejectionsOptimisticConfirmation.Inc()
		return abstain("optimistic confirmation check failed")
	}

	n.Tower = sim
	metrics.VotesCommitted.Inc()
	return &VoteResult{Accepted: true, ConfirmedSlot: confirmedSlot}, nil
}

// pickHeaviestSlot restricts primary_fork_weights to observed blocks and
// returns the slot with the greatest weight, defaulting to 0. Ties break
// toward the higher slot, so the choice does not depend on set iteration
// order; tests never assert on it.
func (n *Node) pickHeaviestSlot(forks *consensus.Forks) consensus.Slot {
	heaviestSlot := consensus.Slot(0)
	heaviestWeight := -1
	for _, slot := range n.Blocks.ToSlice() {
		weight, ok := forks.PrimaryForkWeights[slot]
		if !ok {
			continue
		}
		if weight > heaviestWeight || (weight == heaviestWeight && slot > heaviestSlot) {
			heaviestWeight = weight
			heaviestSlot = slot
		}
	}
	return heaviestSlot
}

// checkThreshold replays the node's speculative tower into a clone of the
// bank's own record for this node, and requires every lockout increase
// that observation reveals to already satisfy the bank's two-thirds
// threshold predicate.
func (n *Node) checkThreshold(bank *consensus.Bank, sim *consensus.Tower) bool {
	result := bank.Towers[n.ID].Clone()
	for _, v := range sim.VotesChronological() {
		_ = result.Apply(consensus.Vote{Slot: v.Slot, Lockout: 2})
	}

	increased := n.Tower.GetIncreasedLockouts(uint64(1)<<consensus.THRESHOLD, result)
	for slot, lockout := range increased {
		if !bank.PrimaryThresholdSlot(consensus.Vote{Slot: slot, Lockout: lockout}) {
			return false
		}
	}
	return true
}

// checkOptimisticConfirmation passes trivially when the simulated tower has
// no votes or its newest vote lies on the heaviest fork. Otherwise it sums
// the fork weight of every observed slot strictly newer than the last vote
// that is neither on the last vote's fork nor a descendant of it, and
// requires that sum to exceed N/3 — evidence that abandoning the last vote
// could not have happened without that much of the network switching away.
func (n *Node) checkOptimisticConfirmation(forks *consensus.Forks, sim *consensus.Tower, heaviestFork mapset.Set[consensus.Slot]) bool {
	if len(sim.Votes) == 0 {
		return true
	}
	lastVote := sim.Votes[0]
	if heaviestFork.Contains(lastVote.Slot) {
		return true
	}

	lastVoteFork := forks.ComputeFork(lastVote.Slot)
	sum := 0
	for _, slot := range n.Blocks.ToSlice() {
		if slot <= lastVote.Slot {
			continue
		}
		if lastVoteFork.Contains(slot) {
			continue
		}
		if forks.IsChild(slot, lastVote.Slot) {
			continue
		}
		sum += forks.PrimaryForkWeights[slot]
	}
	return float64(sum) > float64(consensus.N)/3.0
}
