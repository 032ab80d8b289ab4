package consensus

import mapset "github.com/deckarep/golang-set/v2"

// Forks is the DAG of banks: fork_map keyed by slot, the running
// primary_fork_weights, and the monotonic lowest_root watermark. Every
// Bank's ParentSlot is either also in fork_map or strictly below
// lowest_root (already pruned). roots accumulates every slot that has ever
// been lowest_root, so a chain that gets pruned below it can still be
// proven to have been part of the canonical history.
type Forks struct {
	ForkMap            map[Slot]*Bank
	PrimaryForkWeights map[Slot]int
	LowestRoot         Vote
	Roots              mapset.Set[Slot]
}

// NewForks returns a Forks container seeded with the genesis bank.
func NewForks() *Forks {
	genesis := NewGenesisBank()
	return &Forks{
		ForkMap:            map[Slot]*Bank{0: genesis},
		PrimaryForkWeights: map[Slot]int{0: 0},
		LowestRoot:         GenesisVote(),
		Roots:              mapset.NewThreadUnsafeSet[Slot](0),
	}
}

// Apply builds a child bank from block.ParentSlot, applies the block's
// votes, freezes it, inserts it into fork_map, advances lowest_root when
// the new bank's minimum root has moved forward (pruning everything no
// longer reachable from it), and rebuilds fork weights. Any error returned
// is a fatal InvariantViolation; there is no gate-rejection path at this
// layer because a Block reaching Forks.Apply has already survived Node's
// gating checks.
func (f *Forks) Apply(block *Block) error {
	parent, ok := f.ForkMap[block.ParentSlot]
	if !ok {
		return newInvariantViolation(KindVoteOutsideFork,
			"block %d references unknown parent %d", block.Slot, block.ParentSlot)
	}

	bank, err := parent.Child(block.Slot)
	if err != nil {
		return err
	}

	forkSet := f.ComputeFork(block.ParentSlot)
	forkSet.Add(bank.Slot)

	if err := bank.Apply(block, forkSet); err != nil {
		return err
	}

	if bank.Subcom.phase() == FlipPrimary && bank.Subcom.epoch() != parent.Subcom.epoch() {
		if err := f.checkDivergence(bank); err != nil {
			return err
		}
	}

	newLowestRoot := bank.LowestRoot()
	f.ForkMap[bank.Slot] = bank

	if newLowestRoot.Slot > f.LowestRoot.Slot {
		if err := f.advanceLowestRoot(newLowestRoot); err != nil {
			return err
		}
		f.gc()
	}

	f.buildForkWeights()
	return nil
}

// ComputeFork walks parent_slot references from slot back to genesis (or
// until a slot is missing from fork_map, i.e. already pruned) and returns
// the set of slots on that chain.
func (f *Forks) ComputeFork(slot Slot) mapset.Set[Slot] {
	fork := mapset.NewThreadUnsafeSet[Slot]()
	cur := slot
	for {
		fork.Add(cur)
		bank, ok := f.ForkMap[cur]
		if !ok {
			break
		}
		if bank.ParentSlot == cur {
			break
		}
		cur = bank.ParentSlot
	}
	return fork
}

// IsChild reports whether slotB lies on the chain from slotA back to
// genesis (or the earliest still-tracked ancestor).
func (f *Forks) IsChild(slotA, slotB Slot) bool {
	return f.ComputeFork(slotA).Contains(slotB)
}

// checkDivergence asserts that primary and secondary super-roots at a
// FlipPrimary rotation boundary are comparable — equal, or one an ancestor
// of the other. A violation here means the two committees have rooted
// incompatible histories, the core safety property this simulator exists
// to test.
func (f *Forks) checkDivergence(bank *Bank) error {
	primary := bank.PrimarySuperRoot().Slot
	secondary := bank.SecondarySuperRoot().Slot
	if primary == secondary || f.IsChild(primary, secondary) || f.IsChild(secondary, primary) {
		return nil
	}

	// Not comparable by walking the live tree. That's only forgivable if
	// one side was already pruned below lowest_root and is on record in
	// Roots as having once been canonical.
	prunedAndRooted := func(slot Slot) bool {
		return slot < f.LowestRoot.Slot && f.Roots.Contains(slot)
	}
	if prunedAndRooted(primary) || prunedAndRooted(secondary) {
		return nil
	}

	return newInvariantViolation(KindSubcommitteeDivergent,
		"primary super-root %d and secondary super-root %d diverged at bank %d", primary, secondary, bank.Slot)
}

// advanceLowestRoot records every slot on the chain from the new root back
// to the old one, asserting that chain actually reaches the old root (a
// broken chain would mean lowest_root regressed outside the known tree),
// then commits the new value.
func (f *Forks) advanceLowestRoot(newLowestRoot Vote) error {
	cur := newLowestRoot.Slot
	for cur != f.LowestRoot.Slot {
		f.Roots.Add(cur)
		bank, ok := f.ForkMap[cur]
		if !ok {
			return newInvariantViolation(KindLowestRootChainBroken,
				"chain from new lowest_root %d never reaches old lowest_root %d", newLowestRoot.Slot, f.LowestRoot.Slot)
		}
		if bank.ParentSlot == cur {
			return newInvariantViolation(KindLowestRootChainBroken,
				"chain from new lowest_root %d never reaches old lowest_root %d", newLowestRoot.Slot, f.LowestRoot.Slot)
		}
		cur = bank.ParentSlot
	}
	f.Roots.Add(f.LowestRoot.Slot)
	f.LowestRoot = newLowestRoot
	return nil
}

// gc retains only banks reachable by descending Children from
// lowest_root.Slot; everything else, including its tower storage, is
// dropped. The retained set is computed into a scratch map first and
// swapped in atomically rather than mutated during traversal.
func (f *Forks) gc() {
	valid := make(map[Slot]*Bank, len(f.ForkMap))
	stack := []Slot{f.LowestRoot.Slot}
	for len(stack) > 0 {
		slot := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		bank, ok := f.ForkMap[slot]
		if !ok {
			continue
		}
		valid[slot] = bank
		stack = append(stack, bank.Children...)
	}
	f.ForkMap = valid
}

// buildForkWeights rebuilds primary_fork_weights: each validator's latest
// primary vote slot counts toward every descendant of that slot, even
// after the validator's tower is no longer locked on it there, as long as
// it remains that validator's latest observed vote.
func (f *Forks) buildForkWeights() {
	latest := make(map[NodeID]Slot)
	for _, bank := range f.ForkMap {
		bank.PrimaryLatestVotes(latest)
	}

	slotVotes := make(map[Slot]int)
	for _, slot := range latest {
		slotVotes[slot]++
	}

	weights := make(map[Slot]int)
	stack := []Slot{f.LowestRoot.Slot}
	for len(stack) > 0 {
		slot := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		bank, ok := f.ForkMap[slot]
		if !ok {
			continue
		}
		stack = append(stack, bank.Children...)
		parentWeight := weights[bank.ParentSlot]
		weights[slot] = parentWeight + slotVotes[slot]
	}
	f.PrimaryForkWeights = weights
}
