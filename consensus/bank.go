package consensus

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Bank is a frozen voting snapshot for one slot: N towers plus the
// subcommittee state, created unfrozen as the child of a frozen parent,
// mutated by exactly one Apply, then frozen for the remainder of its life.
type Bank struct {
	Slot       Slot
	ParentSlot Slot
	Frozen     bool
	Towers     []*Tower
	Subcom     *Subcommittee
	Children   []Slot
}

// NewGenesisBank returns slot 0, created frozen with N fresh towers.
func NewGenesisBank() *Bank {
	towers := make([]*Tower, N)
	for i := range towers {
		towers[i] = NewTower()
	}
	return &Bank{
		Slot:       0,
		ParentSlot: 0,
		Frozen:     true,
		Towers:     towers,
		Subcom:     NewSubcommittee(),
	}
}

// Child clones all N towers and the subcommittee, records the child slot on
// the parent, and runs the subcommittee's rotation check. Only callable on a
// frozen parent; calling it on an unfrozen one is a protocol bug.
func (b *Bank) Child(slot Slot) (*Bank, error) {
	if !b.Frozen {
		return nil, newInvariantViolation(KindBankChildOfUnfrozen,
			"bank at slot %d is unfrozen", b.Slot)
	}

	towers := make([]*Tower, len(b.Towers))
	for i, t := range b.Towers {
		towers[i] = t.Clone()
	}
	subcom := b.Subcom.Child()
	subcom.InitChild(b.Subcom)

	child := &Bank{
		Slot:       slot,
		ParentSlot: b.Slot,
		Frozen:     false,
		Towers:     towers,
		Subcom:     subcom,
	}
	b.Children = append(b.Children, slot)
	return child, nil
}

// Apply lands a block's votes into this still-unfrozen bank, then freezes
// it: every vote's slot must be present in forkSet (a vote outside its own
// fork is a fatal invariant violation, not a gate rejection); rejections
// raised by the destination tower itself are silently ignored, the vote
// simply does not land.
func (b *Bank) Apply(block *Block, forkSet mapset.Set[Slot]) error {
	if b.Frozen {
		return newInvariantViolation(KindBankFrozenTwice, "bank at slot %d already frozen", b.Slot)
	}

	for _, nv := range block.Votes {
		for _, v := range nv.Votes {
			if !forkSet.Contains(v.Slot) {
				return newInvariantViolation(KindVoteOutsideFork,
					"node %d voted for slot %d outside fork of block %d", nv.Node, v.Slot, block.Slot)
			}
			_ = b.Towers[nv.Node].Apply(v) // gate rejection: vote silently does not land
		}
	}

	primary := b.PrimarySuperRoot()
	secondary := b.SecondarySuperRoot()
	superRoot := primary.Slot
	if secondary.Slot < superRoot {
		superRoot = secondary.Slot
	}
	if superRoot < b.Subcom.SuperRoot {
		superRoot = b.Subcom.SuperRoot
	}
	b.Subcom.Freeze(superRoot)
	b.Frozen = true
	return nil
}

// groupSuperRoot sorts the members' tower roots by slot ascending and
// returns the entry at position floor(|primary|/3) — the root at which at
// least two-thirds of the group has rooted.
//
// Note the off-by-intent: the index always uses the primary committee's
// size, even when set is the secondary committee. Under the fixed
// SubcommitteeSize this happens to be harmless because the two committees
// are drawn to the same nominal size, but it is reproduced verbatim per the
// source behavior rather than "fixed" — see DESIGN.md.
func (b *Bank) groupSuperRoot(set mapset.Set[NodeID]) Vote {
	roots := make([]Vote, 0, set.Cardinality())
	for id := range set.Iter() {
		roots = append(roots, b.Towers[id].Root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Slot < roots[j].Slot })

	idx := b.Subcom.Primary.Cardinality() / 3
	if idx >= len(roots) {
		idx = len(roots) - 1
	}
	if idx < 0 {
		return GenesisVote()
	}
	return roots[idx]
}

// PrimarySuperRoot applies groupSuperRoot to the primary committee.
func (b *Bank) PrimarySuperRoot() Vote { return b.groupSuperRoot(b.Subcom.Primary) }

// SecondarySuperRoot applies groupSuperRoot to the secondary committee.
func (b *Bank) SecondarySuperRoot() Vote { return b.groupSuperRoot(b.Subcom.Secondary) }

// PrimaryCalcThresholdSlot counts primary members for which the given vote
// would already be, or would become under a lockout multiplier of mult,
// durably ahead of their current tower state.
func (b *Bank) PrimaryCalcThresholdSlot(mult uint64, vote Vote) int {
	count := 0
	for id := range b.Subcom.Primary.Iter() {
		tower := b.Towers[id]

		if tower.Root.Slot >= vote.Slot {
			count++
			continue
		}

		if vote.Lockout == (uint64(1) << THRESHOLD) {
			found := false
			for _, v := range tower.Votes {
				if v.Slot >= vote.Slot {
					found = true
					break
				}
			}
			if found {
				count++
				continue
			}
		}

		matched := false
		for _, v := range tower.Votes {
			if v.Slot >= vote.Slot && uint64(v.Slot)+mult*v.Lockout >= uint64(vote.Slot)+vote.Lockout {
				matched = true
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

// PrimaryThresholdSlot reports whether more than two-thirds of the primary
// committee satisfies PrimaryCalcThresholdSlot at the 1<<THRESHOLD
// multiplier for vote.
func (b *Bank) PrimaryThresholdSlot(vote Vote) bool {
	count := b.PrimaryCalcThresholdSlot(uint64(1)<<THRESHOLD, vote)
	return float64(count) > (2.0/3.0)*float64(b.Subcom.Primary.Cardinality())
}

// PrimaryLatestVotes updates acc[id] to the max of its current value and
// this bank's latest observed vote slot for each primary member.
func (b *Bank) PrimaryLatestVotes(acc map[NodeID]Slot) {
	for id := range b.Subcom.Primary.Iter() {
		latest := b.Towers[id].LatestVote().Slot
		if cur, ok := acc[id]; !ok || latest > cur {
			acc[id] = latest
		}
	}
}

// CheckSubcommittee reports whether id belongs to either the primary or
// secondary committee of this bank.
func (b *Bank) CheckSubcommittee(id NodeID) bool {
	return b.Subcom.Primary.Contains(id) || b.Subcom.Secondary.Contains(id)
}

// LowestRoot returns the minimum tower root across all N towers in this
// bank — the bank-local contribution to Forks' global lowest_root.
func (b *Bank) LowestRoot() Vote {
	lowest := b.Towers[0].Root
	for _, t := range b.Towers[1:] {
		if t.Root.Slot < lowest.Slot {
			lowest = t.Root
		}
	}
	return lowest
}
