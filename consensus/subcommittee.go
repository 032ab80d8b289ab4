package consensus

import mapset "github.com/deckarep/golang-set/v2"

// Phase is the two-constructor rotation phase of a subcommittee epoch
// transition, keyed by parity of the epoch counter.
type Phase int

const (
	FlipPrimary Phase = iota
	SwapSecondary
)

// Subcommittee holds the rotating primary/secondary validator rolls that
// gate which votes count toward a super-root, plus the monotonic super-root
// bookkeeping used to detect rotation boundaries.
type Subcommittee struct {
	Primary   mapset.Set[NodeID]
	Secondary mapset.Set[NodeID]

	NumSuperRoots       uint64
	ParentNumSuperRoots uint64
	SuperRoot           Slot
	ParentSuperRoot     Slot
}

// NewSubcommittee returns the genesis subcommittee: primary and secondary
// both seeded from epoch 0.
func NewSubcommittee() *Subcommittee {
	primary := calcSubcommittee(0)
	return &Subcommittee{
		Primary:   primary,
		Secondary: primary.Clone(),
	}
}

// calcSubcommittee deterministically draws SubcommitteeSize node ids in
// [0, N) by repeatedly re-hashing a seed derived from epoch. Set insertion
// deduplicates collisions, so the effective size may be slightly below
// SubcommitteeSize — this is acceptable and must be reproduced faithfully,
// not padded out to an exact count.
func calcSubcommittee(epoch Epoch) mapset.Set[NodeID] {
	set := mapset.NewThreadUnsafeSet[NodeID]()
	seed := HashU64(uint64(epoch))
	for i := 0; i < SubcommitteeSize; i++ {
		set.Add(NodeID(seed % N))
		seed = HashU64(seed)
	}
	return set
}

// Child derives the next Bank's subcommittee state from a frozen parent:
// rolls carry forward unchanged and the parent's num_super_roots becomes
// this Bank's parent_num_super_roots, pending init_child's rotation check.
func (s *Subcommittee) Child() *Subcommittee {
	return &Subcommittee{
		Primary:             s.Primary.Clone(),
		Secondary:           s.Secondary.Clone(),
		NumSuperRoots:       s.NumSuperRoots,
		ParentNumSuperRoots: s.NumSuperRoots,
		SuperRoot:           s.SuperRoot,
		ParentSuperRoot:     s.SuperRoot,
	}
}

// epoch returns parent_num_super_roots / SubcommitteeEpoch.
func (s *Subcommittee) epoch() Epoch { return Epoch(s.ParentNumSuperRoots / SubcommitteeEpoch) }

// phase returns the rotation phase for the current epoch.
func (s *Subcommittee) phase() Phase {
	if s.epoch()%2 == 0 {
		return FlipPrimary
	}
	return SwapSecondary
}

// InitChild runs once when a child Bank is created. If this Bank's epoch
// differs from the parent's, it either swaps primary/secondary
// (FlipPrimary) or redraws secondary (SwapSecondary); otherwise no
// rotation occurs this slot.
func (s *Subcommittee) InitChild(parent *Subcommittee) {
	if s.epoch() == parent.epoch() {
		return
	}
	switch s.phase() {
	case FlipPrimary:
		s.Primary, s.Secondary = s.Secondary, s.Primary
	case SwapSecondary:
		s.Secondary = calcSubcommittee(s.epoch())
	}
}

// Freeze monotonically raises super_root to the given, already-clamped
// value; a strict rise also increments num_super_roots.
func (s *Subcommittee) Freeze(superRoot Slot) {
	if superRoot > s.SuperRoot {
		s.SuperRoot = superRoot
		if s.SuperRoot != s.ParentSuperRoot {
			s.NumSuperRoots++
		}
	}
}
