package consensus

import "github.com/pkg/errors"

// DEPTH bounds the number of entries a Tower holds before its oldest entry
// is promoted to root. THRESHOLD is the lockout power (2^THRESHOLD) used by
// the optimistic-confirmation threshold check.
const (
	DEPTH     = 16
	THRESHOLD = 6
)

// Tower errors. These are gate rejections: callers abstain for the slot and
// retry later, they never halt the simulator.
var (
	ErrVoteNotFresh = errors.New("tower: vote lockout must be 2")
	ErrVoteGoesBack = errors.New("tower: vote slot does not advance the tower")
)

// Vote pairs a slot with its current lockout. Lockout is always a power of
// two; fresh proposals use 2, a promoted root carries 1<<DEPTH.
type Vote struct {
	Slot    Slot
	Lockout uint64
}

// RootLockout is the lockout value carried by a promoted root entry.
const RootLockout = uint64(1) << DEPTH

// GenesisVote is the root of an empty Tower.
func GenesisVote() Vote { return Vote{Slot: 0, Lockout: RootLockout} }

// Tower is a per-validator lockout stack: Votes holds at most DEPTH entries,
// front (index 0) is the newest, strictly decreasing in slot and strictly
// increasing in lockout toward the back. Root is the single entry promoted
// out of the stack once its lockout reaches 1<<DEPTH.
type Tower struct {
	Votes []Vote
	Root  Vote
}

// NewTower returns an empty Tower rooted at genesis.
func NewTower() *Tower {
	return &Tower{Votes: make([]Vote, 0, DEPTH), Root: GenesisVote()}
}

// Clone returns a deep copy, the only way a Tower may be speculatively
// mutated (Node.Vote's "sim" tower, Bank.Child's per-node copy).
func (t *Tower) Clone() *Tower {
	c := &Tower{Votes: make([]Vote, len(t.Votes)), Root: t.Root}
	copy(c.Votes, t.Votes)
	return c
}

// Apply applies a fresh vote (lockout == 2) to the tower: pops entries whose
// lockout window has expired relative to the new slot, pushes the vote to
// the front, performs a single forward merge-doubling pass, and promotes a
// new root if the back entry reaches 1<<DEPTH. Returns a gate-rejection
// error (ErrVoteNotFresh, ErrVoteGoesBack) without mutating the tower if the
// vote cannot land.
func (t *Tower) Apply(vote Vote) error {
	if vote.Lockout != 2 {
		return ErrVoteNotFresh
	}
	if vote.Slot <= t.Root.Slot {
		return ErrVoteGoesBack
	}
	if len(t.Votes) > 0 && t.Votes[0].Slot >= vote.Slot {
		return ErrVoteGoesBack
	}

	for len(t.Votes) > 0 && t.Votes[0].Slot+Slot(t.Votes[0].Lockout) < vote.Slot {
		t.Votes = t.Votes[1:]
	}

	t.Votes = append([]Vote{vote}, t.Votes...)

	for i := 1; i < DEPTH && i < len(t.Votes); i++ {
		if t.Votes[i].Lockout == t.Votes[i-1].Lockout {
			t.Votes[i].Lockout *= 2
		}
	}

	if back := len(t.Votes) - 1; back >= 0 && t.Votes[back].Lockout == RootLockout {
		t.Root = t.Votes[back]
		t.Votes = t.Votes[:back]
	}
	return nil
}

// GetIncreasedLockouts returns, for every slot where other holds a strictly
// greater lockout than self, that greater lockout value. Entries of other
// (root included) with lockout below skipLockout are ignored. The merge
// rule guarantees any such difference is exactly a doubling, never a skip.
func (t *Tower) GetIncreasedLockouts(skipLockout uint64, other *Tower) map[Slot]uint64 {
	self := make(map[Slot]uint64, len(t.Votes)+1)
	self[t.Root.Slot] = t.Root.Lockout
	for _, v := range t.Votes {
		self[v.Slot] = v.Lockout
	}

	increased := make(map[Slot]uint64)
	check := func(v Vote) {
		if v.Lockout < skipLockout {
			return
		}
		have, ok := self[v.Slot]
		if !ok || have < v.Lockout {
			increased[v.Slot] = v.Lockout
		}
	}
	check(other.Root)
	for _, v := range other.Votes {
		check(v)
	}
	return increased
}

// LatestVote returns the front entry, or Root if the tower is empty.
func (t *Tower) LatestVote() Vote {
	if len(t.Votes) == 0 {
		return t.Root
	}
	return t.Votes[0]
}

// VotesChronological returns Root followed by the tower entries oldest
// first — the proposal payload replayed into a remote bank.
func (t *Tower) VotesChronological() []Vote {
	out := make([]Vote, 0, len(t.Votes)+1)
	out = append(out, t.Root)
	for i := len(t.Votes) - 1; i >= 0; i-- {
		out = append(out, t.Votes[i])
	}
	return out
}
