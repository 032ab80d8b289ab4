package consensus

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
)

func applyFreshVote(t *testing.T, forks *Forks, slot, parent Slot, node NodeID) {
	t.Helper()
	block := &Block{
		Slot:       slot,
		ParentSlot: parent,
		Votes:      []NodeVotes{{Node: node, Votes: []Vote{{Slot: slot, Lockout: 2}}}},
	}
	if err := forks.Apply(block); err != nil {
		t.Fatalf("apply slot %d: %v", slot, err)
	}
}

func TestForksApplyGrowsForkMap(t *testing.T) {
	forks := NewForks()
	applyFreshVote(t, forks, 1, 0, 0)
	if _, ok := forks.ForkMap[1]; !ok {
		t.Fatalf("expected slot 1 in fork_map")
	}
	if _, ok := forks.ForkMap[0]; !ok {
		t.Fatalf("expected genesis to remain present")
	}
}

func TestForksApplyRejectsUnknownParent(t *testing.T) {
	forks := NewForks()
	block := &Block{Slot: 5, ParentSlot: 99}
	if err := forks.Apply(block); !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation for unknown parent, got %v", err)
	}
}

func TestForksComputeForkWalksToGenesis(t *testing.T) {
	forks := NewForks()
	applyFreshVote(t, forks, 1, 0, 0)
	applyFreshVote(t, forks, 2, 1, 0)

	fork := forks.ComputeFork(2)
	for _, want := range []Slot{0, 1, 2} {
		if !fork.Contains(want) {
			t.Fatalf("fork %v missing slot %d", fork.ToSlice(), want)
		}
	}
}

func TestForksGCPrunesUnreachableBanks(t *testing.T) {
	forks := NewForks()
	applyFreshVote(t, forks, 1, 0, 0)
	// Manually force lowest_root forward to exercise gc without driving all
	// N towers through DEPTH votes.
	forks.LowestRoot = Vote{Slot: 1, Lockout: RootLockout}
	forks.gc()
	if _, ok := forks.ForkMap[0]; ok {
		t.Fatalf("expected genesis to be pruned after lowest_root advanced past it")
	}
	if _, ok := forks.ForkMap[1]; !ok {
		t.Fatalf("expected slot 1 (new lowest_root) to remain")
	}
}

func TestForksBuildForkWeightsCountsLatestVoteOnce(t *testing.T) {
	forks := NewForks()
	applyFreshVote(t, forks, 1, 0, 0)
	if _, ok := forks.PrimaryForkWeights[1]; !ok {
		t.Fatalf("expected a weight entry for slot 1 after apply, got %+v", forks.PrimaryForkWeights)
	}
	// Every primary member's latest vote lies on the chain 0 -> 1, so slot 1
	// carries each of them exactly once.
	want := forks.ForkMap[1].Subcom.Primary.Cardinality()
	if got := forks.PrimaryForkWeights[1]; got != want {
		t.Fatalf("weight of slot 1 = %d, want %d", got, want)
	}
}

// TestForksApplyDetectsSubcommitteeDivergence forces a FlipPrimary rotation
// boundary whose primary and secondary committees are rooted on two
// unrelated forks, and confirms Forks.Apply raises the divergence guard
// instead of silently accepting it.
func TestForksApplyDetectsSubcommitteeDivergence(t *testing.T) {
	forks := NewForks()

	// Two sibling forks off genesis; neither is an ancestor of the other.
	forks.ForkMap[1] = &Bank{Slot: 1, ParentSlot: 0}
	forks.ForkMap[2] = &Bank{Slot: 2, ParentSlot: 0}

	// A frozen parent bank whose primary committee is rooted on fork 1 and
	// secondary on fork 2. Its num_super_roots is set so that the child's
	// parent_num_super_roots lands on epoch 2 (even => FlipPrimary), one
	// rotation boundary past the parent's own epoch 0.
	parent := &Bank{
		Slot:       3,
		ParentSlot: 0,
		Frozen:     true,
		Towers:     []*Tower{NewTower(), NewTower()},
		Subcom: &Subcommittee{
			Primary:       mapset.NewThreadUnsafeSet[NodeID](0),
			Secondary:     mapset.NewThreadUnsafeSet[NodeID](1),
			NumSuperRoots: 2 * SubcommitteeEpoch,
		},
	}
	parent.Towers[0].Root = Vote{Slot: 1, Lockout: RootLockout}
	parent.Towers[1].Root = Vote{Slot: 2, Lockout: RootLockout}
	forks.ForkMap[3] = parent

	block := &Block{Slot: 10, ParentSlot: 3}
	err := forks.Apply(block)
	if !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation for diverged super-roots, got %v", err)
	}
	if iv := err.(*InvariantViolation); iv.Kind != KindSubcommitteeDivergent {
		t.Fatalf("expected KindSubcommitteeDivergent, got %q", iv.Kind)
	}
}
