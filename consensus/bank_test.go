package consensus

import (
	mapset "github.com/deckarep/golang-set/v2"
	"testing"
)

func TestBankChildRequiresFrozenParent(t *testing.T) {
	genesis := NewGenesisBank()
	child, err := genesis.Child(1)
	if err != nil {
		t.Fatalf("child of frozen genesis: %v", err)
	}
	if _, err := child.Child(2); !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation creating child of unfrozen bank, got %v", err)
	}
}

func TestBankApplyRejectsFrozenTwice(t *testing.T) {
	genesis := NewGenesisBank()
	child, err := genesis.Child(1)
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	fork := mapset.NewThreadUnsafeSet[Slot](0, 1)
	block := &Block{Slot: 1, ParentSlot: 0}
	if err := child.Apply(block, fork); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := child.Apply(block, fork); !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation on double-freeze, got %v", err)
	}
}

func TestBankApplyRejectsVoteOutsideFork(t *testing.T) {
	genesis := NewGenesisBank()
	child, err := genesis.Child(1)
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	fork := mapset.NewThreadUnsafeSet[Slot](0, 1)
	block := &Block{
		Slot:       1,
		ParentSlot: 0,
		Votes:      []NodeVotes{{Node: 0, Votes: []Vote{{Slot: 99, Lockout: 2}}}},
	}
	if err := child.Apply(block, fork); !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation for out-of-fork vote, got %v", err)
	}
}

func TestBankApplyLandsVotesAndFreezes(t *testing.T) {
	genesis := NewGenesisBank()
	child, err := genesis.Child(1)
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	fork := mapset.NewThreadUnsafeSet[Slot](0, 1)
	block := &Block{
		Slot:       1,
		ParentSlot: 0,
		Votes:      []NodeVotes{{Node: 0, Votes: []Vote{{Slot: 1, Lockout: 2}}}},
	}
	if err := child.Apply(block, fork); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !child.Frozen {
		t.Fatalf("bank not frozen after apply")
	}
	if got := child.Towers[0].LatestVote(); got.Slot != 1 {
		t.Fatalf("vote did not land: %+v", got)
	}
}

func TestBankGroupSuperRootUsesPrimarySizeForBothSets(t *testing.T) {
	genesis := NewGenesisBank()
	// Craft a secondary committee of different cardinality than primary to
	// surface the off-by-intent index reuse described in DESIGN.md.
	smallSecondary := mapset.NewThreadUnsafeSet[NodeID]()
	for id := range genesis.Subcom.Secondary.Iter() {
		smallSecondary.Add(id)
		if smallSecondary.Cardinality() >= 3 {
			break
		}
	}
	genesis.Subcom.Secondary = smallSecondary

	// Index used is always Primary.Cardinality()/3, clamped defensively when
	// it would run past the smaller set's length.
	got := genesis.SecondarySuperRoot()
	if got.Slot != 0 {
		t.Fatalf("expected genesis root for secondary super-root, got %+v", got)
	}
}
