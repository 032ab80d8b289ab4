package node

import (
	"testing"

	"github.com/towersim/towersim/consensus"
)

func TestSetActiveBlockPrunesBelowRoot(t *testing.T) {
	n := New(0)
	n.Tower.Root = consensus.Vote{Slot: 2000, Lockout: consensus.RootLockout}
	for s := consensus.Slot(0); s < maxBlocksRemembered+1; s++ {
		n.SetActiveBlock(s)
	}
	if n.Blocks.Contains(consensus.Slot(0)) {
		t.Fatalf("expected slots below root to be pruned")
	}
}

func TestVotesResetsLockoutToTwo(t *testing.T) {
	n := New(0)
	for i := consensus.Slot(1); i <= 3; i++ {
		if err := n.Tower.Apply(consensus.Vote{Slot: i, Lockout: 2}); err != nil {
			t.Fatalf("apply(%d): %v", i, err)
		}
	}
	for _, v := range n.Votes() {
		if v.Lockout != 2 {
			t.Fatalf("expected every proposal lockout reset to 2, got %+v", v)
		}
	}
}

func TestMakeBlockFiltersVotesOffHeaviestFork(t *testing.T) {
	n := New(0)
	n.HeaviestFork.Add(5)
	n.HeaviestFork.Add(3)

	votes := map[consensus.NodeID][]consensus.Vote{
		1: {{Slot: 5, Lockout: 2}},
		2: {{Slot: 9, Lockout: 2}}, // off the heaviest fork, dropped
	}
	block := n.MakeBlock(10, votes)
	if block.ParentSlot != 5 {
		t.Fatalf("parent = %d, want 5 (max of heaviest fork)", block.ParentSlot)
	}
	if len(block.Votes) != 1 || block.Votes[0].Node != 1 {
		t.Fatalf("expected only node 1's votes kept, got %+v", block.Votes)
	}
}

func TestVoteCommitsOnFreshForks(t *testing.T) {
	forks := consensus.NewForks()
	genesis := forks.ForkMap[0]

	// Slot 0 is every tower's root, so a vote needs a block above genesis.
	// A primary member's vote landing in slot 1 makes slot 1 strictly the
	// heaviest observed slot.
	var member consensus.NodeID
	for id := consensus.NodeID(0); id < consensus.N; id++ {
		if genesis.Subcom.Primary.Contains(id) {
			member = id
			break
		}
	}
	block := &consensus.Block{
		Slot:       1,
		ParentSlot: 0,
		Votes:      []consensus.NodeVotes{{Node: member, Votes: []consensus.Vote{{Slot: 1, Lockout: 2}}}},
	}
	if err := forks.Apply(block); err != nil {
		t.Fatalf("apply slot 1: %v", err)
	}

	n := New(member)
	n.SetActiveBlock(1)

	result, err := n.Vote(forks)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected vote to commit on a fresh Forks, got reason %q", result.Reason)
	}
}

func TestVoteAbstainsWhenNotInSubcommittee(t *testing.T) {
	forks := consensus.NewForks()
	genesis := forks.ForkMap[0]

	var outsider consensus.NodeID
	for id := consensus.NodeID(0); id < consensus.N; id++ {
		if !genesis.CheckSubcommittee(id) {
			outsider = id
			break
		}
	}

	n := New(outsider)
	n.Blocks.Add(0)
	result, err := n.Vote(forks)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if result.Accepted {
		t.Fatalf("expected an outsider node to abstain")
	}
}
