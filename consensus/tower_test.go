package consensus

import (
	"reflect"
	"testing"
)

func freshVote(slot Slot) Vote { return Vote{Slot: slot, Lockout: 2} }

func TestTowerApplySetsLatestVote(t *testing.T) {
	tower := NewTower()
	v := freshVote(1)
	if err := tower.Apply(v); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := tower.LatestVote(); got != v {
		t.Fatalf("latest vote = %+v, want %+v", got, v)
	}
}

func TestTowerRootPromotionAtDepth(t *testing.T) {
	tower := NewTower()
	for i := Slot(1); i <= DEPTH; i++ {
		if err := tower.Apply(freshVote(i)); err != nil {
			t.Fatalf("apply(%d): %v", i, err)
		}
	}
	want := Vote{Slot: 1, Lockout: RootLockout}
	if tower.Root != want {
		t.Fatalf("root = %+v, want %+v", tower.Root, want)
	}
}

// TestTowerCascadingDoubling reproduces the DEPTH+8/9/10/11 sequence from
// the reference implementation: three pops, then a cascade of doublings
// that eventually promotes slot 1 out as the new root.
func TestTowerCascadingDoubling(t *testing.T) {
	tower := NewTower()
	for i := Slot(1); i < DEPTH; i++ {
		if err := tower.Apply(freshVote(i)); err != nil {
			t.Fatalf("apply(%d): %v", i, err)
		}
	}
	if want := (Vote{Slot: 0, Lockout: RootLockout}); tower.Root != want {
		t.Fatalf("root = %+v, want %+v", tower.Root, want)
	}

	want := make([]Vote, 0, DEPTH-1)
	for x := Slot(1); x < DEPTH; x++ {
		want = append(want, Vote{Slot: Slot(DEPTH) - x, Lockout: uint64(1) << uint(x)})
	}
	if !reflect.DeepEqual(tower.Votes, want) {
		t.Fatalf("votes = %+v, want %+v", tower.Votes, want)
	}

	v := Vote{Slot: DEPTH + 8, Lockout: 2}
	if err := tower.Apply(v); err != nil {
		t.Fatalf("apply(+8): %v", err)
	}
	if want := (Vote{Slot: 0, Lockout: RootLockout}); tower.Root != want {
		t.Fatalf("root after +8 = %+v, want %+v", tower.Root, want)
	}
	want = append([]Vote{v}, want[3:]...)
	if !reflect.DeepEqual(tower.Votes, want) {
		t.Fatalf("votes after +8 = %+v, want %+v", tower.Votes, want)
	}

	v = Vote{Slot: DEPTH + 9, Lockout: 2}
	if err := tower.Apply(v); err != nil {
		t.Fatalf("apply(+9): %v", err)
	}
	want = append([]Vote{v}, want...)
	want[1].Lockout *= 2
	if !reflect.DeepEqual(tower.Votes, want) {
		t.Fatalf("votes after +9 = %+v, want %+v", tower.Votes, want)
	}

	v = Vote{Slot: DEPTH + 10, Lockout: 2}
	if err := tower.Apply(v); err != nil {
		t.Fatalf("apply(+10): %v", err)
	}
	want = append([]Vote{v}, want...)
	want[1].Lockout *= 2
	want[2].Lockout *= 2
	if !reflect.DeepEqual(tower.Votes, want) {
		t.Fatalf("votes after +10 = %+v, want %+v", tower.Votes, want)
	}

	v = Vote{Slot: DEPTH + 11, Lockout: 2}
	if err := tower.Apply(v); err != nil {
		t.Fatalf("apply(+11): %v", err)
	}
	wantRoot := Vote{Slot: 1, Lockout: RootLockout}
	if tower.Root != wantRoot {
		t.Fatalf("root after +11 = %+v, want %+v", tower.Root, wantRoot)
	}
}

func TestTowerApplyRejectsBackwardVote(t *testing.T) {
	tower := NewTower()
	if err := tower.Apply(freshVote(5)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := tower.Clone()
	if err := tower.Apply(freshVote(5)); err == nil {
		t.Fatalf("expected rejection for duplicate slot")
	}
	if !reflect.DeepEqual(before, tower) {
		t.Fatalf("tower mutated on rejected apply")
	}
	if err := tower.Apply(freshVote(3)); err == nil {
		t.Fatalf("expected rejection for backward slot")
	}
}

func TestTowerApplyRejectsStaleLockout(t *testing.T) {
	tower := NewTower()
	if err := tower.Apply(Vote{Slot: 1, Lockout: 4}); err == nil {
		t.Fatalf("expected rejection for non-fresh lockout")
	}
}

func TestTowerGetIncreasedLockouts(t *testing.T) {
	t1, t2 := NewTower(), NewTower()
	v1, v2 := freshVote(1), freshVote(2)
	_ = t1.Apply(v1)
	_ = t2.Apply(v1)
	_ = t2.Apply(v2)

	increased := t1.GetIncreasedLockouts(0, t2)
	if _, ok := increased[1]; !ok {
		t.Fatalf("expected slot 1 to show an increased lockout, got %+v", increased)
	}
}

func TestTowerVotesChronologicalRoundTrip(t *testing.T) {
	tower := NewTower()
	for i := Slot(1); i <= 4; i++ {
		_ = tower.Apply(freshVote(i))
	}
	chron := tower.VotesChronological()

	replay := NewTower()
	replay.Root = chron[0]
	for _, v := range chron[1:] {
		if err := replay.Apply(Vote{Slot: v.Slot, Lockout: 2}); err != nil {
			t.Fatalf("replay apply(%d): %v", v.Slot, err)
		}
	}
	if !reflect.DeepEqual(replay.Votes, tower.Votes) || replay.Root != tower.Root {
		t.Fatalf("replay mismatch: got %+v/%+v, want %+v/%+v", replay.Votes, replay.Root, tower.Votes, tower.Root)
	}
}
