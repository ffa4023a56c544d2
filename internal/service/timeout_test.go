package service

import (
	"context"
	"testing"
	"time"

	"monbattle/internal/battle"
)

func TestSweepResolvesExpiredBattlesOnce(t *testing.T) {
	f := newFixture(t)
	var ids []*battle.Battle
	for i := 0; i < 5; i++ {
		ids = append(ids, f.challenge(t, []battle.Monster{mon("Pip", 200, 20)}, []battle.Monster{mon("Moss", 200, 10)}))
	}
	sweeper := NewTimeoutResolver(f.repo, f.orch, f.clock, 2)

	rep, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.Resolved != 0 {
		t.Fatalf("nothing should expire yet, got %+v", rep)
	}

	f.clock.Advance(31 * time.Second)
	rep, err = sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.Resolved != 5 || rep.Failed != 0 {
		t.Fatalf("expected five timeouts, got %+v", rep)
	}
	for _, b := range ids {
		stored, _ := f.orch.Battle(context.Background(), b.ID)
		if *stored.State.NextActorID != bob {
			t.Fatalf("battle %s: expected bob to act", b.ID)
		}
		if !stored.State.TurnExpiresAt.After(f.clock.Now()) {
			t.Fatalf("battle %s: expected a fresh deadline", b.ID)
		}
	}

	rep, err = sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.Resolved != 0 {
		t.Fatalf("second sweep should be a no-op, got %+v", rep)
	}
	for _, b := range ids {
		if turns, _ := f.orch.Turns(context.Background(), b.ID); len(turns) != 1 {
			t.Fatalf("battle %s: expected one timeout turn, got %d", b.ID, len(turns))
		}
	}
}

func TestSweepForfeitsMissedForcedSwitch(t *testing.T) {
	f := newFixture(t)
	b := f.challenge(t,
		[]battle.Monster{mon("Pip", 200, 20)},
		[]battle.Monster{mon("Weak", 1, 10), mon("Moss", 200, 10)})
	if _, err := f.orch.Submit(context.Background(), b.ID, alice, battle.MoveAction(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.clock.Advance(30 * time.Second)
	sweeper := NewTimeoutResolver(f.repo, f.orch, f.clock, 0)
	rep, err := sweeper.Sweep(context.Background())
	if err != nil || rep.Resolved != 1 {
		t.Fatalf("expected one resolution, got %+v %v", rep, err)
	}
	stored, _ := f.orch.Battle(context.Background(), b.ID)
	if stored.Status != battle.StatusCompleted || *stored.WinnerID != alice {
		t.Fatalf("expected alice to win by forfeit")
	}
	msgs := stored.State.Log[len(stored.State.Log)-1].Events
	if msgs[0].Message != "Bob failed to swap in time." {
		t.Fatalf("unexpected narration %q", msgs[0].Message)
	}

	f.clock.Advance(time.Hour)
	if rep, _ := sweeper.Sweep(context.Background()); rep.Resolved != 0 {
		t.Fatalf("completed battles must not be swept again")
	}
	if f.rater.rated[b.ID] != 1 {
		t.Fatalf("expected one rating, got %d", f.rater.rated[b.ID])
	}
}
