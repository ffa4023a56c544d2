package battle

import (
	"testing"
	"time"
)

func TestNewStateAssignsIDsAndLead(t *testing.T) {
	st, err := NewState(7,
		Participant{UserID: alice, Monsters: []Monster{mon("Sparky", 100, 10), mon("Drift", 60, 90)}},
		Participant{UserID: bob, Monsters: []Monster{mon("Pebble", 100, 40)}},
		0, t0)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if *st.NextActorID != bob {
		t.Fatalf("faster lead should act first")
	}
	if st.TurnNumber != 1 {
		t.Fatalf("expected turn 1")
	}
	if st.Participants[alice].Monsters[1].ID != 2 || st.Participants[bob].Monsters[0].ID != 3 {
		t.Fatalf("unexpected monster ids")
	}
	if st.TurnExpiresAt != nil {
		t.Fatalf("untimed battles do not run a clock")
	}
}

func TestNewStateRejectsBadParties(t *testing.T) {
	if _, err := NewState(1, Participant{UserID: alice, Monsters: []Monster{mon("a", 1, 1)}},
		Participant{UserID: alice, Monsters: []Monster{mon("b", 1, 1)}}, 0, t0); err == nil {
		t.Fatalf("expected self battle to fail")
	}
	if _, err := NewState(1, Participant{UserID: alice},
		Participant{UserID: bob, Monsters: []Monster{mon("b", 1, 1)}}, 0, t0); err == nil {
		t.Fatalf("expected empty party to fail")
	}
	big := make([]Monster, MaxPartySize+1)
	for i := range big {
		big[i] = mon("m", 10, 10)
	}
	if _, err := NewState(1, Participant{UserID: alice, Monsters: big},
		Participant{UserID: bob, Monsters: []Monster{mon("b", 1, 1)}}, 0, t0); err == nil {
		t.Fatalf("expected oversized party to fail")
	}
}

func TestAppendOrMerge(t *testing.T) {
	var st State
	st.AppendOrMerge(TurnResult{Turn: 1, ActorUserID: alice})
	st.AppendOrMerge(TurnResult{Turn: 2, ActorUserID: bob, Events: []Event{{Kind: EventSwap}}})
	st.AppendOrMerge(TurnResult{Turn: 2, ActorUserID: bob, Events: []Event{{Kind: EventSwap}, {Kind: EventLog}}})

	if len(st.Log) != 2 {
		t.Fatalf("expected merge into the last entry, got %d entries", len(st.Log))
	}
	if len(st.Log[1].Events) != 2 {
		t.Fatalf("merged entry should carry both events")
	}
	st.AppendOrMerge(TurnResult{Turn: 2, ActorUserID: alice})
	if len(st.Log) != 3 {
		t.Fatalf("a different actor must append")
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := newTestState(t, []Monster{mon("Sparky", 100, 60)}, []Monster{mon("Pebble", 100, 40)})
	cp := st.Clone()
	cp.Participants[bob].Monsters[0].CurrentHP = 1
	cp.Participants[bob].Monsters[0].Moves[0].Power = 999
	*cp.NextActorID = bob
	cp.TurnExpiresAt = nil

	if st.Participants[bob].Monsters[0].CurrentHP != 100 || st.Participants[bob].Monsters[0].Moves[0].Power != 40 {
		t.Fatalf("clone shares monsters")
	}
	if *st.NextActorID != alice || st.TurnExpiresAt == nil {
		t.Fatalf("clone shares turn bookkeeping")
	}
}

func TestExpiredAndTimedOutActor(t *testing.T) {
	st := newTestState(t, []Monster{mon("Sparky", 100, 60)}, []Monster{mon("Pebble", 100, 40)})
	if st.Expired(t0.Add(29 * time.Second)) {
		t.Fatalf("not yet expired")
	}
	if !st.Expired(t0.Add(30 * time.Second)) {
		t.Fatalf("deadline reached")
	}
	if *st.TimedOutActor() != alice {
		t.Fatalf("next actor owns the clock")
	}
	st.ForcedSwitchUserID = &bob
	if *st.TimedOutActor() != bob {
		t.Fatalf("forced switch owns the clock")
	}
}

func TestBattleValidate(t *testing.T) {
	b := newTestBattle(t, newTestState(t, []Monster{mon("Sparky", 100, 60)}, []Monster{mon("Pebble", 100, 40)}))
	if err := b.Validate(); err != nil {
		t.Fatalf("fresh battle invalid: %v", err)
	}
	b.WinnerID = &alice
	if err := b.Validate(); err == nil {
		t.Fatalf("winner on active battle should fail")
	}
	b.WinnerID = nil
	b.State.ForcedSwitchUserID = &bob
	if err := b.Validate(); err == nil {
		t.Fatalf("next actor and forced switch together should fail")
	}
}
