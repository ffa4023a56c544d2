package battle

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	t0    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type flatChart struct{}

func (flatChart) Effectiveness(string, []string) float64 { return 1 }

type immuneChart struct{}

func (immuneChart) Effectiveness(string, []string) float64 { return 0 }

func mon(name string, hp, speed int) Monster {
	return Monster{
		Name:      name,
		Types:     []string{"normal"},
		Level:     50,
		MaxHP:     hp,
		CurrentHP: hp,
		Attack:    50,
		Defense:   50,
		SpAttack:  50,
		SpDefense: 50,
		Speed:     speed,
		Moves: []MoveSnapshot{
			{Slot: 1, Name: "Tackle", Type: "normal", Category: CategoryPhysical, Power: 40, Accuracy: 100},
			{Slot: 2, Name: "Toxic Spit", Type: "poison", Category: CategoryStatus, Accuracy: 100,
				Effect: &MoveEffect{Condition: ConditionPoison, Chance: 100}},
		},
	}
}

// newTestState returns a state where alice moves first.
func newTestState(t *testing.T, aliceParty, bobParty []Monster) State {
	t.Helper()
	st, err := NewState(42,
		Participant{UserID: alice, Name: "Alice", Monsters: aliceParty},
		Participant{UserID: bob, Name: "Bob", Monsters: bobParty},
		30*time.Second, t0)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if st.NextActorID == nil || *st.NextActorID != alice {
		t.Fatalf("expected alice to lead")
	}
	return st
}

func newTestBattle(t *testing.T, st State) *Battle {
	t.Helper()
	started := t0
	return &Battle{
		ID:        uuid.MustParse("00000000-0000-0000-0000-0000000000ff"),
		Status:    StatusActive,
		Mode:      ModeRanked,
		Player1ID: alice,
		Player2ID: bob,
		Seed:      st.Seed,
		StartedAt: &started,
		State:     st,
	}
}

func apply(t *testing.T, st State, actor uuid.UUID, act Action) Outcome {
	t.Helper()
	out, err := NewResolver(flatChart{}).Apply(st, actor, act, t0.Add(5*time.Second))
	if err != nil {
		t.Fatalf("apply %s: %v", act.Kind, err)
	}
	return out
}
