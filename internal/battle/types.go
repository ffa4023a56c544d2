package battle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a battle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Mode decides whether a battle affects ratings.
type Mode string

const (
	ModeRanked Mode = "ranked"
	ModeCasual Mode = "casual"
)

// ParseMode normalizes a mode name. Empty means ranked.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRanked:
		return ModeRanked, nil
	case ModeCasual:
		return ModeCasual, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Battle is a two player battle and its combat state.
type Battle struct {
	ID            uuid.UUID  `json:"id"`
	Status        Status     `json:"status"`
	Mode          Mode       `json:"mode"`
	Player1ID     uuid.UUID  `json:"player1Id"`
	Player2ID     uuid.UUID  `json:"player2Id"`
	Seed          int64      `json:"seed"`
	WinnerID      *uuid.UUID `json:"winnerId"`
	StartedAt     *time.Time `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt"`
	RatingApplied bool       `json:"ratingApplied"`
	State         State      `json:"state"`
}

// HasPlayer reports whether id is one of the two players.
func (b *Battle) HasPlayer(id uuid.UUID) bool {
	return id == b.Player1ID || id == b.Player2ID
}

// Opponent returns the other player.
func (b *Battle) Opponent(id uuid.UUID) uuid.UUID {
	if id == b.Player1ID {
		return b.Player2ID
	}
	return b.Player1ID
}

// Validate checks the lifecycle invariants between status, winner and the
// turn bookkeeping.
func (b *Battle) Validate() error {
	if (b.Status == StatusCompleted) != (b.EndedAt != nil) {
		return fmt.Errorf("battle %s: status %s inconsistent with endedAt", b.ID, b.Status)
	}
	if b.WinnerID != nil && b.Status != StatusCompleted {
		return fmt.Errorf("battle %s: winner set on %s battle", b.ID, b.Status)
	}
	if b.Status != StatusActive {
		if b.Status == StatusCompleted && b.State.NextActorID != nil {
			return fmt.Errorf("battle %s: completed battle awaits an actor", b.ID)
		}
		return nil
	}
	next, forced := b.State.NextActorID != nil, b.State.ForcedSwitchUserID != nil
	if next == forced {
		return fmt.Errorf("battle %s: expected exactly one of next actor or forced switch", b.ID)
	}
	return nil
}

// Condition is a persistent status condition.
type Condition string

const (
	ConditionBurn      Condition = "burn"
	ConditionPoison    Condition = "poison"
	ConditionParalysis Condition = "paralysis"
	ConditionSleep     Condition = "sleep"
)

// StatusCondition is a condition afflicting a monster.
type StatusCondition struct {
	Condition Condition `json:"condition"`
	TurnsLeft int       `json:"turnsLeft,omitempty"`
}

// Category selects which stats a move uses.
type Category string

const (
	CategoryPhysical Category = "physical"
	CategorySpecial  Category = "special"
	CategoryStatus   Category = "status"
)

// MoveEffect is an optional secondary effect of a move.
type MoveEffect struct {
	Condition Condition `json:"condition"`
	Chance    int       `json:"chance"`
}

// MoveSnapshot is a copy of a move's stats taken when the battle started.
type MoveSnapshot struct {
	Slot     int         `json:"slot"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Category Category    `json:"category"`
	Power    int         `json:"power"`
	Accuracy int         `json:"accuracy"`
	Effect   *MoveEffect `json:"effect,omitempty"`
}

// Monster is a combatant inside a battle. IDs are local to the battle.
type Monster struct {
	ID        int              `json:"id"`
	Name      string           `json:"name"`
	Types     []string         `json:"types"`
	Level     int              `json:"level"`
	MaxHP     int              `json:"maxHp"`
	CurrentHP int              `json:"currentHp"`
	Attack    int              `json:"attack"`
	Defense   int              `json:"defense"`
	SpAttack  int              `json:"spAttack"`
	SpDefense int              `json:"spDefense"`
	Speed     int              `json:"speed"`
	Moves     []MoveSnapshot   `json:"moves"`
	Status    *StatusCondition `json:"status,omitempty"`
}

// Fainted reports whether the monster is out of hit points.
func (m *Monster) Fainted() bool { return m.CurrentHP <= 0 }

func (m *Monster) move(slot int) (MoveSnapshot, bool) {
	for _, mv := range m.Moves {
		if mv.Slot == slot {
			return mv, true
		}
	}
	return MoveSnapshot{}, false
}

// Participant is one side of a battle.
type Participant struct {
	UserID      uuid.UUID `json:"userId"`
	Name        string    `json:"name"`
	ActiveIndex int       `json:"activeIndex"`
	Monsters    []Monster `json:"monsters"`
}

// Active returns the monster currently fighting.
func (p *Participant) Active() *Monster {
	return &p.Monsters[p.ActiveIndex]
}

// Remaining counts monsters that can still fight.
func (p *Participant) Remaining() int {
	n := 0
	for i := range p.Monsters {
		if !p.Monsters[i].Fainted() {
			n++
		}
	}
	return n
}

// DisplayName is the name used in narration.
func (p *Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID.String()
}

// ActionKind tags an Action.
type ActionKind string

const (
	ActionMove    ActionKind = "move"
	ActionSwap    ActionKind = "swap"
	ActionTimeout ActionKind = "timeout"
)

// Action is a submitted move, swap or synthetic timeout.
type Action struct {
	Kind            ActionKind `json:"type"`
	Slot            *int       `json:"slot,omitempty"`
	TargetMonsterID *int       `json:"targetMonsterId,omitempty"`
}

// MoveAction uses the move in slot.
func MoveAction(slot int) Action { return Action{Kind: ActionMove, Slot: &slot} }

// SwapAction switches to the monster with the given battle-local id.
func SwapAction(monsterID int) Action { return Action{Kind: ActionSwap, TargetMonsterID: &monsterID} }

// TimeoutAction is the action the sweep submits for an expired turn.
func TimeoutAction() Action { return Action{Kind: ActionTimeout} }

// Validate checks that the action carries the payload its kind needs.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionMove:
		if a.Slot == nil {
			return ErrInvalidAction
		}
	case ActionSwap:
		if a.TargetMonsterID == nil {
			return ErrInvalidAction
		}
	case ActionTimeout:
	default:
		return ErrInvalidAction
	}
	return nil
}

// EventKind tags a narrated Event.
type EventKind string

const (
	EventLog            EventKind = "log"
	EventMove           EventKind = "move"
	EventMiss           EventKind = "miss"
	EventDamage         EventKind = "damage"
	EventEffectiveness  EventKind = "effectiveness"
	EventCritical       EventKind = "critical"
	EventStatus         EventKind = "status"
	EventStatusDamage   EventKind = "status_damage"
	EventFaint          EventKind = "faint"
	EventSwap           EventKind = "swap"
	EventSkip           EventKind = "skip"
	EventTimeout        EventKind = "timeout"
	EventForcedSwitch   EventKind = "forced_switch"
	EventVictory        EventKind = "victory"
	EventDoubleKnockout EventKind = "double_knockout"
)

// Event is one narrated effect within a turn.
type Event struct {
	Kind       EventKind `json:"kind"`
	Message    string    `json:"message"`
	MonsterID  int       `json:"monsterId,omitempty"`
	Amount     int       `json:"amount,omitempty"`
	Condition  Condition `json:"condition,omitempty"`
	Multiplier float64   `json:"multiplier,omitempty"`
}

// TurnResult is the log entry for one resolved turn.
type TurnResult struct {
	Turn        int       `json:"turn"`
	ActorUserID uuid.UUID `json:"actorUserId"`
	Action      Action    `json:"action"`
	Events      []Event   `json:"events"`
}

// Turn is the persisted audit record of a resolved turn.
type Turn struct {
	BattleID    uuid.UUID  `json:"battleId"`
	TurnNumber  int        `json:"turnNumber"`
	ActorUserID uuid.UUID  `json:"actorUserId"`
	Action      Action     `json:"action"`
	Result      TurnResult `json:"result"`
	CreatedAt   time.Time  `json:"createdAt"`
}
