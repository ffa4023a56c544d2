package battle

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// TypeChart returns the damage multiplier of an attacking type against a
// defender's types.
type TypeChart interface {
	Effectiveness(moveType string, defender []string) float64
}

// Outcome is the result of applying one action.
type Outcome struct {
	State    State
	Result   TurnResult
	Ended    bool
	WinnerID *uuid.UUID
	// DoubleKnockout is set when both parties ran out of monsters on the
	// same action.
	DoubleKnockout bool
}

// Resolver applies actions to battle states. It performs no I/O and holds no
// locks; the caller has already checked turn order.
type Resolver struct {
	Chart TypeChart
}

// NewResolver returns a resolver using chart for type effectiveness.
func NewResolver(chart TypeChart) *Resolver {
	return &Resolver{Chart: chart}
}

// Apply resolves act for actor on a copy of in. Randomness comes from the
// seed plus the turn number, so replaying the same inputs gives the same
// result.
func (r *Resolver) Apply(in State, actor uuid.UUID, act Action, now time.Time) (Outcome, error) {
	if err := act.Validate(); err != nil {
		return Outcome{}, err
	}
	st := in.Clone()
	me, ok := st.Participants[actor]
	if !ok {
		return Outcome{}, ErrNotParticipant
	}
	opp, ok := st.Participants[st.Opponent(actor)]
	if !ok {
		return Outcome{}, errors.New("battle state has a single participant")
	}

	t := &turn{
		st:    &st,
		chart: r.Chart,
		me:    me,
		opp:   opp,
		rng:   rand.New(rand.NewSource(st.Seed + int64(st.TurnNumber))),
		res:   TurnResult{Turn: st.TurnNumber, ActorUserID: actor, Action: act, Events: []Event{}},
	}

	var err error
	switch act.Kind {
	case ActionMove:
		err = t.move(*act.Slot)
	case ActionSwap:
		err = t.swap(*act.TargetMonsterID)
	case ActionTimeout:
		t.timeout()
	}
	if err != nil {
		return Outcome{}, err
	}

	st.AppendOrMerge(t.res)
	st.TurnNumber++
	st.restartClock(now, !t.ended)
	return Outcome{
		State:          st,
		Result:         t.res,
		Ended:          t.ended,
		WinnerID:       t.winner,
		DoubleKnockout: t.doubleKO,
	}, nil
}

type turn struct {
	st       *State
	chart    TypeChart
	me, opp  *Participant
	rng      *rand.Rand
	res      TurnResult
	ended    bool
	winner   *uuid.UUID
	doubleKO bool
}

func (t *turn) emit(e Event) {
	t.res.Events = append(t.res.Events, e)
}

func (t *turn) log(kind EventKind, monsterID int, format string, args ...any) {
	t.emit(Event{Kind: kind, MonsterID: monsterID, Message: fmt.Sprintf(format, args...)})
}

func (t *turn) move(slot int) error {
	att := t.me.Active()
	if att.Fainted() {
		return ErrFaintedCannotAct
	}
	mv, ok := att.move(slot)
	if !ok {
		return ErrUnknownMoveSlot
	}
	def := t.opp.Active()

	t.log(EventMove, att.ID, "%s used %s!", att.Name, mv.Name)
	if !t.canAct(att) {
		t.residual(att)
		t.settle()
		return nil
	}
	if !t.hits(mv) {
		t.log(EventMiss, att.ID, "%s's attack missed!", att.Name)
	} else {
		if mv.Category != CategoryStatus && mv.Power > 0 {
			t.strike(att, def, mv)
		}
		if mv.Effect != nil && !def.Fainted() {
			t.inflict(def, *mv.Effect)
		}
	}
	t.residual(att)
	t.settle()
	return nil
}

func (t *turn) swap(target int) error {
	owner, idx, ok := t.st.FindMonster(target)
	if !ok || owner.UserID != t.me.UserID {
		return ErrUnknownMonster
	}
	if idx == t.me.ActiveIndex {
		return ErrAlreadyActive
	}
	if t.me.Monsters[idx].Fainted() {
		return ErrSwapToFainted
	}
	prev := t.me.Active()
	if !prev.Fainted() {
		t.log(EventSwap, prev.ID, "%s withdrew %s.", t.me.DisplayName(), prev.Name)
	}
	t.me.ActiveIndex = idx
	if f := t.st.ForcedSwitchUserID; f != nil && *f == t.me.UserID {
		t.st.ForcedSwitchUserID = nil
		t.st.ForcedSwitchReason = ""
	}
	t.settle()
	return nil
}

func (t *turn) timeout() {
	if f := t.st.ForcedSwitchUserID; f != nil && *f == t.me.UserID {
		t.log(EventTimeout, 0, "%s failed to swap in time.", t.me.DisplayName())
		t.end(t.opp)
		return
	}
	t.log(EventTimeout, 0, "%s timed out.", t.me.DisplayName())
	t.pass()
}

// canAct runs the pre-move status checks.
func (t *turn) canAct(m *Monster) bool {
	if m.Status == nil {
		return true
	}
	switch m.Status.Condition {
	case ConditionSleep:
		if m.Status.TurnsLeft > 0 {
			m.Status.TurnsLeft--
			t.log(EventSkip, m.ID, "%s is fast asleep.", m.Name)
			return false
		}
		m.Status = nil
		t.log(EventStatus, m.ID, "%s woke up!", m.Name)
	case ConditionParalysis:
		if t.rng.Intn(4) == 0 {
			t.log(EventSkip, m.ID, "%s is fully paralyzed!", m.Name)
			return false
		}
	}
	return true
}

func (t *turn) hits(mv MoveSnapshot) bool {
	if mv.Accuracy <= 0 || mv.Accuracy >= 100 {
		return true
	}
	return t.rng.Intn(100) < mv.Accuracy
}

func (t *turn) strike(att, def *Monster, mv MoveSnapshot) {
	eff := 1.0
	if t.chart != nil {
		eff = t.chart.Effectiveness(mv.Type, def.Types)
	}
	if eff == 0 {
		t.emit(Event{Kind: EventEffectiveness, MonsterID: def.ID, Multiplier: 0,
			Message: fmt.Sprintf("It doesn't affect %s...", def.Name)})
		return
	}

	atk, dfn := att.Attack, def.Defense
	if mv.Category == CategorySpecial {
		atk, dfn = att.SpAttack, def.SpDefense
	}
	if dfn < 1 {
		dfn = 1
	}
	level := att.Level
	if level < 1 {
		level = 1
	}
	base := float64((2*level/5+2)*mv.Power*atk/dfn)/50 + 2

	mod := eff
	if hasType(att.Types, mv.Type) {
		mod *= 1.5
	}
	crit := t.rng.Intn(16) == 0
	if crit {
		mod *= 1.5
	}
	mod *= float64(85+t.rng.Intn(16)) / 100
	if mv.Category == CategoryPhysical && att.Status != nil && att.Status.Condition == ConditionBurn {
		mod *= 0.5
	}
	dmg := int(math.Floor(base * mod))
	if dmg < 1 {
		dmg = 1
	}
	if dmg > def.CurrentHP {
		dmg = def.CurrentHP
	}
	def.CurrentHP -= dmg

	if crit {
		t.log(EventCritical, def.ID, "A critical hit!")
	}
	switch {
	case eff > 1:
		t.emit(Event{Kind: EventEffectiveness, MonsterID: def.ID, Multiplier: eff, Message: "It's super effective!"})
	case eff < 1:
		t.emit(Event{Kind: EventEffectiveness, MonsterID: def.ID, Multiplier: eff, Message: "It's not very effective..."})
	}
	t.emit(Event{Kind: EventDamage, MonsterID: def.ID, Amount: dmg,
		Message: fmt.Sprintf("%s took %d damage.", def.Name, dmg)})
	if def.Fainted() {
		t.log(EventFaint, def.ID, "%s fainted!", def.Name)
	}
}

func (t *turn) inflict(def *Monster, eff MoveEffect) {
	if def.Status != nil || eff.Condition == "" {
		return
	}
	if eff.Chance > 0 && eff.Chance < 100 && t.rng.Intn(100) >= eff.Chance {
		return
	}
	sc := &StatusCondition{Condition: eff.Condition}
	var msg string
	switch eff.Condition {
	case ConditionBurn:
		msg = "%s was burned!"
	case ConditionPoison:
		msg = "%s was poisoned!"
	case ConditionParalysis:
		msg = "%s is paralyzed! It may be unable to move!"
	case ConditionSleep:
		sc.TurnsLeft = 1 + t.rng.Intn(3)
		msg = "%s fell asleep!"
	default:
		return
	}
	def.Status = sc
	t.emit(Event{Kind: EventStatus, MonsterID: def.ID, Condition: eff.Condition,
		Message: fmt.Sprintf(msg, def.Name)})
}

// residual applies end of turn damage to the acting monster.
func (t *turn) residual(m *Monster) {
	if m.Fainted() || m.Status == nil {
		return
	}
	var dmg int
	var msg string
	switch m.Status.Condition {
	case ConditionBurn:
		dmg, msg = max(1, m.MaxHP/16), "%s is hurt by its burn."
	case ConditionPoison:
		dmg, msg = max(1, m.MaxHP/8), "%s is hurt by poison."
	default:
		return
	}
	dmg = min(dmg, m.CurrentHP)
	m.CurrentHP -= dmg
	t.emit(Event{Kind: EventStatusDamage, MonsterID: m.ID, Amount: dmg, Condition: m.Status.Condition,
		Message: fmt.Sprintf(msg, m.Name)})
	if m.Fainted() {
		t.log(EventFaint, m.ID, "%s fainted!", m.Name)
	}
}

// settle decides what the battle waits for next. The defender always faints
// before residual damage reaches the mover, so when both parties run out on
// the same action the mover wins.
func (t *turn) settle() {
	oppOut, meOut := t.opp.Remaining() == 0, t.me.Remaining() == 0
	switch {
	case oppOut && meOut:
		t.doubleKO = true
		t.log(EventDoubleKnockout, 0, "Both sides are out of monsters; %s's opponent fell first.", t.me.DisplayName())
		t.end(t.me)
	case oppOut:
		t.end(t.me)
	case meOut:
		t.end(t.opp)
	case t.opp.Active().Fainted():
		t.force(t.opp)
	case t.me.Active().Fainted():
		t.force(t.me)
	default:
		t.pass()
	}
}

func (t *turn) pass() {
	next := t.opp.UserID
	t.st.NextActorID = &next
	t.st.ForcedSwitchUserID = nil
	t.st.ForcedSwitchReason = ""
}

func (t *turn) force(p *Participant) {
	id := p.UserID
	t.st.NextActorID = nil
	t.st.ForcedSwitchUserID = &id
	t.st.ForcedSwitchReason = fmt.Sprintf("%s fainted", p.Active().Name)
	t.log(EventForcedSwitch, p.Active().ID, "%s must choose a replacement.", p.DisplayName())
}

func (t *turn) end(winner *Participant) {
	id := winner.UserID
	t.ended = true
	t.winner = &id
	t.st.NextActorID = nil
	t.st.ForcedSwitchUserID = nil
	t.st.ForcedSwitchReason = ""
	t.log(EventVictory, 0, "%s wins the battle!", winner.DisplayName())
}

func hasType(types []string, t string) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
