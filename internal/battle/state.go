package battle

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// MaxPartySize is the largest party a participant may bring.
const MaxPartySize = 6

// State is the mutable combat state of a battle.
type State struct {
	Seed               int64                      `json:"seed"`
	TurnNumber         int                        `json:"turnNumber"`
	NextActorID        *uuid.UUID                 `json:"nextActorId"`
	ForcedSwitchUserID *uuid.UUID                 `json:"forcedSwitchUserId"`
	ForcedSwitchReason string                     `json:"forcedSwitchReason,omitempty"`
	TurnStartedAt      *time.Time                 `json:"turnStartedAt"`
	TurnExpiresAt      *time.Time                 `json:"turnExpiresAt"`
	TurnTimeoutSeconds int                        `json:"turnTimeoutSeconds"`
	Participants       map[uuid.UUID]*Participant `json:"participants"`
	Log                []TurnResult               `json:"log"`
}

// NewState builds the opening state for two parties. Monster ids are assigned
// in order, first party first. The side with the faster lead acts first; a
// tie is settled by the seed.
func NewState(seed int64, first, second Participant, timeout time.Duration, now time.Time) (State, error) {
	if first.UserID == second.UserID {
		return State{}, fmt.Errorf("%w: a battle needs two different players", ErrInvalidParty)
	}
	st := State{
		Seed:               seed,
		TurnNumber:         1,
		TurnTimeoutSeconds: int(timeout / time.Second),
		Participants:       make(map[uuid.UUID]*Participant, 2),
		Log:                []TurnResult{},
	}
	nextID := 1
	for _, p := range []Participant{first, second} {
		if len(p.Monsters) == 0 || len(p.Monsters) > MaxPartySize {
			return State{}, fmt.Errorf("%w: party of %s must hold 1 to %d monsters", ErrInvalidParty, p.UserID, MaxPartySize)
		}
		cp := p
		cp.ActiveIndex = 0
		cp.Monsters = make([]Monster, len(p.Monsters))
		for i, m := range p.Monsters {
			m.ID = nextID
			nextID++
			if m.CurrentHP <= 0 || m.CurrentHP > m.MaxHP {
				m.CurrentHP = m.MaxHP
			}
			m.Moves = append([]MoveSnapshot(nil), m.Moves...)
			m.Types = append([]string(nil), m.Types...)
			m.Status = nil
			cp.Monsters[i] = m
		}
		st.Participants[cp.UserID] = &cp
	}

	lead := first.UserID
	a, b := first.Monsters[0].Speed, second.Monsters[0].Speed
	switch {
	case b > a:
		lead = second.UserID
	case a == b && rand.New(rand.NewSource(seed)).Intn(2) == 1:
		lead = second.UserID
	}
	st.NextActorID = &lead
	st.restartClock(now, true)
	return st, nil
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.NextActorID = cloneID(s.NextActorID)
	out.ForcedSwitchUserID = cloneID(s.ForcedSwitchUserID)
	out.TurnStartedAt = cloneTime(s.TurnStartedAt)
	out.TurnExpiresAt = cloneTime(s.TurnExpiresAt)
	out.Participants = make(map[uuid.UUID]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		cp := *p
		cp.Monsters = make([]Monster, len(p.Monsters))
		for i, m := range p.Monsters {
			m.Types = append([]string(nil), m.Types...)
			m.Moves = append([]MoveSnapshot(nil), m.Moves...)
			if m.Status != nil {
				sc := *m.Status
				m.Status = &sc
			}
			cp.Monsters[i] = m
		}
		out.Participants[id] = &cp
	}
	out.Log = make([]TurnResult, len(s.Log))
	for i, r := range s.Log {
		r.Events = append([]Event(nil), r.Events...)
		out.Log[i] = r
	}
	return out
}

// AppendOrMerge adds r to the log, replacing the last entry instead when it
// belongs to the same turn and actor.
func (s *State) AppendOrMerge(r TurnResult) {
	if n := len(s.Log); n > 0 {
		last := s.Log[n-1]
		if last.Turn == r.Turn && last.ActorUserID == r.ActorUserID {
			s.Log[n-1] = r
			return
		}
	}
	s.Log = append(s.Log, r)
}

// Expired reports whether a running turn clock has elapsed at now.
func (s *State) Expired(now time.Time) bool {
	return s.TurnExpiresAt != nil && !now.Before(*s.TurnExpiresAt)
}

// TimedOutActor is the side whose clock is running: a pending forced switch
// first, otherwise the next actor.
func (s *State) TimedOutActor() *uuid.UUID {
	if s.ForcedSwitchUserID != nil {
		return s.ForcedSwitchUserID
	}
	return s.NextActorID
}

// Opponent returns the other participant's id.
func (s *State) Opponent(id uuid.UUID) uuid.UUID {
	for uid := range s.Participants {
		if uid != id {
			return uid
		}
	}
	return uuid.Nil
}

// FindMonster looks up a monster by battle-local id across both parties.
func (s *State) FindMonster(id int) (*Participant, int, bool) {
	for _, p := range s.Participants {
		for i := range p.Monsters {
			if p.Monsters[i].ID == id {
				return p, i, true
			}
		}
	}
	return nil, 0, false
}

// restartClock starts a fresh deadline, or clears it when the battle is over
// or untimed.
func (s *State) restartClock(now time.Time, running bool) {
	if !running || s.TurnTimeoutSeconds <= 0 {
		s.TurnStartedAt = nil
		s.TurnExpiresAt = nil
		return
	}
	start := now.UTC()
	expires := start.Add(time.Duration(s.TurnTimeoutSeconds) * time.Second)
	s.TurnStartedAt = &start
	s.TurnExpiresAt = &expires
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
