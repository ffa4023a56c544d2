package battle

import (
	"time"

	"github.com/google/uuid"
)

// CheckTurnOrder decides whether actor may submit act against b at now. It is
// the only place turn order is enforced; player actions and the timeout sweep
// both pass through it before the resolver runs.
func CheckTurnOrder(b *Battle, actor uuid.UUID, act Action, now time.Time) error {
	if b.Status != StatusActive {
		return ErrBattleNotActive
	}
	if !b.HasPlayer(actor) {
		return ErrNotParticipant
	}
	if err := act.Validate(); err != nil {
		return err
	}
	st := &b.State

	if act.Kind == ActionTimeout {
		expected := st.TimedOutActor()
		if expected == nil || *expected != actor || !st.Expired(now) {
			return ErrTurnNotExpired
		}
		return nil
	}

	// An elapsed clock belongs to the sweep.
	if st.Expired(now) {
		return ErrTurnExpired
	}

	if forced := st.ForcedSwitchUserID; forced != nil {
		if act.Kind != ActionSwap {
			return ErrMustSwap
		}
		if actor != *forced {
			return ErrWaitingForSwap
		}
		return nil
	}
	if st.NextActorID == nil || *st.NextActorID != actor {
		return ErrNotYourTurn
	}
	return nil
}
