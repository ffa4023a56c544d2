package battle

import "errors"

// Code identifies a rejection reason.
type Code string

// Rejection is a recoverable refusal of an action. The battle state is never
// changed when one is returned.
type Rejection struct {
	Code    Code
	Message string
	// Payload marks rejections caused by the action's content rather than by
	// turn order.
	Payload bool
}

func (r *Rejection) Error() string { return r.Message }

// Is matches rejections by code.
func (r *Rejection) Is(target error) bool {
	if t, ok := target.(*Rejection); ok {
		return r.Code == t.Code
	}
	return false
}

func rejection(code Code, msg string) *Rejection {
	return &Rejection{Code: code, Message: msg}
}

func invalid(code Code, msg string) *Rejection {
	return &Rejection{Code: code, Message: msg, Payload: true}
}

var (
	ErrBattleNotActive  = rejection("battle_not_active", "battle is not active")
	ErrBattleNotPending = rejection("battle_not_pending", "battle has already started")
	ErrNotParticipant   = rejection("not_participant", "not a participant")
	ErrNotYourTurn      = rejection("not_your_turn", "not your turn")
	ErrMustSwap         = rejection("must_swap", "must swap")
	ErrWaitingForSwap   = rejection("waiting_for_swap", "waiting for opponent to swap")
	ErrTurnExpired      = rejection("turn_expired", "turn has expired")
	ErrTurnNotExpired   = rejection("turn_not_expired", "turn has not expired")

	ErrInvalidAction    = invalid("invalid_action", "invalid action")
	ErrUnknownMoveSlot  = invalid("unknown_move_slot", "unknown move slot")
	ErrFaintedCannotAct = invalid("fainted_cannot_act", "active monster has fainted")
	ErrUnknownMonster   = invalid("unknown_monster", "monster is not in your party")
	ErrAlreadyActive    = invalid("already_active", "monster is already active")
	ErrSwapToFainted    = invalid("swap_to_fainted", "cannot swap to a fainted monster")
	ErrInvalidParty     = invalid("invalid_party", "invalid party")
)

// IsRejection reports whether err is a recoverable rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// AsRejection extracts the rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	ok := errors.As(err, &r)
	return r, ok
}
