package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
	"monbattle/pkg/utils"
)

// ChallengeRequest starts a battle directly between two known parties.
type ChallengeRequest struct {
	Challenger battle.Participant
	Opponent   battle.Participant
	Mode       battle.Mode
	// Seed fixes the battle's randomness. A fresh seed is drawn when nil.
	Seed *int64
}

// Challenge creates an active battle. The challenger is player one.
func (o *Orchestrator) Challenge(ctx context.Context, req ChallengeRequest) (*battle.Battle, error) {
	seed, err := o.seed(req.Seed)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = battle.ModeRanked
	}
	now := o.clock.Now().UTC()
	st, err := battle.NewState(seed, req.Challenger, req.Opponent, o.timeout, now)
	if err != nil {
		return nil, err
	}
	b := &battle.Battle{
		ID:        uuid.New(),
		Status:    battle.StatusActive,
		Mode:      mode,
		Player1ID: req.Challenger.UserID,
		Player2ID: req.Opponent.UserID,
		Seed:      seed,
		StartedAt: &now,
		State:     st,
	}
	if err := o.repo.CreateBattle(ctx, b); err != nil {
		return nil, fmt.Errorf("create battle: %w", err)
	}
	log.Info().
		Str("battle_id", b.ID.String()).
		Str("mode", string(mode)).
		Str("next_actor", st.NextActorID.String()).
		Msg("Battle started")
	o.afterCommit(ctx, b, false)
	return b, nil
}

// Start activates a pending battle, such as one created by the matchmaker,
// with the parties both players bring. Only a player of the battle may start
// it.
func (o *Orchestrator) Start(ctx context.Context, battleID, starter uuid.UUID, parties map[uuid.UUID]battle.Participant) (*battle.Battle, error) {
	var started *battle.Battle
	unlock := o.locks.Lock(battleID)
	err := o.repo.WithTx(ctx, func(tx battle.Tx) error {
		b, err := tx.LockAndLoad(ctx, battleID)
		if err != nil {
			return err
		}
		if !b.HasPlayer(starter) {
			return battle.ErrNotParticipant
		}
		if b.Status != battle.StatusPending {
			return battle.ErrBattleNotPending
		}
		p1, ok1 := parties[b.Player1ID]
		p2, ok2 := parties[b.Player2ID]
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: both players must bring a party", battle.ErrInvalidParty)
		}
		p1.UserID, p2.UserID = b.Player1ID, b.Player2ID
		now := o.clock.Now().UTC()
		st, err := battle.NewState(b.Seed, p1, p2, o.timeout, now)
		if err != nil {
			return err
		}
		b.Status = battle.StatusActive
		b.StartedAt = &now
		b.State = st
		if err := tx.Save(ctx, b); err != nil {
			return fmt.Errorf("save battle: %w", err)
		}
		started = b
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}
	log.Info().Str("battle_id", battleID.String()).Str("started_by", starter.String()).Msg("Pending battle started")
	o.afterCommit(ctx, started, false)
	return started, nil
}

func (o *Orchestrator) seed(fixed *int64) (int64, error) {
	if fixed != nil {
		return *fixed, nil
	}
	s, err := utils.NewSeed()
	if err != nil {
		return 0, fmt.Errorf("draw seed: %w", err)
	}
	return s, nil
}
