package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
)

// DefaultSweepPageSize bounds how many battles one query returns.
const DefaultSweepPageSize = 50

// SweepReport counts what one sweep did.
type SweepReport struct {
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// TimeoutResolver finds battles whose turn clock ran out and submits the
// timeout action for them.
type TimeoutResolver struct {
	repo     battle.Repository
	orch     *Orchestrator
	clock    clockwork.Clock
	pageSize int
}

// NewTimeoutResolver creates a sweeper. A page size of zero uses the default.
func NewTimeoutResolver(repo battle.Repository, orch *Orchestrator, clock clockwork.Clock, pageSize int) *TimeoutResolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if pageSize <= 0 {
		pageSize = DefaultSweepPageSize
	}
	return &TimeoutResolver{repo: repo, orch: orch, clock: clock, pageSize: pageSize}
}

// Sweep resolves every battle that had expired when the sweep began. Each
// battle is rechecked under its lock, so a battle that moved on in the
// meantime is skipped. Running sweeps concurrently is safe.
func (r *TimeoutResolver) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	start := time.Now()
	now := r.clock.Now().UTC()
	after := uuid.Nil
	for {
		ids, err := r.repo.ListExpiredActive(ctx, now, after, r.pageSize)
		if err != nil {
			return rep, err
		}
		for _, id := range ids {
			_, err := r.orch.ResolveTimeout(ctx, id)
			switch {
			case err == nil:
				rep.Resolved++
			case errors.Is(err, battle.ErrTurnNotExpired), errors.Is(err, battle.ErrBattleNotActive):
				rep.Skipped++
			default:
				rep.Failed++
				log.Error().Err(err).Str("battle_id", id.String()).Msg("Failed to resolve timeout")
			}
		}
		if len(ids) < r.pageSize {
			break
		}
		after = ids[len(ids)-1]
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	}
	if rep != (SweepReport{}) {
		log.Info().
			Int("resolved", rep.Resolved).
			Int("skipped", rep.Skipped).
			Int("failed", rep.Failed).
			Dur("took", time.Since(start)).
			Msg("Timeout sweep finished")
	}
	return rep, nil
}
