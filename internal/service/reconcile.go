package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
)

// DefaultReconcilePageSize bounds how many battles one query returns.
const DefaultReconcilePageSize = 50

// UnratedLister finds finished ranked battles whose rating was never
// applied.
type UnratedLister interface {
	// ListUnratedCompleted returns completed ranked battles with a winner and
	// no rating marker, ordered by id and starting after the given id.
	ListUnratedCompleted(ctx context.Context, after uuid.UUID, limit int) ([]*battle.Battle, error)
}

// ReconcileReport counts what one reconcile pass did.
type ReconcileReport struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RatingReconciler retries ratings that failed after their battle was
// committed. The rater's marker check makes repeated passes harmless.
type RatingReconciler struct {
	battles  UnratedLister
	rater    Rater
	pageSize int
}

// NewRatingReconciler creates a reconciler. A page size of zero uses the
// default.
func NewRatingReconciler(battles UnratedLister, rater Rater, pageSize int) *RatingReconciler {
	if pageSize <= 0 {
		pageSize = DefaultReconcilePageSize
	}
	return &RatingReconciler{battles: battles, rater: rater, pageSize: pageSize}
}

// Reconcile applies every rating still missing when the pass reaches it.
func (r *RatingReconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	start := time.Now()
	after := uuid.Nil
	for {
		page, err := r.battles.ListUnratedCompleted(ctx, after, r.pageSize)
		if err != nil {
			return rep, err
		}
		for _, b := range page {
			applied, err := r.rater.HandleBattleCompletion(ctx, b)
			switch {
			case err != nil:
				rep.Failed++
				log.Error().Err(err).Str("battle_id", b.ID.String()).Msg("Failed to reconcile rating")
			case applied:
				rep.Applied++
			default:
				rep.Skipped++
			}
		}
		if len(page) < r.pageSize {
			break
		}
		after = page[len(page)-1].ID
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	}
	if rep != (ReconcileReport{}) {
		log.Info().
			Int("applied", rep.Applied).
			Int("skipped", rep.Skipped).
			Int("failed", rep.Failed).
			Dur("took", time.Since(start)).
			Msg("Rating reconcile finished")
	}
	return rep, nil
}
