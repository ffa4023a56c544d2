package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
)

// Service applies rating changes when ranked battles finish.
type Service struct {
	store ProfileStore
	k     int
}

// NewService creates a rating service. A k of zero uses DefaultK.
func NewService(store ProfileStore, k int) *Service {
	if k <= 0 {
		k = DefaultK
	}
	return &Service{store: store, k: k}
}

// HandleBattleCompletion updates both players' ratings and records for a
// completed ranked battle with a winner. It reports whether anything was
// applied; a battle that was already rated is a no-op.
func (s *Service) HandleBattleCompletion(ctx context.Context, b *battle.Battle) (bool, error) {
	if b.Mode != battle.ModeRanked || b.Status != battle.StatusCompleted || b.WinnerID == nil {
		return false, nil
	}
	if b.RatingApplied {
		return false, nil
	}
	winner := *b.WinnerID
	loser := b.Opponent(winner)

	var before, after [2]int
	err := s.store.UpdateProfiles(ctx, b.ID, winner, loser, func(w, l *Profile) {
		before = [2]int{w.MMR, l.MMR}
		w.MMR, l.MMR = Calculate(w.MMR, l.MMR, 1, 0, s.k)
		w.Wins++
		l.Losses++
		after = [2]int{w.MMR, l.MMR}
	})
	if errors.Is(err, ErrAlreadyRated) {
		log.Debug().Str("battle_id", b.ID.String()).Msg("Rating already applied, skipping")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("apply rating for battle %s: %w", b.ID, err)
	}
	log.Info().
		Str("battle_id", b.ID.String()).
		Str("winner_id", winner.String()).
		Int("winner_from", before[0]).Int("winner_to", after[0]).
		Int("loser_from", before[1]).Int("loser_to", after[1]).
		Msg("Ratings updated")
	return true, nil
}

// Profile returns a player's profile.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	return s.store.GetProfile(ctx, userID)
}
