package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"monbattle/internal/battle"
	"monbattle/internal/ranking"
)

// GetOrCreateProfile returns the player's profile, creating a default one the
// first time the player is seen.
func (s *Store) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (ranking.Profile, error) {
	if s == nil {
		return ranking.Profile{}, ErrNoStore
	}
	row, err := ensureProfile(s.db.WithContext(ctx), userID, false)
	if err != nil {
		return ranking.Profile{}, err
	}
	return row.toProfile(), nil
}

// GetProfile returns an existing profile or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (ranking.Profile, error) {
	if s == nil {
		return ranking.Profile{}, ErrNoStore
	}
	var row RankingProfile
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		return ranking.Profile{}, err
	}
	return row.toProfile(), nil
}

// UpdateProfiles applies a rating change to the winner and loser of a battle
// and marks the battle rated, all in one transaction.
func (s *Store) UpdateProfiles(ctx context.Context, battleID, winnerID, loserID uuid.UUID, fn func(winner, loser *ranking.Profile)) error {
	if s == nil {
		return ErrNoStore
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b Battle
		if err := tx.Clauses(forUpdate).Select("id", "rating_applied").First(&b, "id = ?", battleID).Error; err != nil {
			return err
		}
		if b.RatingApplied {
			return ranking.ErrAlreadyRated
		}

		// Lock profiles in id order so concurrent ratings cannot deadlock.
		first, second := winnerID, loserID
		if second.String() < first.String() {
			first, second = second, first
		}
		rows := make(map[uuid.UUID]RankingProfile, 2)
		for _, id := range []uuid.UUID{first, second} {
			row, err := ensureProfile(tx, id, true)
			if err != nil {
				return err
			}
			rows[id] = row
		}

		w, l := rows[winnerID].toProfile(), rows[loserID].toProfile()
		fn(&w, &l)
		for _, p := range []ranking.Profile{w, l} {
			if err := tx.Model(&RankingProfile{}).Where("user_id = ?", p.UserID).Updates(map[string]any{
				"mmr":    p.MMR,
				"wins":   p.Wins,
				"losses": p.Losses,
			}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&Battle{}).Where("id = ?", battleID).Update("rating_applied", true).Error
	})
}

func ensureProfile(db *gorm.DB, userID uuid.UUID, lock bool) (RankingProfile, error) {
	row := RankingProfile{UserID: userID, MMR: ranking.DefaultRating}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return RankingProfile{}, err
	}
	q := db
	if lock {
		q = q.Clauses(forUpdate)
	}
	var out RankingProfile
	if err := q.First(&out, "user_id = ?", userID).Error; err != nil {
		return RankingProfile{}, err
	}
	return out, nil
}

func (r RankingProfile) toProfile() ranking.Profile {
	return ranking.Profile{UserID: r.UserID, MMR: r.MMR, Wins: r.Wins, Losses: r.Losses}
}

// UpsertQueueEntry queues a player, replacing the mode and time of an
// existing entry.
func (s *Store) UpsertQueueEntry(ctx context.Context, userID uuid.UUID, mode battle.Mode, at time.Time) error {
	if s == nil {
		return ErrNoStore
	}
	row := QueueEntry{ID: uuid.New(), UserID: userID, Mode: string(mode), QueuedAt: at.UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mode", "queued_at"}),
	}).Create(&row).Error
}

// RemoveQueueEntry deletes a player's entry and reports whether one existed.
func (s *Store) RemoveQueueEntry(ctx context.Context, userID uuid.UUID) (bool, error) {
	if s == nil {
		return false, ErrNoStore
	}
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&QueueEntry{})
	return res.RowsAffected > 0, res.Error
}

// ListQueued returns the entries for mode in queue order, each carrying the
// player's rating or the default.
func (s *Store) ListQueued(ctx context.Context, mode battle.Mode) ([]ranking.QueueEntry, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var rows []QueueEntry
	if err := s.db.WithContext(ctx).
		Where("mode = ?", string(mode)).
		Order("queued_at, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	var profiles []RankingProfile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	ratings := make(map[uuid.UUID]int, len(profiles))
	for _, p := range profiles {
		ratings[p.UserID] = p.MMR
	}
	out := make([]ranking.QueueEntry, len(rows))
	for i, r := range rows {
		rating, ok := ratings[r.UserID]
		if !ok {
			rating = ranking.DefaultRating
		}
		out[i] = ranking.QueueEntry{UserID: r.UserID, Mode: battle.Mode(r.Mode), QueuedAt: r.QueuedAt, Rating: rating}
	}
	return out, nil
}

// CreateMatch dequeues both players and inserts their battle atomically.
func (s *Store) CreateMatch(ctx context.Context, b *battle.Battle) error {
	if s == nil {
		return ErrNoStore
	}
	row, err := toRow(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id IN ? AND mode = ?", []uuid.UUID{b.Player1ID, b.Player2ID}, string(b.Mode)).Delete(&QueueEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 2 {
			return ranking.ErrQueueChanged
		}
		return tx.Omit(clause.Associations).Create(&row).Error
	})
}
