// Package ranking keeps competitive ratings and pairs queued players.
package ranking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"monbattle/internal/battle"
)

// DefaultRating is the rating of a player without a profile.
const DefaultRating = 1000

var (
	// ErrAlreadyRated is returned when a battle's rating was already applied.
	ErrAlreadyRated = errors.New("rating already applied")
	// ErrQueueChanged is returned when a paired entry left the queue before
	// the match was committed.
	ErrQueueChanged = errors.New("queue changed during matchmaking")
)

// Profile is a player's rating and record.
type Profile struct {
	UserID uuid.UUID `json:"userId"`
	MMR    int       `json:"mmr"`
	Wins   int       `json:"wins"`
	Losses int       `json:"losses"`
}

// QueueEntry is a queued player with the rating used for pairing.
type QueueEntry struct {
	UserID   uuid.UUID   `json:"userId"`
	Mode     battle.Mode `json:"mode"`
	QueuedAt time.Time   `json:"queuedAt"`
	Rating   int         `json:"rating"`
}

// Pairing is two entries chosen to play each other.
type Pairing struct {
	A, B QueueEntry
}

// ProfileStore persists profiles.
type ProfileStore interface {
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (Profile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)
	// UpdateProfiles locks the battle and both profiles in one transaction,
	// lets fn change the profiles and marks the battle rated. It returns
	// ErrAlreadyRated when the marker is already set.
	UpdateProfiles(ctx context.Context, battleID, winnerID, loserID uuid.UUID, fn func(winner, loser *Profile)) error
}

// QueueStore persists the matchmaking queue.
type QueueStore interface {
	UpsertQueueEntry(ctx context.Context, userID uuid.UUID, mode battle.Mode, at time.Time) error
	RemoveQueueEntry(ctx context.Context, userID uuid.UUID) (bool, error)
	// ListQueued returns entries of mode ordered by queue time, with ratings
	// filled in.
	ListQueued(ctx context.Context, mode battle.Mode) ([]QueueEntry, error)
	// CreateMatch removes both players' entries and creates the battle
	// atomically. It returns ErrQueueChanged if either entry is gone.
	CreateMatch(ctx context.Context, b *battle.Battle) error
}
