package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
	"monbattle/pkg/utils"
)

// PairByRating greedily pairs entries. Entries are ordered by rating (queue
// order breaks ties); the lowest unpaired entry is matched with the closest
// rated remaining entry, the first one scanned winning ties. An odd entry is
// returned as leftover.
func PairByRating(entries []QueueEntry) ([]Pairing, []QueueEntry) {
	pool := make([]QueueEntry, len(entries))
	copy(pool, entries)
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Rating < pool[j].Rating })

	var pairs []Pairing
	for len(pool) >= 2 {
		a := pool[0]
		best := 1
		for i := 2; i < len(pool); i++ {
			if abs(pool[i].Rating-a.Rating) < abs(pool[best].Rating-a.Rating) {
				best = i
			}
		}
		pairs = append(pairs, Pairing{A: a, B: pool[best]})
		pool = append(pool[1:best], pool[best+1:]...)
	}
	return pairs, pool
}

// RunResult summarizes one matchmaking pass.
type RunResult struct {
	Queued    int         `json:"queued"`
	Battles   []uuid.UUID `json:"battles"`
	Skipped   int         `json:"skipped"`
	Underflow bool        `json:"underflow"`
}

// Matchmaker pairs ranked players and creates pending battles for them.
type Matchmaker struct {
	queue    QueueStore
	profiles ProfileStore
	clock    clockwork.Clock
	newSeed  func() (int64, error)
}

// NewMatchmaker creates a matchmaker.
func NewMatchmaker(queue QueueStore, profiles ProfileStore, clock clockwork.Clock) *Matchmaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Matchmaker{queue: queue, profiles: profiles, clock: clock, newSeed: utils.NewSeed}
}

// Enqueue puts a player in the queue, replacing any earlier entry. The
// player's profile is created if needed.
func (m *Matchmaker) Enqueue(ctx context.Context, userID uuid.UUID, mode battle.Mode) (Profile, error) {
	p, err := m.profiles.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	if err := m.queue.UpsertQueueEntry(ctx, userID, mode, m.clock.Now().UTC()); err != nil {
		return Profile{}, fmt.Errorf("queue %s: %w", userID, err)
	}
	log.Debug().Str("user_id", userID.String()).Str("mode", string(mode)).Int("mmr", p.MMR).Msg("Player queued")
	return p, nil
}

// Dequeue removes a player from the queue. It reports whether an entry
// existed.
func (m *Matchmaker) Dequeue(ctx context.Context, userID uuid.UUID) (bool, error) {
	return m.queue.RemoveQueueEntry(ctx, userID)
}

// RunRanked pairs every ranked entry and commits one pending battle per
// pairing. Fewer than two queued players is reported as underflow.
func (m *Matchmaker) RunRanked(ctx context.Context) (RunResult, error) {
	entries, err := m.queue.ListQueued(ctx, battle.ModeRanked)
	if err != nil {
		return RunResult{}, fmt.Errorf("list queue: %w", err)
	}
	res := RunResult{Queued: len(entries)}
	if len(entries) < 2 {
		res.Underflow = true
		log.Debug().Int("queued", len(entries)).Msg("Not enough players queued")
		return res, nil
	}

	pairs, _ := PairByRating(entries)
	for _, p := range pairs {
		seed, err := m.newSeed()
		if err != nil {
			return res, err
		}
		b := &battle.Battle{
			ID:        uuid.New(),
			Status:    battle.StatusPending,
			Mode:      battle.ModeRanked,
			Player1ID: p.A.UserID,
			Player2ID: p.B.UserID,
			Seed:      seed,
			State:     battle.State{Seed: seed, TurnNumber: 1, Log: []battle.TurnResult{}},
		}
		err = m.queue.CreateMatch(ctx, b)
		if errors.Is(err, ErrQueueChanged) {
			res.Skipped++
			log.Info().Str("player1", p.A.UserID.String()).Str("player2", p.B.UserID.String()).Msg("Queue entry vanished, skipping pairing")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("create match: %w", err)
		}
		res.Battles = append(res.Battles, b.ID)
		log.Info().
			Str("battle_id", b.ID.String()).
			Int("rating1", p.A.Rating).Int("rating2", p.B.Rating).
			Msg("Ranked match created")
	}
	return res, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
