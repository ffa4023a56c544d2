package ranking

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"monbattle/internal/battle"
)

func entry(n byte, rating int) QueueEntry {
	id := uuid.UUID{}
	id[15] = n
	return QueueEntry{UserID: id, Mode: battle.ModeRanked, Rating: rating}
}

func TestPairByRating(t *testing.T) {
	in := []QueueEntry{entry(1, 1200), entry(2, 1000), entry(3, 1210), entry(4, 1050)}
	pairs, left := PairByRating(in)
	if len(left) != 0 {
		t.Fatalf("expected no leftover, got %d", len(left))
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].A.Rating != 1000 || pairs[0].B.Rating != 1050 {
		t.Fatalf("unexpected first pair %d/%d", pairs[0].A.Rating, pairs[0].B.Rating)
	}
	if pairs[1].A.Rating != 1200 || pairs[1].B.Rating != 1210 {
		t.Fatalf("unexpected second pair %d/%d", pairs[1].A.Rating, pairs[1].B.Rating)
	}
	if in[0].Rating != 1200 {
		t.Fatalf("input was reordered")
	}
}

func TestPairByRatingOddLeavesOne(t *testing.T) {
	pairs, left := PairByRating([]QueueEntry{entry(1, 1500), entry(2, 1000), entry(3, 1010)})
	if len(pairs) != 1 || len(left) != 1 {
		t.Fatalf("expected one pair and one leftover, got %d/%d", len(pairs), len(left))
	}
	if left[0].Rating != 1500 {
		t.Fatalf("expected 1500 left over, got %d", left[0].Rating)
	}
}

func TestPairByRatingTieKeepsQueueOrder(t *testing.T) {
	first, second := entry(1, 1000), entry(2, 1000)
	pairs, _ := PairByRating([]QueueEntry{first, second, entry(3, 1000)})
	if pairs[0].A.UserID != first.UserID || pairs[0].B.UserID != second.UserID {
		t.Fatalf("ties should pair in queue order")
	}
}

type fakeQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]QueueEntry
	created []*battle.Battle
	vanish  map[uuid.UUID]bool
}

func newFakeQueue(es ...QueueEntry) *fakeQueue {
	q := &fakeQueue{entries: map[uuid.UUID]QueueEntry{}, vanish: map[uuid.UUID]bool{}}
	for _, e := range es {
		q.entries[e.UserID] = e
	}
	return q
}

func (q *fakeQueue) UpsertQueueEntry(_ context.Context, id uuid.UUID, mode battle.Mode, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[id] = QueueEntry{UserID: id, Mode: mode, QueuedAt: at, Rating: DefaultRating}
	return nil
}

func (q *fakeQueue) RemoveQueueEntry(_ context.Context, id uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[id]
	delete(q.entries, id)
	return ok, nil
}

func (q *fakeQueue) ListQueued(_ context.Context, mode battle.Mode) ([]QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueueEntry
	for _, e := range q.entries {
		if e.Mode == mode {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (q *fakeQueue) CreateMatch(_ context.Context, b *battle.Battle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.vanish[b.Player1ID] || q.vanish[b.Player2ID] {
		return ErrQueueChanged
	}
	delete(q.entries, b.Player1ID)
	delete(q.entries, b.Player2ID)
	q.created = append(q.created, b)
	return nil
}

func newTestMatchmaker(q *fakeQueue, p *fakeProfiles) *Matchmaker {
	m := NewMatchmaker(q, p, clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	m.newSeed = func() (int64, error) { return 7, nil }
	return m
}

func TestRunRankedCreatesPendingBattles(t *testing.T) {
	q := newFakeQueue(entry(1, 1000), entry(2, 1050), entry(3, 1200), entry(4, 1210), entry(5, 1600))
	res, err := newTestMatchmaker(q, newFakeProfiles()).RunRanked(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Queued != 5 || len(res.Battles) != 2 || res.Underflow {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, b := range q.created {
		if b.Status != battle.StatusPending || b.Mode != battle.ModeRanked {
			t.Fatalf("expected pending ranked battle, got %s/%s", b.Status, b.Mode)
		}
		if b.Seed != 7 || b.State.Seed != 7 || b.State.TurnNumber != 1 {
			t.Fatalf("unexpected seed or turn: %+v", b.State)
		}
	}
	if len(q.entries) != 1 {
		t.Fatalf("expected the odd player to stay queued, got %d entries", len(q.entries))
	}
}

func TestRunRankedUnderflow(t *testing.T) {
	q := newFakeQueue(entry(1, 1000))
	res, err := newTestMatchmaker(q, newFakeProfiles()).RunRanked(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Underflow || len(res.Battles) != 0 {
		t.Fatalf("expected underflow, got %+v", res)
	}
}

func TestRunRankedSkipsVanishedEntry(t *testing.T) {
	a, b, c, d := entry(1, 1000), entry(2, 1010), entry(3, 1300), entry(4, 1310)
	q := newFakeQueue(a, b, c, d)
	q.vanish[b.UserID] = true
	res, err := newTestMatchmaker(q, newFakeProfiles()).RunRanked(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Skipped != 1 || len(res.Battles) != 1 {
		t.Fatalf("expected one skip and one battle, got %+v", res)
	}
	if _, ok := q.entries[a.UserID]; !ok {
		t.Fatalf("partner of a vanished entry should stay queued")
	}
}

func TestEnqueueCreatesProfile(t *testing.T) {
	q := newFakeQueue()
	p := newFakeProfiles()
	id := uuid.New()
	prof, err := newTestMatchmaker(q, p).Enqueue(context.Background(), id, battle.ModeRanked)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if prof.MMR != DefaultRating {
		t.Fatalf("expected default rating, got %d", prof.MMR)
	}
	if _, ok := q.entries[id]; !ok {
		t.Fatalf("expected queue entry")
	}
	m := newTestMatchmaker(q, p)
	if ok, _ := m.Dequeue(context.Background(), id); !ok {
		t.Fatalf("expected dequeue to remove the entry")
	}
	if ok, _ := m.Dequeue(context.Background(), id); ok {
		t.Fatalf("second dequeue should report nothing removed")
	}
}
