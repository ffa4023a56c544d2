package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"monbattle/internal/battle"
	"monbattle/internal/hub"
	"monbattle/internal/notify"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	t0    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

var errNotFound = errors.New("not found")

// memRepo keeps battles as JSON so every load is a deep copy. A single mutex
// stands in for row locks.
type memRepo struct {
	mu      sync.Mutex
	battles map[uuid.UUID][]byte
	turns   map[uuid.UUID][]battle.Turn
}

func newMemRepo() *memRepo {
	return &memRepo{battles: map[uuid.UUID][]byte{}, turns: map[uuid.UUID][]battle.Turn{}}
}

func (m *memRepo) load(id uuid.UUID) (*battle.Battle, error) {
	raw, ok := m.battles[id]
	if !ok {
		return nil, errNotFound
	}
	var b battle.Battle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(battle.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{repo: m, staged: map[uuid.UUID][]byte{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, raw := range tx.staged {
		m.battles[id] = raw
	}
	for _, t := range tx.turns {
		m.turns[t.BattleID] = append(m.turns[t.BattleID], t)
	}
	return nil
}

func (m *memRepo) CreateBattle(_ context.Context, b *battle.Battle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	m.battles[b.ID] = raw
	return nil
}

func (m *memRepo) LoadBattle(_ context.Context, id uuid.UUID) (*battle.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *memRepo) ListTurns(_ context.Context, id uuid.UUID) ([]battle.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]battle.Turn(nil), m.turns[id]...), nil
}

func (m *memRepo) ListExpiredActive(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id := range m.battles {
		b, err := m.load(id)
		if err != nil {
			return nil, err
		}
		exp := b.State.TurnExpiresAt
		if b.Status != battle.StatusActive || exp == nil || exp.After(now) {
			continue
		}
		if after != uuid.Nil && id.String() <= after.String() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memRepo) ListUnratedCompleted(_ context.Context, after uuid.UUID, limit int) ([]*battle.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*battle.Battle
	for id := range m.battles {
		b, err := m.load(id)
		if err != nil {
			return nil, err
		}
		if b.Status != battle.StatusCompleted || b.Mode != battle.ModeRanked || b.WinnerID == nil || b.RatingApplied {
			continue
		}
		if after != uuid.Nil && id.String() <= after.String() {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// markRated sets the rating marker and reports whether it was unset.
func (m *memRepo) markRated(id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.load(id)
	if err != nil {
		return false, err
	}
	if b.RatingApplied {
		return false, nil
	}
	b.RatingApplied = true
	raw, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	m.battles[id] = raw
	return true, nil
}

type memTx struct {
	repo   *memRepo
	staged map[uuid.UUID][]byte
	turns  []battle.Turn
}

func (tx *memTx) LockAndLoad(_ context.Context, id uuid.UUID) (*battle.Battle, error) {
	return tx.repo.load(id)
}

func (tx *memTx) Save(_ context.Context, b *battle.Battle) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	tx.staged[b.ID] = raw
	return nil
}

func (tx *memTx) AppendTurn(_ context.Context, t battle.Turn) error {
	for _, prev := range tx.repo.turns[t.BattleID] {
		if prev.TurnNumber == t.TurnNumber {
			return errors.New("duplicate turn number")
		}
	}
	tx.turns = append(tx.turns, t)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type countingRater struct {
	mu    sync.Mutex
	rated map[uuid.UUID]int
}

func (r *countingRater) HandleBattleCompletion(_ context.Context, b *battle.Battle) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rated == nil {
		r.rated = map[uuid.UUID]int{}
	}
	r.rated[b.ID]++
	return r.rated[b.ID] == 1, nil
}

// flakyRater fails its first failures calls, then rates through the repo's
// marker the way the store does.
type flakyRater struct {
	repo     *memRepo
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRater) HandleBattleCompletion(_ context.Context, b *battle.Battle) (bool, error) {
	r.mu.Lock()
	r.calls++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return false, errors.New("profiles unavailable")
	}
	return r.repo.markRated(b.ID)
}

type countingArchiver struct {
	mu    sync.Mutex
	calls int
	turns int
}

func (a *countingArchiver) Archive(_ context.Context, _ *battle.Battle, turns []battle.Turn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.turns = len(turns)
	return nil
}

type flatChart struct{}

func (flatChart) Effectiveness(string, []string) float64 { return 1 }

func mon(name string, hp, speed int) battle.Monster {
	return battle.Monster{
		Name:      name,
		Types:     []string{"normal"},
		Level:     50,
		MaxHP:     hp,
		CurrentHP: hp,
		Attack:    50,
		Defense:   50,
		SpAttack:  50,
		SpDefense: 50,
		Speed:     speed,
		Moves: []battle.MoveSnapshot{
			{Slot: 1, Name: "Tackle", Type: "normal", Category: battle.CategoryPhysical, Power: 40, Accuracy: 100},
		},
	}
}

type fixture struct {
	repo     *memRepo
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
	rater    *countingRater
	archiver *countingArchiver
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		clock:    clockwork.NewFakeClockAt(t0),
		notifier: &recordingNotifier{},
		rater:    &countingRater{},
		archiver: &countingArchiver{},
	}
	f.orch = NewOrchestrator(f.repo, hub.NewHub(f.clock), battle.NewResolver(flatChart{}),
		WithNotifier(f.notifier),
		WithRater(f.rater),
		WithArchiver(f.archiver),
		WithClock(f.clock),
		WithTurnTimeout(30*time.Second),
	)
	return f
}

// challenge starts a battle in which alice leads.
func (f *fixture) challenge(t *testing.T, aliceParty, bobParty []battle.Monster) *battle.Battle {
	t.Helper()
	seed := int64(42)
	b, err := f.orch.Challenge(context.Background(), ChallengeRequest{
		Challenger: battle.Participant{UserID: alice, Name: "Alice", Monsters: aliceParty},
		Opponent:   battle.Participant{UserID: bob, Name: "Bob", Monsters: bobParty},
		Seed:       &seed,
	})
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if *b.State.NextActorID != alice {
		t.Fatalf("expected alice to lead")
	}
	return b
}
