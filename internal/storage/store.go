package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"monbattle/internal/battle"
)

// Store wraps a gorm DB instance and implements the battle repository.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store helper from a gorm DB.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// DB exposes the underlying gorm DB instance.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// ErrNotFound is returned when a record is not found.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrNoStore is returned by a nil Store.
var ErrNoStore = errors.New("storage: no database configured")

var forUpdate = clause.Locking{Strength: "UPDATE"}

// WithTx runs fn inside a transaction. Rows loaded through the Tx stay locked
// until fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(battle.Tx) error) error {
	if s == nil {
		return ErrNoStore
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{db: tx})
	})
}

// CreateBattle inserts a new battle row.
func (s *Store) CreateBattle(ctx context.Context, b *battle.Battle) error {
	if s == nil {
		return ErrNoStore
	}
	row, err := toRow(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
}

// LoadBattle fetches a battle without locking it.
func (s *Store) LoadBattle(ctx context.Context, id uuid.UUID) (*battle.Battle, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var row Battle
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return fromRow(row)
}

// ListTurns returns the audit records of a battle in turn order.
func (s *Store) ListTurns(ctx context.Context, id uuid.UUID) ([]battle.Turn, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var rows []BattleTurn
	if err := s.db.WithContext(ctx).
		Where("battle_id = ?", id).
		Order("turn_number").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]battle.Turn, 0, len(rows))
	for _, r := range rows {
		t := battle.Turn{
			BattleID:    r.BattleID,
			TurnNumber:  r.TurnNumber,
			ActorUserID: r.ActorUserID,
			CreatedAt:   r.CreatedAt,
		}
		if err := json.Unmarshal(r.Action, &t.Action); err != nil {
			return nil, fmt.Errorf("decode turn %d action: %w", r.TurnNumber, err)
		}
		if err := json.Unmarshal(r.Result, &t.Result); err != nil {
			return nil, fmt.Errorf("decode turn %d result: %w", r.TurnNumber, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ListExpiredActive returns a page of active battles whose turn clock ran out
// at or before now.
func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	q := s.db.WithContext(ctx).
		Model(&Battle{}).
		Where("status = ? AND turn_expires_at IS NOT NULL AND turn_expires_at <= ?", string(battle.StatusActive), now.UTC())
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var ids []uuid.UUID
	if err := q.Order("id").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListUnratedCompleted returns a page of finished ranked battles with a
// winner whose rating has not been applied, ordered by id and starting after
// the given id.
func (s *Store) ListUnratedCompleted(ctx context.Context, after uuid.UUID, limit int) ([]*battle.Battle, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	q := s.db.WithContext(ctx).
		Where("status = ? AND mode = ? AND winner_id IS NOT NULL AND rating_applied = ?",
			string(battle.StatusCompleted), string(battle.ModeRanked), false)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var rows []Battle
	if err := q.Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*battle.Battle, 0, len(rows))
	for _, row := range rows {
		b, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Stats represents aggregate counts for battles.
type Stats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Active    int64 `json:"active"`
	Queued    int64 `json:"queued"`
}

// FetchStats aggregates battle and queue counts.
func (s *Store) FetchStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, nil
	}
	if err := s.db.WithContext(ctx).Model(&Battle{}).Count(&stats.Started).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Battle{}).Where("status = ?", string(battle.StatusActive)).Count(&stats.Active).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Battle{}).Where("ended_at IS NOT NULL").Count(&stats.Completed).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&QueueEntry{}).Count(&stats.Queued).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

type txStore struct {
	db *gorm.DB
}

func (t *txStore) LockAndLoad(ctx context.Context, id uuid.UUID) (*battle.Battle, error) {
	var row Battle
	if err := t.db.WithContext(ctx).Clauses(forUpdate).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return fromRow(row)
}

// Save writes everything the orchestrator owns. The rating marker is left
// to the rating transaction.
func (t *txStore) Save(ctx context.Context, b *battle.Battle) error {
	state, err := json.Marshal(b.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	updates := map[string]any{
		"status":          string(b.Status),
		"winner_id":       nullableID(b.WinnerID),
		"started_at":      nullableTime(b.StartedAt),
		"ended_at":        nullableTime(b.EndedAt),
		"turn_expires_at": nullableTime(b.State.TurnExpiresAt),
		"state":           datatypes.JSON(state),
	}
	res := t.db.WithContext(ctx).Model(&Battle{}).Where("id = ?", b.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) AppendTurn(ctx context.Context, turn battle.Turn) error {
	action, err := json.Marshal(turn.Action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	result, err := json.Marshal(turn.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	row := BattleTurn{
		ID:          uuid.New(),
		BattleID:    turn.BattleID,
		TurnNumber:  turn.TurnNumber,
		ActorUserID: turn.ActorUserID,
		Action:      action,
		Result:      result,
		CreatedAt:   turn.CreatedAt.UTC(),
	}
	return t.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
}

func toRow(b *battle.Battle) (Battle, error) {
	state, err := json.Marshal(b.State)
	if err != nil {
		return Battle{}, fmt.Errorf("encode state: %w", err)
	}
	return Battle{
		ID:            b.ID,
		Status:        string(b.Status),
		Mode:          string(b.Mode),
		Player1ID:     b.Player1ID,
		Player2ID:     b.Player2ID,
		Seed:          b.Seed,
		WinnerID:      b.WinnerID,
		StartedAt:     utc(b.StartedAt),
		EndedAt:       utc(b.EndedAt),
		TurnExpiresAt: utc(b.State.TurnExpiresAt),
		RatingApplied: b.RatingApplied,
		State:         state,
	}, nil
}

func fromRow(row Battle) (*battle.Battle, error) {
	b := &battle.Battle{
		ID:            row.ID,
		Status:        battle.Status(row.Status),
		Mode:          battle.Mode(row.Mode),
		Player1ID:     row.Player1ID,
		Player2ID:     row.Player2ID,
		Seed:          row.Seed,
		WinnerID:      row.WinnerID,
		StartedAt:     row.StartedAt,
		EndedAt:       row.EndedAt,
		RatingApplied: row.RatingApplied,
	}
	if len(row.State) > 0 && string(row.State) != "null" {
		if err := json.Unmarshal(row.State, &b.State); err != nil {
			return nil, fmt.Errorf("decode battle %s state: %w", row.ID, err)
		}
	}
	return b, nil
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
