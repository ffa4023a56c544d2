package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Battle is the persisted battle row. The combat state is stored as JSON and
// its deadline is copied into TurnExpiresAt so the sweep can query it.
type Battle struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status        string    `gorm:"index:idx_battles_expiry,priority:1"`
	Mode          string
	Player1ID     uuid.UUID `gorm:"type:uuid;index"`
	Player2ID     uuid.UUID `gorm:"type:uuid;index"`
	Seed          int64
	WinnerID      *uuid.UUID `gorm:"type:uuid"`
	StartedAt     *time.Time
	EndedAt       *time.Time
	TurnExpiresAt *time.Time `gorm:"index:idx_battles_expiry,priority:2"`
	RatingApplied bool
	State         datatypes.JSON
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Turns         []BattleTurn
}

// BattleTurn stores one resolved turn. Rows are never updated.
type BattleTurn struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BattleID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_battle_turn"`
	Battle      Battle    `gorm:"constraint:OnDelete:CASCADE;"`
	TurnNumber  int       `gorm:"uniqueIndex:idx_battle_turn"`
	ActorUserID uuid.UUID `gorm:"type:uuid;index"`
	Action      datatypes.JSON
	Result      datatypes.JSON
	CreatedAt   time.Time
}

// RankingProfile holds a player's rating and record.
type RankingProfile struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	MMR       int       `gorm:"default:1000"`
	Wins      int
	Losses    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueEntry is a player waiting for a match.
type QueueEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Mode     string    `gorm:"index"`
	QueuedAt time.Time `gorm:"index"`
}

// TableName keeps the queue table name stable.
func (QueueEntry) TableName() string { return "matchmaking_queue" }
