package battle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tx is a unit of work holding the exclusive lock on battle rows it loaded.
type Tx interface {
	// LockAndLoad blocks until the battle row is exclusively held and returns
	// its latest persisted form.
	LockAndLoad(ctx context.Context, id uuid.UUID) (*Battle, error)
	Save(ctx context.Context, b *Battle) error
	AppendTurn(ctx context.Context, t Turn) error
}

// Repository persists battles and their turn log.
type Repository interface {
	// WithTx runs fn in one transaction, committing when it returns nil.
	WithTx(ctx context.Context, fn func(Tx) error) error
	CreateBattle(ctx context.Context, b *Battle) error
	LoadBattle(ctx context.Context, id uuid.UUID) (*Battle, error)
	ListTurns(ctx context.Context, id uuid.UUID) ([]Turn, error)
	// ListExpiredActive returns ids of active battles whose turn clock has
	// elapsed at now, ordered by id and starting after the given id.
	ListExpiredActive(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}
