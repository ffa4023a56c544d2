// Package notify publishes battle updates after a turn has been committed.
package notify

import (
	"context"

	"github.com/google/uuid"

	"monbattle/internal/battle"
)

// Event announces that a battle changed. Consumers treat it as a refresh
// signal; the same event may arrive more than once.
type Event struct {
	BattleID     uuid.UUID     `json:"battleId"`
	Status       battle.Status `json:"status"`
	NextActorID  *uuid.UUID    `json:"nextActorId"`
	WinnerUserID *uuid.UUID    `json:"winnerUserId"`
	State        battle.State  `json:"state"`
}

// EventFor builds the event describing b.
func EventFor(b *battle.Battle) Event {
	return Event{
		BattleID:     b.ID,
		Status:       b.Status,
		NextActorID:  b.State.NextActorID,
		WinnerUserID: b.WinnerID,
		State:        b.State,
	}
}

// Notifier publishes battle events.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
