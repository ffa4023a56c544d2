package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Hub keeps one room per battle this process is working on or streaming.
type Hub struct {
	Mu    sync.Mutex
	Rooms map[uuid.UUID]*Room
	clock clockwork.Clock
}

// Room holds the turn lock and live watchers of a single battle.
type Room struct {
	Mu       sync.Mutex
	turn     sync.Mutex
	Watchers map[chan []byte]struct{}
	LastSeen time.Time
	// refs counts goroutines holding or waiting on turn; guarded by Hub.Mu.
	refs int
}

// UpdatedKind tags battle update messages.
const UpdatedKind = "battle.updated"

// Message is what watchers receive.
type Message struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}
