package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"monbattle/internal/logging"
	"monbattle/internal/notify"
)

// NewHub creates an empty hub. Idle rooms are removed by Prune.
func NewHub(clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{Rooms: make(map[uuid.UUID]*Room), clock: clock}
}

// Get retrieves an existing room or creates a new one.
func (h *Hub) Get(id uuid.UUID) *Room {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return h.getLocked(id)
}

func (h *Hub) getLocked(id uuid.UUID) *Room {
	if r, ok := h.Rooms[id]; ok {
		return r
	}
	r := &Room{
		Watchers: make(map[chan []byte]struct{}),
		LastSeen: h.clock.Now(),
	}
	h.Rooms[id] = r
	return r
}

// Lock blocks until the caller exclusively owns battle id and returns the
// function that releases it. Locks on different battles never contend.
func (h *Hub) Lock(id uuid.UUID) func() {
	h.Mu.Lock()
	r := h.getLocked(id)
	r.refs++
	h.Mu.Unlock()

	r.turn.Lock()
	return func() {
		r.turn.Unlock()
		r.Touch(h.clock.Now())
		h.Mu.Lock()
		r.refs--
		h.Mu.Unlock()
	}
}

// Prune drops rooms that nobody holds or watches and that have been idle for
// longer than idle. It returns how many were removed.
func (h *Hub) Prune(idle time.Duration) int {
	now := h.clock.Now()
	h.Mu.Lock()
	defer h.Mu.Unlock()
	removed := 0
	for id, r := range h.Rooms {
		if r.refs > 0 {
			continue
		}
		r.Mu.Lock()
		stale := len(r.Watchers) == 0 && now.Sub(r.LastSeen) > idle
		r.Mu.Unlock()
		if stale {
			delete(h.Rooms, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Debugf("pruned %d idle battle rooms", removed)
	}
	return removed
}

// Publish forwards a battle event to the watchers of its room. Battles with
// no room have nobody to tell.
func (h *Hub) Publish(_ context.Context, ev notify.Event) error {
	h.Mu.Lock()
	r, ok := h.Rooms[ev.BattleID]
	h.Mu.Unlock()
	if !ok {
		return nil
	}
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	r.Broadcast(data)
	return nil
}

// Watch registers ch as a watcher of battle id and returns the function that
// removes it. The room cannot be pruned while watched.
func (h *Hub) Watch(id uuid.UUID, ch chan []byte) func() {
	h.Mu.Lock()
	r := h.getLocked(id)
	r.AddWatcher(ch)
	h.Mu.Unlock()
	r.Touch(h.clock.Now())
	return func() {
		r.RemoveWatcher(ch)
		r.Touch(h.clock.Now())
	}
}

// Encode wraps an event the way watchers receive it.
func Encode(ev notify.Event) ([]byte, error) {
	return json.Marshal(Message{Kind: UpdatedKind, Data: ev})
}
