package hub

import "time"

// Touch updates the last seen timestamp for a room
func (r *Room) Touch(now time.Time) {
	r.Mu.Lock()
	r.LastSeen = now
	r.Mu.Unlock()
}

// Broadcast sends data to all watchers without waiting on slow ones
func (r *Room) Broadcast(data []byte) {
	r.Mu.Lock()
	for ch := range r.Watchers {
		select {
		case ch <- data:
		default:
		}
	}
	r.Mu.Unlock()
}

// AddWatcher adds a new watcher channel
func (r *Room) AddWatcher(ch chan []byte) {
	r.Mu.Lock()
	r.Watchers[ch] = struct{}{}
	r.Mu.Unlock()
}

// RemoveWatcher removes a watcher channel
func (r *Room) RemoveWatcher(ch chan []byte) {
	r.Mu.Lock()
	delete(r.Watchers, ch)
	r.Mu.Unlock()
}

// WatcherCount returns the number of connected watchers
func (r *Room) WatcherCount() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return len(r.Watchers)
}
