package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"monbattle/internal/hub"
	"monbattle/internal/notify"
)

const (
	heartbeatInterval = 15 * time.Second
	writeWait         = 10 * time.Second
)

// HandleSSE handles Server-Sent Events for live battle updates. The current
// battle is sent first, then every committed change.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Battles.Battle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	initial, err := hub.Encode(notify.EventFor(b))
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, 16)
	unwatch := h.Hub.Watch(id, ch)
	defer unwatch()

	_, _ = fmt.Fprintf(w, "data: %s\n\n", initial)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// heartbeat
			_, _ = w.Write([]byte("data: {}\n\n"))
			flusher.Flush()
		case msg := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// HandleWS streams the same updates as HandleSSE over a websocket. Anything
// the client sends is ignored; reading only detects the close.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Battles.Battle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	initial, err := hub.Encode(notify.EventFor(b))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("battle_id", id.String()).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := make(chan []byte, 16)
	unwatch := h.Hub.Watch(id, ch)
	defer unwatch()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	if err := send(initial); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg := <-ch:
			if err := send(msg); err != nil {
				return
			}
		}
	}
}
