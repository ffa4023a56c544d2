package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"monbattle/internal/battle"
	"monbattle/internal/catalog"
	"monbattle/internal/hub"
	"monbattle/internal/ranking"
	"monbattle/internal/service"
	"monbattle/internal/storage"
)

// UserHeader carries the authenticated user id set by the gateway.
const UserHeader = "X-User-ID"

// StatsSource reports aggregate counts.
type StatsSource interface {
	FetchStats(ctx context.Context) (storage.Stats, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Battles    *service.Orchestrator
	Hub        *hub.Hub
	Matchmaker *ranking.Matchmaker
	Ratings    *ranking.Service
	Catalog    *catalog.Catalog
	Stats      StatsSource
	Commit     string
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Deps
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler instance
func NewHandler(d Deps) *Handler {
	return &Handler{
		Deps: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes registers every endpoint and wraps them in the request middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /battles/challenge", h.HandleChallenge)
	mux.HandleFunc("POST /battles/{id}/start", h.HandleStart)
	mux.HandleFunc("POST /battles/{id}/act", h.HandleAct)
	mux.HandleFunc("GET /battles/{id}", h.HandleGet)
	mux.HandleFunc("GET /sse/{id}", h.HandleSSE)
	mux.HandleFunc("GET /ws/{id}", h.HandleWS)
	mux.HandleFunc("POST /queue", h.HandleQueue)
	mux.HandleFunc("POST /dequeue", h.HandleDequeue)
	mux.HandleFunc("GET /profiles/{userId}", h.HandleProfile)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /stats", h.HandleStats)
	return RequestLogger(mux)
}

type partyRequest struct {
	Name  string                `json:"name"`
	Party []catalog.PartyMember `json:"party"`
}

type challengeRequest struct {
	OpponentID uuid.UUID    `json:"opponentId"`
	Mode       string       `json:"mode"`
	Seed       *int64       `json:"seed,omitempty"`
	Challenger partyRequest `json:"challenger"`
	Opponent   partyRequest `json:"opponent"`
}

// HandleChallenge starts a battle between the caller and an opponent.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body challengeRequest
	if !decode(w, r, &body) {
		return
	}
	if body.OpponentID == uuid.Nil {
		writeFailure(w, http.StatusBadRequest, "missing opponent id")
		return
	}
	if body.OpponentID == user {
		writeFailure(w, http.StatusBadRequest, "you cannot challenge yourself")
		return
	}
	mode, err := battle.ParseMode(body.Mode)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	challenger, err := h.participant(user, body.Challenger)
	if err != nil {
		writeError(w, err)
		return
	}
	opponent, err := h.participant(body.OpponentID, body.Opponent)
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := h.Battles.Challenge(r.Context(), service.ChallengeRequest{
		Challenger: challenger,
		Opponent:   opponent,
		Mode:       mode,
		Seed:       body.Seed,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "battle": b})
}

type startRequest struct {
	Parties map[uuid.UUID]partyRequest `json:"parties"`
}

// HandleStart activates a pending battle with both players' parties. The
// caller must be one of its players.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body startRequest
	if !decode(w, r, &body) {
		return
	}
	parties := make(map[uuid.UUID]battle.Participant, len(body.Parties))
	for userID, pr := range body.Parties {
		p, err := h.participant(userID, pr)
		if err != nil {
			writeError(w, err)
			return
		}
		parties[userID] = p
	}
	b, err := h.Battles.Start(r.Context(), id, user, parties)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "battle": b})
}

// HandleAct submits the caller's move or swap.
func (h *Handler) HandleAct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var act battle.Action
	if !decode(w, r, &act) {
		return
	}
	res, err := h.Battles.Submit(r.Context(), id, user, act)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "battle": res.Battle, "turn": res.Turn})
}

// HandleGet returns a battle and its audit log.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Battles.Battle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	turns, err := h.Battles.Turns(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "battle": b, "turns": turns})
}

type queueRequest struct {
	Mode string `json:"mode"`
}

// HandleQueue puts the caller in the matchmaking queue.
func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body queueRequest
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	mode, err := battle.ParseMode(body.Mode)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.Matchmaker.Enqueue(r.Context(), user, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "mode": mode, "profile": p})
}

// HandleDequeue removes the caller from the queue.
func (h *Handler) HandleDequeue(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	removed, err := h.Matchmaker.Dequeue(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": removed})
}

// HandleProfile returns a player's rating profile.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	p, err := h.Ratings.Profile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "profile": p})
}

// HandleHealth reports liveness and the running build.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "commit": h.Commit})
}

// HandleStats returns battle and queue counts.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "stats": storage.Stats{}})
		return
	}
	stats, err := h.Stats.FetchStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "stats": stats})
}

func (h *Handler) participant(userID uuid.UUID, pr partyRequest) (battle.Participant, error) {
	monsters, err := h.Catalog.BuildParty(pr.Party)
	if err != nil {
		return battle.Participant{}, fmt.Errorf("%w: %v", battle.ErrInvalidParty, err)
	}
	return battle.Participant{UserID: userID, Name: strings.TrimSpace(pr.Name), Monsters: monsters}, nil
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		writeFailure(w, http.StatusUnauthorized, "missing user id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "bad user id")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "bad "+name)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
