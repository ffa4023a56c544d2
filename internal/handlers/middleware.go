package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
	"monbattle/internal/storage"
	"monbattle/pkg/utils"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-ID"

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// writeError maps service errors onto responses. Rejections carry their code
// so clients can react without parsing messages.
func writeError(w http.ResponseWriter, err error) {
	if rej, ok := battle.AsRejection(err); ok {
		WriteJSON(w, statusFor(rej), map[string]any{"ok": false, "error": err.Error(), "code": rej.Code})
		return
	}
	if storage.IsNotFound(err) {
		writeFailure(w, http.StatusNotFound, "not found")
		return
	}
	log.Error().Err(err).Msg("Request failed")
	writeFailure(w, http.StatusInternalServerError, "internal error")
}

func statusFor(r *battle.Rejection) int {
	switch {
	case errors.Is(r, battle.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(r, battle.ErrInvalidParty):
		return http.StatusBadRequest
	case r.Payload, errors.Is(r, battle.ErrMustSwap), errors.Is(r, battle.ErrWaitingForSwap):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// statusRecorder remembers the response status. It passes flushing and
// hijacking through so streams and websockets keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := s.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// RequestLogger tags each request with an id and logs it when done.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = utils.RandomHex(8)
		}
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", ClientIP(r)).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("Request handled")
	})
}
