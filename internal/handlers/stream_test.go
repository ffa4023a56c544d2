package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"monbattle/internal/hub"
)

func TestSSESendsCurrentBattleFirst(t *testing.T) {
	e := newTestEnv(t)
	id := e.challenge(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/sse/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sse: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg hub.Message
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if msg.Kind != hub.UpdatedKind {
		t.Fatalf("unexpected kind %q", msg.Kind)
	}
}

func TestWebsocketReceivesUpdates(t *testing.T) {
	e := newTestEnv(t)
	id := e.challenge(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/"+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() map[string]any {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Kind string         `json:"kind"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Kind != hub.UpdatedKind {
			t.Fatalf("unexpected kind %q", msg.Kind)
		}
		return msg.Data
	}

	if first := read(); first["nextActorId"] != alice.String() {
		t.Fatalf("expected alice to be waited on, got %v", first["nextActorId"])
	}
	if code, resp := e.do(t, "POST", "/battles/"+id+"/act", alice, `{"type":"move","slot":1}`); code != http.StatusOK {
		t.Fatalf("act failed: %d %v", code, resp)
	}
	if next := read(); next["nextActorId"] != bob.String() {
		t.Fatalf("expected the update to wait on bob, got %v", next["nextActorId"])
	}
}
