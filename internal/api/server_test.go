package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/h1v3-io/pulse/internal/hub"
	"github.com/h1v3-io/pulse/internal/logbuf"
	"github.com/h1v3-io/pulse/pkg/protocol"
)

func newTestServer(t *testing.T) (*Server, *hub.Hub) {
	t.Helper()
	h := hub.New(hub.Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return NewServer(h, Config{Host: "127.0.0.1", Port: 0, HistoryCapacity: 500}, nil, nil), h
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestIngestAgentEvent(t *testing.T) {
	srv, h := newTestServer(t)

	w := do(t, srv, "POST", "/events/agent", `{"producerId":"a1","type":"analysis_posted","name":"Analyst","details":{"ticketKey":"PROJ-1"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}

	events, _ := h.Events(context.Background(), 0)
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].Details != `{"ticketKey":"PROJ-1"}` {
		t.Errorf("details = %q", events[0].Details)
	}
	if events[0].ProducerName != "Analyst" || events[0].Source != protocol.SourceAgent {
		t.Errorf("event = %+v", events[0])
	}
}

func TestIngestStringDetailsKeptVerbatim(t *testing.T) {
	srv, h := newTestServer(t)
	do(t, srv, "POST", "/events/service", `{"producerId":"jira","type":"sync","details":"{\"a\":1}"}`)

	events, _ := h.Events(context.Background(), 0)
	if len(events) != 1 || events[0].Details != `{"a":1}` || events[0].Source != protocol.SourceService {
		t.Fatalf("events = %+v", events)
	}
}

func TestIngestValidation(t *testing.T) {
	srv, h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing producer", `{"type":"x"}`},
		{"missing type", `{"producerId":"a1"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "POST", "/events/agent", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var body map[string]any
			json.NewDecoder(w.Body).Decode(&body)
			if body["success"] != false {
				t.Errorf("body = %v", body)
			}
		})
	}

	agents, _, _ := h.Producers(context.Background())
	if len(agents) != 0 {
		t.Errorf("rejected events created producers: %+v", agents)
	}
}

func TestHeartbeatsNotListed(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, "POST", "/events/agent", `{"producerId":"a1","type":"heartbeat"}`)
	do(t, srv, "POST", "/events/agent", `{"producerId":"a1","type":"heartbeat"}`)

	w := do(t, srv, "GET", "/events", "")
	var events []protocol.Event
	json.NewDecoder(w.Body).Decode(&events)
	if len(events) != 0 {
		t.Errorf("events = %+v", events)
	}

	w = do(t, srv, "GET", "/producers", "")
	var producers map[string][]protocol.Producer
	json.NewDecoder(w.Body).Decode(&producers)
	if len(producers["agents"]) != 1 || producers["agents"][0].Status != protocol.StatusActive {
		t.Errorf("producers = %+v", producers)
	}
	if producers["services"] == nil {
		t.Error("services should be an empty array, not null")
	}
}

func TestEventsLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < 5; i++ {
		do(t, srv, "POST", "/events/agent", fmt.Sprintf(`{"producerId":"a1","type":"note","message":"m%d"}`, i))
	}

	w := do(t, srv, "GET", "/events?limit=2", "")
	var events []protocol.Event
	json.NewDecoder(w.Body).Decode(&events)
	if len(events) != 2 || events[1].Message != "m4" {
		t.Errorf("events = %+v", events)
	}
}

func TestShutdownEndpoint(t *testing.T) {
	srv, h := newTestServer(t)
	do(t, srv, "POST", "/events/agent", `{"producerId":"a1","type":"heartbeat"}`)

	if w := do(t, srv, "POST", "/shutdown", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "POST", "/shutdown", `{"producerId":"a1","name":"Analyst"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	agents, _, _ := h.Producers(context.Background())
	if agents[0].Status != protocol.StatusOffline {
		t.Errorf("status = %s", agents[0].Status)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, "POST", "/events/agent", `{"producerId":"a1","type":"note"}`)

	w := do(t, srv, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var health hub.Health
	json.NewDecoder(w.Body).Decode(&health)
	if health.Status != "ok" || health.HistoryLength != 1 || health.ProducerCounts["agents"].Total != 1 {
		t.Errorf("health = %+v", health)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, "OPTIONS", "/events/agent", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestGetLogs(t *testing.T) {
	buf := logbuf.New(10)
	buf.Write(logbuf.Entry{Time: time.Now(), Level: "INFO", Message: "info"})
	buf.Write(logbuf.Entry{Time: time.Now(), Level: "ERROR", Message: "error"})
	srv := NewServer(hub.New(hub.Config{}, nil), Config{}, nil, buf)

	w := do(t, srv, "GET", "/logs?level=error", "")
	var entries []logbuf.Entry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].Message != "error" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestWebsocketSnapshotAndDelta(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	do(t, srv, "POST", "/events/agent", `{"producerId":"a1","type":"analysis_posted"}`)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap protocol.ServerMessage
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != protocol.MessageInitialState || len(snap.RecentEvents) != 1 || len(snap.Agents) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	do(t, srv, "POST", "/events/service", `{"producerId":"jira","type":"sync"}`)
	var delta protocol.ServerMessage
	if err := conn.ReadJSON(&delta); err != nil {
		t.Fatalf("read delta: %v", err)
	}
	if delta.Type != protocol.MessageServiceEvent || delta.Producer == nil || delta.Producer.ID != "jira" {
		t.Errorf("delta = %+v", delta)
	}

	do(t, srv, "POST", "/shutdown", `{"producerId":"a1"}`)
	var change protocol.ServerMessage
	if err := conn.ReadJSON(&change); err != nil {
		t.Fatalf("read status change: %v", err)
	}
	if change.Type != protocol.MessageStatusChange || change.ProducerID != "a1" || change.Status != protocol.StatusOffline {
		t.Errorf("status change = %+v", change)
	}
}
