package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"heartbeat":           KindHeartbeat,
		"analysis_posted":     KindAnalysisPosted,
		"needs_clarification": KindNeedsClarification,
		"ticket_complete":     KindTicketComplete,
		"subtask_created":     KindSubTaskCreated,
		"subtask_completed":   KindSubTaskCompleted,
		"status_change":       KindStatusChange,
		"shutdown":            KindShutdown,
		"estimate_revised":    KindUnknown,
		"":                    KindUnknown,
	}
	for tag, want := range tests {
		if got := KindOf(tag); got != want {
			t.Errorf("KindOf(%q) = %v, want %v", tag, got, want)
		}
	}
}

func TestUnknownTagPreserved(t *testing.T) {
	ev := Event{Type: "estimate_revised"}
	if ev.Kind() != KindUnknown {
		t.Fatalf("Kind = %v", ev.Kind())
	}
	if ev.Type != "estimate_revised" {
		t.Errorf("raw tag lost: %q", ev.Type)
	}
	if KindUnknown.String() != "unknown" || KindTicketComplete.String() != TypeTicketComplete {
		t.Errorf("String() = %q / %q", KindUnknown.String(), KindTicketComplete.String())
	}
}

func TestLiveStatus(t *testing.T) {
	if s := LiveStatus(SourceAgent, ""); s != StatusActive {
		t.Errorf("agent default = %s", s)
	}
	if s := LiveStatus(SourceAgent, StatusIdle); s != StatusIdle {
		t.Errorf("agent idle = %s", s)
	}
	if s := LiveStatus(SourceAgent, StatusOffline); s != StatusActive {
		t.Errorf("agent reporting offline = %s, want active", s)
	}
	if s := LiveStatus(SourceService, StatusIdle); s != StatusOnline {
		t.Errorf("service = %s", s)
	}
}

func TestNewDelta(t *testing.T) {
	now := time.Now()
	agent := Producer{ID: "a1", Source: SourceAgent}
	svc := Producer{ID: "db", Source: SourceService}

	if m := NewDelta(agent, Event{Type: TypeAnalysisPosted, Timestamp: now}); m.Type != MessageAgentEvent || m.Producer.ID != "a1" {
		t.Errorf("agent delta = %+v", m)
	}
	if m := NewDelta(svc, Event{Type: "sync"}); m.Type != MessageServiceEvent {
		t.Errorf("service delta = %+v", m)
	}
	m := NewDelta(agent, Event{Type: TypeStatusChange, ProducerID: "a1", Status: StatusOffline, Timestamp: now})
	if m.Type != MessageStatusChange || m.ProducerID != "a1" || m.Status != StatusOffline || m.Event == nil {
		t.Errorf("status delta = %+v", m)
	}
}

func TestMarshalShapes(t *testing.T) {
	snap, err := json.Marshal(NewSnapshot(nil, nil, nil, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"agents":[]`, `"services":[]`, `"recentEvents":[]`} {
		if !strings.Contains(string(snap), key) {
			t.Errorf("snapshot %s missing %s", snap, key)
		}
	}

	change, _ := json.Marshal(NewDelta(Producer{}, Event{Type: TypeShutdown, ProducerID: "a1", Status: StatusOffline}))
	if strings.Contains(string(change), `"producer"`) || !strings.Contains(string(change), `"producerId":"a1"`) {
		t.Errorf("status_change = %s", change)
	}

	var back ServerMessage
	if err := json.Unmarshal(change, &back); err != nil {
		t.Fatal(err)
	}
	if back.Type != MessageStatusChange || back.Event == nil || back.Event.Type != TypeShutdown {
		t.Errorf("decoded = %+v", back)
	}
}
