package emitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

type captured struct {
	path string
	body map[string]any
}

func recorder(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, captured{r.URL.Path, body})
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func TestSendAgentEvent(t *testing.T) {
	srv, got := recorder(t, http.StatusOK)
	e := New(srv.URL+"/", protocol.SourceAgent, "a1", WithName("Analyst"), WithIcon("🔍"))

	err := e.Send(context.Background(), Event{
		Type:    protocol.TypeAnalysisPosted,
		Message: "Analysis of PROJ-1",
		Details: map[string]any{"ticketKey": "PROJ-1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	reqs := got()
	if len(reqs) != 1 || reqs[0].path != "/events/agent" {
		t.Fatalf("requests = %+v", reqs)
	}
	b := reqs[0].body
	if b["producerId"] != "a1" || b["name"] != "Analyst" || b["icon"] != "🔍" || b["type"] != protocol.TypeAnalysisPosted {
		t.Errorf("body = %v", b)
	}
	if d, ok := b["details"].(map[string]any); !ok || d["ticketKey"] != "PROJ-1" {
		t.Errorf("details = %v", b["details"])
	}
}

func TestServiceEventPath(t *testing.T) {
	srv, got := recorder(t, http.StatusOK)
	e := New(srv.URL, protocol.SourceService, "jira")
	if err := e.Send(context.Background(), Event{Type: "sync"}); err != nil {
		t.Fatal(err)
	}
	if reqs := got(); reqs[0].path != "/events/service" {
		t.Errorf("path = %s", reqs[0].path)
	}
}

func TestSendReportsHubError(t *testing.T) {
	srv, _ := recorder(t, http.StatusBadRequest)
	e := New(srv.URL, protocol.SourceAgent, "a1")
	err := e.Send(context.Background(), Event{Type: "x"})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("err = %v", err)
	}
}

func TestEmitSwallowsUnreachableHub(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := New(url, protocol.SourceAgent, "a1")
	start := time.Now()
	e.Emit(Event{Type: "note"})
	e.Wait()
	if elapsed := time.Since(start); elapsed > 2*DefaultTimeout {
		t.Errorf("emit took %v", elapsed)
	}
}

func TestSendTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	e := New(srv.URL, protocol.SourceAgent, "a1", WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	if err := e.Send(context.Background(), Event{Type: "note"}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestHeartbeatThenShutdown(t *testing.T) {
	srv, got := recorder(t, http.StatusOK)
	e := New(srv.URL, protocol.SourceAgent, "a1", WithName("Analyst"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Heartbeat(ctx, 10*time.Millisecond, func() string { return "triaging" })
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(got()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	reqs := got()
	if len(reqs) < 3 {
		t.Fatalf("requests = %d", len(reqs))
	}
	if reqs[0].body["type"] != protocol.TypeHeartbeat || reqs[0].body["activity"] != "triaging" {
		t.Errorf("first = %v", reqs[0].body)
	}
	var shutdowns []captured
	for _, r := range reqs {
		if r.path == "/shutdown" {
			shutdowns = append(shutdowns, r)
		}
	}
	if len(shutdowns) != 1 || shutdowns[0].body["producerId"] != "a1" || shutdowns[0].body["name"] != "Analyst" {
		t.Errorf("shutdown requests = %+v", shutdowns)
	}
}
