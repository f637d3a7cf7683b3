package registry

import (
	"testing"
	"time"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func agentEvent(id string, at time.Time) protocol.Event {
	return protocol.Event{Source: protocol.SourceAgent, Type: protocol.TypeHeartbeat, ProducerID: id, Timestamp: at}
}

func TestObserveCreatesWithDefaults(t *testing.T) {
	r := New()
	p, created := r.Observe(agentEvent("a1", t0))
	if !created {
		t.Fatal("expected created")
	}
	if p.Name != "a1" || p.Icon != DefaultAgentIcon {
		t.Errorf("defaults = %q %q", p.Name, p.Icon)
	}
	if p.Status != protocol.StatusActive {
		t.Errorf("status = %s", p.Status)
	}
	if p.CurrentActivity != nil {
		t.Errorf("activity = %v, want nil", *p.CurrentActivity)
	}

	svc, _ := r.Observe(protocol.Event{Source: protocol.SourceService, Type: "started", ProducerID: "jira", Timestamp: t0})
	if svc.Status != protocol.StatusOnline || svc.Icon != DefaultServiceIcon {
		t.Errorf("service = %+v", svc)
	}
}

func TestObserveUpdatesMetadata(t *testing.T) {
	r := New()
	r.Observe(agentEvent("a1", t0))

	ev := agentEvent("a1", t0.Add(time.Minute))
	ev.ProducerName = "Analyst"
	ev.Icon = "🔍"
	ev.Activity = "reading PROJ-1"
	ev.Status = protocol.StatusIdle
	p, created := r.Observe(ev)
	if created {
		t.Fatal("second observe should not create")
	}
	if p.Name != "Analyst" || p.Icon != "🔍" || p.Status != protocol.StatusIdle {
		t.Errorf("producer = %+v", p)
	}
	if p.CurrentActivity == nil || *p.CurrentActivity != "reading PROJ-1" {
		t.Errorf("activity = %v", p.CurrentActivity)
	}
	if !p.LastSeenAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("lastSeen = %v", p.LastSeenAt)
	}

	// Metadata-less event keeps name/icon/activity.
	p, _ = r.Observe(agentEvent("a1", t0.Add(2*time.Minute)))
	if p.Name != "Analyst" || p.CurrentActivity == nil {
		t.Errorf("metadata lost: %+v", p)
	}
	if p.Status != protocol.StatusActive {
		t.Errorf("status = %s, want active", p.Status)
	}
}

func TestStaleAndMarkOffline(t *testing.T) {
	r := New()
	r.Observe(agentEvent("a1", t0))
	r.Observe(agentEvent("a2", t0.Add(80*time.Second)))

	stale := r.Stale(t0.Add(100*time.Second), 90*time.Second)
	if len(stale) != 1 || stale[0] != "a1" {
		t.Fatalf("Stale = %v", stale)
	}

	p, changed := r.MarkOffline("a1")
	if !changed || p.Status != protocol.StatusOffline {
		t.Fatalf("MarkOffline = %+v %v", p, changed)
	}
	if _, changed := r.MarkOffline("a1"); changed {
		t.Error("second MarkOffline should be a no-op")
	}
	if _, changed := r.MarkOffline("ghost"); changed {
		t.Error("unknown producer should not change")
	}
	if stale := r.Stale(t0.Add(100*time.Second), 90*time.Second); len(stale) != 0 {
		t.Errorf("offline producer reported stale again: %v", stale)
	}

	// Any new event revives it.
	p, _ = r.Observe(agentEvent("a1", t0.Add(200*time.Second)))
	if p.Status != protocol.StatusActive {
		t.Errorf("revived status = %s", p.Status)
	}
}

func TestListAndCount(t *testing.T) {
	r := New()
	r.Observe(agentEvent("b", t0))
	r.Observe(agentEvent("a", t0))
	r.Observe(protocol.Event{Source: protocol.SourceService, Type: "x", ProducerID: "db", Timestamp: t0})
	r.MarkOffline("b")

	agents := r.List(protocol.SourceAgent)
	if len(agents) != 2 || agents[0].ID != "a" {
		t.Fatalf("agents = %+v", agents)
	}
	c := r.Count(protocol.SourceAgent)
	if c.Total != 2 || c.Active != 1 || c.Offline != 1 {
		t.Errorf("agent counts = %+v", c)
	}
	if c := r.Count(protocol.SourceService); c.Online != 1 {
		t.Errorf("service counts = %+v", c)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
}
