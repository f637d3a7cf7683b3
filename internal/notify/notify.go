// Package notify forwards liveness changes to chat platforms and webhooks.
// Each Notifier is wrapped in a Sink that the hub delivers stored events to;
// the Sink drops everything except the kinds it was built for.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// Notifier delivers a rendered alert to one external destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev protocol.Event, text string) error
}

// DefaultKinds are the event kinds alerts are raised for.
var DefaultKinds = []protocol.Kind{protocol.KindStatusChange, protocol.KindShutdown}

// Sink adapts a Notifier to the hub's sink interface.
type Sink struct {
	n     Notifier
	kinds map[protocol.Kind]bool
}

// NewSink filters events down to kinds before notifying. With no kinds,
// DefaultKinds apply.
func NewSink(n Notifier, kinds ...protocol.Kind) *Sink {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	s := &Sink{n: n, kinds: make(map[protocol.Kind]bool, len(kinds))}
	for _, k := range kinds {
		s.kinds[k] = true
	}
	return s
}

func (s *Sink) Name() string { return "notify:" + s.n.Name() }

// Deliver renders ev and hands it to the notifier. Filtered events succeed
// without any external call.
func (s *Sink) Deliver(ctx context.Context, ev protocol.Event) error {
	if !s.kinds[ev.Kind()] {
		return nil
	}
	if err := s.n.Notify(ctx, ev, Format(ev)); err != nil {
		return fmt.Errorf("%s: %w", s.n.Name(), err)
	}
	return nil
}

// Format renders a one-line alert for ev.
func Format(ev protocol.Event) string {
	who := ev.ProducerID
	if ev.ProducerName != "" && ev.ProducerName != ev.ProducerID {
		who = fmt.Sprintf("%s (%s)", ev.ProducerName, ev.ProducerID)
	}
	if ev.Icon != "" {
		who = ev.Icon + " " + who
	}

	var b strings.Builder
	switch ev.Kind() {
	case protocol.KindShutdown:
		fmt.Fprintf(&b, "⏹ %s shut down", who)
	case protocol.KindStatusChange:
		fmt.Fprintf(&b, "🔴 %s is %s", who, ev.Status)
	default:
		fmt.Fprintf(&b, "%s: %s", who, ev.Type)
	}
	if ev.Message != "" {
		b.WriteString(": ")
		b.WriteString(ev.Message)
	}
	return b.String()
}
