package hub

import (
	"context"
	"log/slog"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// Sink receives every stored event after it has been broadcast (archive,
// alerting). Sinks run off the hub loop; a slow sink only loses events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev protocol.Event) error
}

// dispatcher forwards events to sinks from its own goroutine.
type dispatcher struct {
	sinks  []Sink
	queue  chan protocol.Event
	logger *slog.Logger
}

func newDispatcher(sinks []Sink, size int, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		sinks:  sinks,
		queue:  make(chan protocol.Event, size),
		logger: logger,
	}
}

// enqueue never blocks the hub loop.
func (d *dispatcher) enqueue(ev protocol.Event) {
	if len(d.sinks) == 0 {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("sink queue full, event dropped", "event", ev.ID, "type", ev.Type)
	}
}

func (d *dispatcher) run(ctx context.Context) {
	if len(d.sinks) == 0 {
		return
	}
	for {
		select {
		case ev := <-d.queue:
			for _, s := range d.sinks {
				if err := s.Deliver(ctx, ev); err != nil {
					d.logger.Error("sink delivery failed", "sink", s.Name(), "event", ev.ID, "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
