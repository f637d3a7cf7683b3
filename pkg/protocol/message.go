package protocol

import (
	"encoding/json"
	"time"
)

// Server→client frame types on the subscriber socket.
const (
	MessageInitialState = "initial_state"
	MessageAgentEvent   = "agent_event"
	MessageServiceEvent = "service_event"
	MessageStatusChange = "status_change"
)

// ServerMessage is the envelope for every frame the hub pushes to a
// subscriber. Only the fields relevant to Type are populated; MarshalJSON
// writes exactly the shape of that frame type.
type ServerMessage struct {
	Type string `json:"type"`

	// initial_state
	Agents       []Producer `json:"agents,omitempty"`
	Services     []Producer `json:"services,omitempty"`
	RecentEvents []Event    `json:"recentEvents,omitempty"`

	// agent_event / service_event
	Producer *Producer `json:"producer,omitempty"`
	Event    *Event    `json:"event,omitempty"`

	// status_change
	ProducerID string `json:"producerId,omitempty"`
	Status     Status `json:"status,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshot builds the initial_state frame.
func NewSnapshot(agents, services []Producer, recent []Event, now time.Time) ServerMessage {
	return ServerMessage{
		Type:         MessageInitialState,
		Agents:       nonNil(agents),
		Services:     nonNil(services),
		RecentEvents: nonNil(recent),
		Timestamp:    now,
	}
}

// NewDelta builds the per-event frame for ev. Synthetic liveness events
// become status_change frames; everything else is tagged by producer class.
func NewDelta(p Producer, ev Event) ServerMessage {
	switch ev.Kind() {
	case KindStatusChange, KindShutdown:
		return ServerMessage{
			Type:       MessageStatusChange,
			ProducerID: ev.ProducerID,
			Status:     ev.Status,
			Event:      &ev,
			Timestamp:  ev.Timestamp,
		}
	}
	typ := MessageAgentEvent
	if p.Source == SourceService {
		typ = MessageServiceEvent
	}
	return ServerMessage{
		Type:      typ,
		Producer:  &p,
		Event:     &ev,
		Timestamp: ev.Timestamp,
	}
}

// MarshalJSON emits the per-type frame shape. initial_state always carries
// its three arrays, even when empty.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageInitialState:
		return json.Marshal(struct {
			Type         string     `json:"type"`
			Agents       []Producer `json:"agents"`
			Services     []Producer `json:"services"`
			RecentEvents []Event    `json:"recentEvents"`
			Timestamp    time.Time  `json:"timestamp"`
		}{m.Type, nonNil(m.Agents), nonNil(m.Services), nonNil(m.RecentEvents), m.Timestamp})
	case MessageStatusChange:
		return json.Marshal(struct {
			Type       string    `json:"type"`
			ProducerID string    `json:"producerId"`
			Status     Status    `json:"status"`
			Event      *Event    `json:"event,omitempty"`
			Timestamp  time.Time `json:"timestamp"`
		}{m.Type, m.ProducerID, m.Status, m.Event, m.Timestamp})
	default:
		return json.Marshal(struct {
			Type      string    `json:"type"`
			Producer  *Producer `json:"producer,omitempty"`
			Event     *Event    `json:"event,omitempty"`
			Timestamp time.Time `json:"timestamp"`
		}{m.Type, m.Producer, m.Event, m.Timestamp})
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
