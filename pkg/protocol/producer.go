package protocol

import "time"

// Status is a producer's liveness state.
type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// LiveStatus returns the status a producer of the given source takes on
// when it is seen. Agents may report themselves idle; anything else is active.
func LiveStatus(src Source, reported Status) Status {
	if src == SourceService {
		return StatusOnline
	}
	if reported == StatusIdle {
		return StatusIdle
	}
	return StatusActive
}

// Producer is an agent or service known to the hub.
type Producer struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Icon            string    `json:"icon"`
	Source          Source    `json:"source"`
	Status          Status    `json:"status"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
	CurrentActivity *string   `json:"currentActivity"`
}

// Live reports whether the producer is not offline.
func (p Producer) Live() bool {
	return p.Status != StatusOffline
}
