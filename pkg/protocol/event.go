package protocol

import "time"

// Source identifies which class of process originated an event.
type Source string

const (
	SourceAgent   Source = "agent"
	SourceService Source = "service"
	SourceSystem  Source = "system"
)

// Kind is the closed set of event types the hub and projector understand.
// Tags outside this set decode to KindUnknown but the raw tag is kept on the
// Event, so newer producers are never dropped.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeartbeat
	KindAnalysisPosted
	KindNeedsClarification
	KindTicketComplete
	KindSubTaskCreated
	KindSubTaskCompleted
	KindStatusChange
	KindShutdown
)

// Event type tags as they appear on the wire.
const (
	TypeHeartbeat          = "heartbeat"
	TypeAnalysisPosted     = "analysis_posted"
	TypeNeedsClarification = "needs_clarification"
	TypeTicketComplete     = "ticket_complete"
	TypeSubTaskCreated     = "subtask_created"
	TypeSubTaskCompleted   = "subtask_completed"
	TypeStatusChange       = "status_change"
	TypeShutdown           = "shutdown"
)

var kindByTag = map[string]Kind{
	TypeHeartbeat:          KindHeartbeat,
	TypeAnalysisPosted:     KindAnalysisPosted,
	TypeNeedsClarification: KindNeedsClarification,
	TypeTicketComplete:     KindTicketComplete,
	TypeSubTaskCreated:     KindSubTaskCreated,
	TypeSubTaskCompleted:   KindSubTaskCompleted,
	TypeStatusChange:       KindStatusChange,
	TypeShutdown:           KindShutdown,
}

// KindOf maps a wire tag to its Kind.
func KindOf(tag string) Kind {
	if k, ok := kindByTag[tag]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) String() string {
	for tag, kind := range kindByTag {
		if kind == k {
			return tag
		}
	}
	return "unknown"
}

// Event is a single immutable entry in the hub's activity log.
// The producer snapshot fields (ProducerName, Icon, Status) describe the
// producer as it was right after the event was applied.
type Event struct {
	ID           string    `json:"id"`
	Source       Source    `json:"source"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	ProducerID   string    `json:"producerId"`
	ProducerName string    `json:"producerName,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Status       Status    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	Details      string    `json:"details,omitempty"`
	Activity     string    `json:"activity,omitempty"`
}

// Kind returns the decoded kind of the event's type tag.
func (e Event) Kind() Kind {
	return KindOf(e.Type)
}

// IsHeartbeat reports whether the event only refreshes liveness.
func (e Event) IsHeartbeat() bool {
	return e.Type == TypeHeartbeat
}
