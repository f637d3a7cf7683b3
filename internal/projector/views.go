package projector

import (
	"sort"
	"strings"
	"time"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// DefaultStoryPoints is used when a finalized ticket carries no estimate.
const DefaultStoryPoints = 5

// Clarity ranks, most urgent first.
const (
	ClarityUnclear = "unclear"
	ClarityMedium  = "medium"
	ClarityClear   = "clear"
)

func clarityRank(c string) int {
	switch strings.ToLower(c) {
	case ClarityUnclear:
		return 0
	case ClarityMedium:
		return 1
	case ClarityClear:
		return 2
	}
	return 3
}

// ApprovalQueueItem is a ticket awaiting a human decision.
type ApprovalQueueItem struct {
	TicketKey    string         `json:"ticketKey"`
	ProducerID   string         `json:"producerId"`
	ProducerName string         `json:"producerName,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Clarity      string         `json:"clarity,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Analysis     map[string]any `json:"analysis,omitempty"`

	Rejected        bool   `json:"rejected"`
	RejectionReason string `json:"rejectionReason,omitempty"`

	NeedsClarification  bool   `json:"needsClarification"`
	Iteration           int    `json:"iteration,omitempty"`
	MaxIterations       int    `json:"maxIterations,omitempty"`
	ClarificationReason string `json:"clarificationReason,omitempty"`
}

// ApprovedTicketItem is a finalized ticket.
type ApprovedTicketItem struct {
	TicketKey    string    `json:"ticketKey"`
	ProducerID   string    `json:"producerId"`
	ProducerName string    `json:"producerName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	StoryPoints  int       `json:"storyPoints"`
	Description  string    `json:"description,omitempty"`
}

// SubTaskItem is an open sub-task.
type SubTaskItem struct {
	TicketKey  string    `json:"ticketKey"`
	ParentKey  string    `json:"parentKey,omitempty"`
	AgentType  string    `json:"agentType,omitempty"`
	Status     string    `json:"status"`
	ProducerID string    `json:"producerId"`
	Created    time.Time `json:"created"`
	Summary    string    `json:"summary,omitempty"`
}

// Views is everything a dashboard renders.
type Views struct {
	Liveness        []protocol.Producer  `json:"liveness"`
	ApprovalQueue   []ApprovalQueueItem  `json:"approvalQueue"`
	ApprovedTickets []ApprovedTicketItem `json:"approvedTickets"`
	SubTasks        []SubTaskItem        `json:"subTasks"`
}

// Project derives all views from a base registry and an ordered event log.
// It is a pure function: the same inputs always produce the same Views.
func Project(base []protocol.Producer, log []protocol.Event) Views {
	parsed := make([]parsedEvent, 0, len(log))
	for _, ev := range log {
		if ev.IsHeartbeat() {
			continue
		}
		parsed = append(parsed, parse(ev))
	}
	return Views{
		Liveness:        liveness(base, parsed),
		ApprovalQueue:   approvalQueue(parsed),
		ApprovedTickets: approvedTickets(parsed),
		SubTasks:        subTasks(parsed),
	}
}

// liveness starts from the base registry and replays the log. A base entry
// seen more recently than an event shadows that event.
func liveness(base []protocol.Producer, log []parsedEvent) []protocol.Producer {
	m := make(map[string]protocol.Producer, len(base))
	for _, p := range base {
		m[p.ID] = p
	}
	for _, e := range log {
		cur, known := m[e.ProducerID]
		if known && cur.LastSeenAt.After(e.Timestamp) {
			continue
		}
		cur.ID = e.ProducerID
		if e.ProducerName != "" {
			cur.Name = e.ProducerName
		}
		if e.Icon != "" {
			cur.Icon = e.Icon
		}
		if e.Source == protocol.SourceSystem {
			// Synthetic demotions carry the new status but are not
			// evidence of the producer being alive.
			cur.CurrentActivity = nil
		} else {
			cur.Source = e.Source
			cur.LastSeenAt = e.Timestamp
			if e.Activity != "" {
				a := e.Activity
				cur.CurrentActivity = &a
			}
		}
		if cur.Source == "" {
			cur.Source = protocol.SourceAgent
		}
		if e.Status != "" {
			cur.Status = e.Status
		} else if cur.Status == "" {
			cur.Status = protocol.LiveStatus(cur.Source, "")
		}
		m[e.ProducerID] = cur
	}

	out := make([]protocol.Producer, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func approvalQueue(log []parsedEvent) []ApprovalQueueItem {
	items := make(map[string]*ApprovalQueueItem)
	analyzed := make(map[string]bool)
	var order []string

	seed := func(key string, e parsedEvent) *ApprovalQueueItem {
		it := &ApprovalQueueItem{
			TicketKey:    key,
			ProducerID:   e.ProducerID,
			ProducerName: e.ProducerName,
			Timestamp:    e.Timestamp,
			Summary:      e.Message,
		}
		if e.Kind() == protocol.KindAnalysisPosted {
			it.setAnalysis(e)
			analyzed[key] = true
		}
		items[key] = it
		order = append(order, key)
		return it
	}

	// Seed: the first analysis or clarification request per key.
	for _, e := range log {
		switch e.Kind() {
		case protocol.KindAnalysisPosted, protocol.KindNeedsClarification:
		default:
			continue
		}
		key := e.ticketKey()
		if key == "" {
			continue
		}
		if _, ok := items[key]; !ok {
			seed(key, e)
		}
	}

	// Overlay markers in arrival order.
	subtaskKeys := make(map[string]bool)
	finalized := make(map[string]bool)
	for _, e := range log {
		switch e.Kind() {
		case protocol.KindAnalysisPosted:
			// A clarification-seeded entry takes the first analysis that follows.
			key := e.ticketKey()
			if it, ok := items[key]; ok && !analyzed[key] {
				it.setAnalysis(e)
				analyzed[key] = true
			}
		case protocol.KindNeedsClarification:
			key := e.ticketKey()
			if key == "" {
				continue
			}
			it, ok := items[key]
			if !ok {
				it = seed(key, e)
			}
			it.NeedsClarification = true
			it.Iteration, it.MaxIterations = e.iterations()
			it.ClarificationReason = e.reason()
		case protocol.KindTicketComplete:
			key := e.ticketKey()
			if key == "" {
				continue
			}
			if !e.rejected() {
				finalized[key] = true
				continue
			}
			if it, ok := items[key]; ok {
				it.Rejected = true
				it.RejectionReason = e.reason()
			}
		case protocol.KindSubTaskCreated:
			if key, _ := subTaskIdentity(e); key != "" {
				subtaskKeys[key] = true
			}
		}
	}

	out := make([]ApprovalQueueItem, 0, len(order))
	for _, key := range order {
		if subtaskKeys[key] {
			continue
		}
		// Finalization is applied last so it overrides a rejection mark.
		if finalized[key] {
			continue
		}
		out = append(out, *items[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Rejected != b.Rejected {
			return a.Rejected
		}
		if a.NeedsClarification != b.NeedsClarification {
			return a.NeedsClarification
		}
		if ra, rb := clarityRank(a.Clarity), clarityRank(b.Clarity); ra != rb {
			return ra < rb
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.TicketKey < b.TicketKey
	})
	return out
}

func (it *ApprovalQueueItem) setAnalysis(e parsedEvent) {
	if c, ok := e.payload.String(clarityFields...); ok {
		it.Clarity = strings.ToLower(c)
	}
	if e.payload.Format == FormatJSON {
		it.Analysis = e.payload.Fields
	}
}

func approvedTickets(log []parsedEvent) []ApprovedTicketItem {
	seen := make(map[string]bool)
	out := []ApprovedTicketItem{}
	for _, e := range log {
		if e.Kind() != protocol.KindTicketComplete || e.rejected() {
			continue
		}
		key := e.ticketKey()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		points, ok := e.storyPoints()
		if !ok {
			points = DefaultStoryPoints
		}
		desc, _ := e.payload.String(descriptionFields...)
		out = append(out, ApprovedTicketItem{
			TicketKey:    key,
			ProducerID:   e.ProducerID,
			ProducerName: e.ProducerName,
			Timestamp:    e.Timestamp,
			StoryPoints:  points,
			Description:  desc,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].TicketKey < out[j].TicketKey
	})
	return out
}

// subTaskIdentity returns the sub-task key and parent for a creation event,
// preferring structured fields over the message text.
func subTaskIdentity(e parsedEvent) (key, parent string) {
	if k, ok := e.payload.String(keyFields...); ok {
		parent, _ = e.payload.String(parentFields...)
		return k, parent
	}
	if key, parent = subTaskKeysFromText(e.Message); key != "" {
		return key, parent
	}
	return subTaskKeysFromText(e.payload.Raw)
}

func subTasks(log []parsedEvent) []SubTaskItem {
	completed := make(map[string]bool)
	for _, e := range log {
		if e.Kind() == protocol.KindSubTaskCompleted {
			if key := e.ticketKey(); key != "" {
				completed[key] = true
			}
		}
	}

	seen := make(map[string]bool)
	out := []SubTaskItem{}
	for _, e := range log {
		if e.Kind() != protocol.KindSubTaskCreated {
			continue
		}
		key, parent := subTaskIdentity(e)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if completed[key] {
			continue
		}
		status, ok := e.payload.String(statusFields...)
		if !ok {
			status = "open"
		}
		agentType, _ := e.payload.String(agentTypeFields...)
		out = append(out, SubTaskItem{
			TicketKey:  key,
			ParentKey:  parent,
			AgentType:  agentType,
			Status:     status,
			ProducerID: e.ProducerID,
			Created:    e.Timestamp,
			Summary:    e.Message,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].TicketKey < out[j].TicketKey
	})
	return out
}
