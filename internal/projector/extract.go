package projector

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

var (
	ticketKeyRe   = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
	parentKeyRe   = regexp.MustCompile(`\b(?i:under|of|for|parent)\s+([A-Z][A-Z0-9]+-\d+)\b`)
	pointsAfterRe = regexp.MustCompile(`(?i)\b(\d+)\s*(?:story\s*)?(?:points?|pts|sp)\b`)
	pointsLabelRe = regexp.MustCompile(`(?i)\b(?:story\s*)?points?\s*[:=]?\s*(\d+)\b`)
	iterationRe   = regexp.MustCompile(`\b(\d+)\s*/\s*(\d+)\b`)
)

// Payload keys accepted for each field, most specific first.
var (
	keyFields         = []string{"ticketKey", "ticket_key", "ticketId", "ticket", "key"}
	parentFields      = []string{"parentKey", "parent_key", "parentTicket", "parent"}
	pointsFields      = []string{"storyPoints", "story_points", "points", "estimate"}
	clarityFields     = []string{"clarity", "clarityLevel", "clarity_level"}
	iterationFields   = []string{"iteration", "attempt"}
	maxIterFields     = []string{"maxIterations", "max_iterations", "maxAttempts"}
	reasonFields      = []string{"reason", "question", "feedback"}
	descriptionFields = []string{"description", "summary"}
	agentTypeFields   = []string{"agentType", "agent_type", "assignee"}
	statusFields      = []string{"status", "state"}
)

// parsedEvent is an event together with its decoded payload.
type parsedEvent struct {
	protocol.Event
	payload Payload
}

func parse(ev protocol.Event) parsedEvent {
	return parsedEvent{Event: ev, payload: Decode(ev.Details)}
}

// ticketKey prefers the structured payload, then the first key-shaped token
// in the message, then in the raw details whatever their format.
func (e parsedEvent) ticketKey() string {
	if k, ok := e.payload.String(keyFields...); ok {
		return k
	}
	if k := ticketKeyRe.FindString(e.Message); k != "" {
		return k
	}
	return ticketKeyRe.FindString(e.payload.Raw)
}

// rejected reports whether a ticket_complete event is a rejection rather
// than a finalization.
func (e parsedEvent) rejected() bool {
	if r, ok := e.payload.Bool("rejected", "isRejected"); ok {
		return r
	}
	if s, ok := e.payload.String("status", "decision", "outcome"); ok {
		return strings.EqualFold(s, "rejected")
	}
	if approved, ok := e.payload.Bool("approved", "finalized"); ok {
		return !approved
	}
	return strings.Contains(strings.ToLower(e.Message), "reject")
}

func (e parsedEvent) reason() string {
	if r, ok := e.payload.String(reasonFields...); ok {
		return r
	}
	return e.Message
}

// storyPoints tries the payload, then free text. ok=false means the caller
// should apply its default.
func (e parsedEvent) storyPoints() (int, bool) {
	if n, ok := e.payload.Int(pointsFields...); ok && n > 0 {
		return n, true
	}
	for _, text := range []string{e.Message, e.payload.Raw} {
		if n, ok := pointsFromText(text); ok {
			return n, true
		}
	}
	return 0, false
}

func pointsFromText(s string) (int, bool) {
	for _, re := range []*regexp.Regexp{pointsAfterRe, pointsLabelRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func (e parsedEvent) iterations() (iter, max int) {
	iter, _ = e.payload.Int(iterationFields...)
	max, _ = e.payload.Int(maxIterFields...)
	if iter == 0 && max == 0 {
		if m := iterationRe.FindStringSubmatch(e.Message); m != nil {
			iter, _ = strconv.Atoi(m[1])
			max, _ = strconv.Atoi(m[2])
		}
	}
	return iter, max
}

// subTaskKeys extracts the sub-task key and its parent from a free-text
// creation message such as "Created PROJ-12 under PROJ-10".
func subTaskKeysFromText(text string) (key, parent string) {
	if m := parentKeyRe.FindStringSubmatch(text); m != nil {
		parent = m[1]
	}
	for _, k := range ticketKeyRe.FindAllString(text, -1) {
		if k != parent {
			return k, parent
		}
	}
	return "", parent
}
