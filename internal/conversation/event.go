// Package conversation drives a reporter through the question tree, collects
// evidence and decides when a report is submitted.
package conversation

import (
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

// EventKind is the type of an inbound chat event.
type EventKind int

const (
	EventStart EventKind = iota
	EventHelp
	EventClear
	EventRestart
	EventButton
	EventText
	EventPhoto
	EventLocation
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventHelp:
		return "help"
	case EventClear:
		return "clear"
	case EventRestart:
		return "restart"
	case EventButton:
		return "button"
	case EventText:
		return "text"
	case EventPhoto:
		return "photo"
	case EventLocation:
		return "location"
	default:
		return "unknown"
	}
}

// Event is one user turn as delivered by the chat adapter.
type Event struct {
	Kind     EventKind
	ChatID   int64
	Identity session.Identity

	// MessageID is the message carrying the pressed button (EventButton).
	MessageID int64
	Label     string
	Text      string
	Photo     session.PhotoRef
	Location  session.Coordinate
}

// State is where a session stands in the conversation. It is derived from the
// session, never stored.
type State int

const (
	AwaitingRegistration State = iota
	AwaitingCategory
	AwaitingSubchoice
	AwaitingEvidence
	Submitted
)

func (s State) String() string {
	switch s {
	case AwaitingRegistration:
		return "awaiting_registration"
	case AwaitingCategory:
		return "awaiting_category"
	case AwaitingSubchoice:
		return "awaiting_subchoice"
	case AwaitingEvidence:
		return "awaiting_evidence"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Outcome is the result of handling one event.
type Outcome struct {
	State State
	// ReportID is set once the session's report has been persisted.
	ReportID uuid.UUID
}

func (o Outcome) Submitted() bool { return o.State == Submitted }

// Reply is an outbound message. Keyboard holds one button label per row.
type Reply struct {
	Text           string
	Keyboard       []string
	RemoveKeyboard bool
}
