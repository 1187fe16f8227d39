package model

import "time"

// HeadEventType represents the kind of change an upstream reported for a head
type HeadEventType string

const (
	HeadEventCreated HeadEventType = "created"
	HeadEventUpdated HeadEventType = "updated"
	HeadEventRemoved HeadEventType = "removed"
)

// Valid reports whether the event type is one of the known kinds
func (t HeadEventType) Valid() bool {
	switch t {
	case HeadEventCreated, HeadEventUpdated, HeadEventRemoved:
		return true
	}
	return false
}

// Event is an inbound reconciliation trigger. Events are best-effort hints:
// the engine always re-derives truth from the source before acting on one.
type Event interface {
	// EventSourceID returns the ID of the source the event claims to be about
	EventSourceID() string
}

// HeadEvent targets a single head of a single source
type HeadEvent struct {
	ID           string        // Delivery ID, for log correlation
	Type         HeadEventType // Created, updated or removed
	SourceID     string        // Source the change happened in
	Head         Head          // The head the event is about
	RevisionHint Revision      // Revision claimed by the sender; never trusted
	ReceivedAt   time.Time
}

func (e HeadEvent) EventSourceID() string { return e.SourceID }

// ContainerEvent is a repository-wide "something changed" signal used when
// the upstream cannot identify a single head. It causes a scan of the named
// source's contribution merged against the other sources' last-known state.
type ContainerEvent struct {
	ID         string
	SourceID   string
	ReceivedAt time.Time
}

func (e ContainerEvent) EventSourceID() string { return e.SourceID }
