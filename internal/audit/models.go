package audit

import (
	"time"

	"ab-caller/internal/calls"
)

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit writes are best-effort; callers must not fail a dispatch on them.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	TestID string      `json:"test_id,omitempty"`
	LeadID string      `json:"lead_id,omitempty"`
	Group  calls.Group `json:"group,omitempty"`
	CallID string      `json:"call_id,omitempty"`

	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeCallDispatched  EventType = "call_dispatched"
	EventTypeBatchDispatched EventType = "batch_dispatched"
	EventTypeConnectionTest  EventType = "connection_test"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeCallDispatched, EventTypeBatchDispatched, EventTypeConnectionTest:
		return true
	}
	return false
}

// Actor identifies who triggered an event.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type   EventType
	TestID string
	Since  time.Time
	Limit  int
}

func (f Filter) matches(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.TestID != "" && e.TestID != f.TestID {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
