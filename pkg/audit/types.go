package audit

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
)

// EventType is the kind of audit event
type EventType string

const (
	// Gate rejections
	EventTypeAuthFailed       EventType = "auth_failed"
	EventTypeAccessDenied     EventType = "access_denied"
	EventTypeRateLimited      EventType = "rate_limited"
	EventTypeValidationFailed EventType = "validation_failed"
	EventTypeStoreUnavailable EventType = "store_unavailable"

	// Operator actions
	EventTypeCounterReset EventType = "counter_reset"
)

// EventStatus represents the outcome of an audited action
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor; empty for anonymous callers
	Subject string `json:"subject,omitempty"`
	Role    string `json:"role,omitempty"`

	Route     string `json:"route,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Kind is the rejection kind for gate events
	Kind    string            `json:"kind,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  []string          `json:"fields,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// TypeForKind maps a rejection kind to its audit event type
func TypeForKind(kind accesserr.Kind) EventType {
	switch kind {
	case accesserr.KindMissingToken, accesserr.KindInvalidToken, accesserr.KindExpired,
		accesserr.KindAuthenticationRequired:
		return EventTypeAuthFailed
	case accesserr.KindForbidden:
		return EventTypeAccessDenied
	case accesserr.KindRateLimitExceeded:
		return EventTypeRateLimited
	case accesserr.KindValidationFailed:
		return EventTypeValidationFailed
	default:
		return EventTypeStoreUnavailable
	}
}

// NewRejectionEvent builds the audit event for a gate rejection. Only field
// names of validation failures are kept, never submitted values.
func NewRejectionEvent(rej *accesserr.Error) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: TypeForKind(rej.Kind),
		Status:    EventStatusDenied,
		Kind:      string(rej.Kind),
		Message:   rej.Message,
	}
	if rej.Kind == accesserr.KindUnavailable {
		event.Status = EventStatusFailure
	}
	for _, f := range rej.Failures {
		event.Fields = append(event.Fields, f.Field)
	}
	return event
}
