package models

import "fmt"

// EventIngestRequest is the POST /api/v1/event payload.
// Pointer fields distinguish a missing value from a zero value.
type EventIngestRequest struct {
	UserID    *int64         `json:"user_id"`
	EventType *string        `json:"event_type"`
	Timestamp *int64         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventIngestResponse is returned by POST /api/v1/event.
type EventIngestResponse struct {
	Status string `json:"status"`
}

// StatsResponse is returned by GET /api/v1/stats/:event_type.
type StatsResponse struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// Event is one validated ingestion record. Timestamp is seconds since epoch
// as supplied by the caller and is not trusted for ordering.
type Event struct {
	UserID    int64
	EventType string
	Timestamp int64
	Payload   map[string]any
}

// ValidationError names the request field that made an event unacceptable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required field: %s", e.Field)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Validate checks required fields in declaration order and returns the Event.
func (r EventIngestRequest) Validate() (Event, error) {
	if r.UserID == nil {
		return Event{}, &ValidationError{Field: "user_id"}
	}
	if r.EventType == nil {
		return Event{}, &ValidationError{Field: "event_type"}
	}
	if *r.EventType == "" {
		return Event{}, &ValidationError{Field: "event_type", Reason: "must not be empty"}
	}
	if r.Timestamp == nil {
		return Event{}, &ValidationError{Field: "timestamp"}
	}

	payload := r.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		UserID:    *r.UserID,
		EventType: *r.EventType,
		Timestamp: *r.Timestamp,
		Payload:   payload,
	}, nil
}
