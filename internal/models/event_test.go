package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func decode(t *testing.T, body string) EventIngestRequest {
	t.Helper()
	var req EventIngestRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return req
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		body  string
		field string
	}{
		{`{"event_type":"x","timestamp":1}`, "user_id"},
		{`{"user_id":1,"timestamp":1}`, "event_type"},
		{`{"user_id":1,"event_type":"x"}`, "timestamp"},
		{`{"user_id":1,"event_type":"","timestamp":1}`, "event_type"},
		{`{}`, "user_id"},
	}

	for _, tt := range tests {
		_, err := decode(t, tt.body).Validate()

		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tt.body, err)
		}
		if verr.Field != tt.field {
			t.Fatalf("%s: expected field %q, got %q", tt.body, tt.field, verr.Field)
		}
	}
}

func TestValidateZeroValuesArePresent(t *testing.T) {
	ev, err := decode(t, `{"user_id":0,"event_type":"login","timestamp":0}`).Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ev.UserID != 0 || ev.Timestamp != 0 || ev.EventType != "login" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Payload == nil {
		t.Fatal("payload should default to an empty map")
	}
}

func TestValidateKeepsPayload(t *testing.T) {
	ev, err := decode(t, `{"user_id":42,"event_type":"page_view","timestamp":1690000000,"payload":{"url":"/test"}}`).Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ev.Payload["url"] != "/test" {
		t.Fatalf("payload lost: %+v", ev.Payload)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	if got := (&ValidationError{Field: "user_id"}).Error(); got != "missing required field: user_id" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := (&ValidationError{Field: "event_type", Reason: "must not be empty"}).Error(); got != "event_type must not be empty" {
		t.Fatalf("unexpected message %q", got)
	}
}
