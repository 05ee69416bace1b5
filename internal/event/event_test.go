package event

import (
	"errors"
	"testing"
	"time"
)

func TestDecode_CreatedEvent(t *testing.T) {
	payload := []byte(`{
		"eventId": "e1",
		"eventType": "UserCreatedEvent",
		"aggregateId": "u1",
		"timestamp": "2024-01-05T10:00:00",
		"email": "a@x.com",
		"name": "Ann Lee",
		"roles": ["ADMIN"],
		"status": "ACTIVE",
		"metadata": {"origin": "signup"}
	}`)

	ev, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if ev.Type != TypeCreated {
		t.Errorf("Expected TypeCreated, got %v", ev.Type)
	}
	if ev.AggregateID != "u1" {
		t.Errorf("Expected aggregate id u1, got %s", ev.AggregateID)
	}
	if ev.Email != "a@x.com" || ev.FullName != "Ann Lee" || ev.Status != "ACTIVE" {
		t.Errorf("Unexpected payload fields: %+v", ev)
	}
	if len(ev.Roles) != 1 || ev.Roles[0] != "ADMIN" {
		t.Errorf("Expected roles [ADMIN], got %v", ev.Roles)
	}
	if ev.TimestampInferred {
		t.Error("Timestamp should not be inferred for a parsable value")
	}
	if ev.Metadata["origin"] != "signup" {
		t.Errorf("Expected metadata to survive decoding, got %v", ev.Metadata)
	}
}

func TestDecode_TimestampShapes(t *testing.T) {
	want := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	payloads := map[string][]byte{
		"iso string":      []byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":"2024-01-05T10:00:00"}`),
		"component array": []byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":[2024,1,5,10,0,0]}`),
		"epoch seconds":   []byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":1704448800}`),
		"epoch millis":    []byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":1704448800000}`),
	}

	for name, payload := range payloads {
		ev, err := Decode(payload)
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", name, err)
		}
		if ev.TimestampInferred {
			t.Errorf("%s: timestamp should not be inferred", name)
		}
		if !ev.Timestamp.Equal(want) {
			t.Errorf("%s: expected %v, got %v", name, want, ev.Timestamp)
		}
	}
}

func TestDecode_FractionalEpochTimestamps(t *testing.T) {
	want := time.Date(2024, 1, 5, 10, 0, 0, 500_000_000, time.UTC)

	payloads := map[string][]byte{
		"fractional seconds": []byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":1704448800.5}`),
		"fractional millis":  []byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":1704448800500}`),
	}

	for name, payload := range payloads {
		ev, err := Decode(payload)
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", name, err)
		}
		if !ev.Timestamp.Equal(want) {
			t.Errorf("%s: expected %v, got %v", name, want, ev.Timestamp)
		}
	}
}

func TestDecode_TimestampFallback(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	for _, payload := range [][]byte{
		[]byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1"}`),
		[]byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":"not-a-time"}`),
		[]byte(`{"eventType":"UserCreatedEvent","aggregateId":"u1","timestamp":[2024,1]}`),
	} {
		ev, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !ev.TimestampInferred {
			t.Errorf("Expected inferred timestamp for payload %s", payload)
		}
		if !ev.Timestamp.Equal(now) {
			t.Errorf("Expected ingestion time fallback, got %v", ev.Timestamp)
		}
	}
}

func TestDecode_RolesShapes(t *testing.T) {
	fromList, err := Decode([]byte(`{"eventType":"UserUpdatedEvent","aggregateId":"u1","roles":["ADMIN","DOCTOR","ADMIN"]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	fromString, err := Decode([]byte(`{"eventType":"UserUpdatedEvent","aggregateId":"u1","roles":"ADMIN, DOCTOR"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for _, ev := range []*CanonicalEvent{fromList, fromString} {
		if len(ev.Roles) != 2 || ev.Roles[0] != "ADMIN" || ev.Roles[1] != "DOCTOR" {
			t.Errorf("Expected roles [ADMIN DOCTOR], got %v", ev.Roles)
		}
	}
}

func TestDecode_InvalidEnvelopes(t *testing.T) {
	cases := map[string][]byte{
		"missing eventType":   []byte(`{"aggregateId":"u1"}`),
		"missing aggregateId": []byte(`{"eventType":"UserCreatedEvent"}`),
		"malformed JSON":      []byte(`{not json`),
	}

	for name, payload := range cases {
		_, err := Decode(payload)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("%s: expected DecodeError, got %v", name, err)
		}
	}
}

func TestDecode_UserIDFallback(t *testing.T) {
	ev, err := Decode([]byte(`{"eventType":"UserDeletedEvent","userId":"u9"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.AggregateID != "u9" {
		t.Errorf("Expected aggregate id from userId, got %s", ev.AggregateID)
	}
	if ev.Type != TypeDeleted {
		t.Errorf("Expected TypeDeleted, got %v", ev.Type)
	}
}

func TestDecode_UnknownTypeAndFields(t *testing.T) {
	ev, err := Decode([]byte(`{"eventType":"UserPasswordChangedEvent","aggregateId":"u1","surprise":true}`))
	if err != nil {
		t.Fatalf("Unknown fields and types must not fail decoding: %v", err)
	}
	if ev.Type != TypeUnknown {
		t.Errorf("Expected TypeUnknown, got %v", ev.Type)
	}
}
