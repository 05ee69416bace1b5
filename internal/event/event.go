package event

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Type classifies a user lifecycle event.
type Type int

const (
	TypeUnknown Type = iota
	TypeCreated
	TypeUpdated
	TypeDeleted
)

// Wire event type names emitted by the user management service.
const (
	WireCreated = "UserCreatedEvent"
	WireUpdated = "UserUpdatedEvent"
	WireDeleted = "UserDeletedEvent"
)

func (t Type) String() string {
	switch t {
	case TypeCreated:
		return WireCreated
	case TypeUpdated:
		return WireUpdated
	case TypeDeleted:
		return WireDeleted
	default:
		return "Unknown"
	}
}

// CanonicalEvent is the decoded form of a user lifecycle event. It is
// decoded once per message and never mutated afterwards.
type CanonicalEvent struct {
	EventID     string
	Type        Type
	AggregateID string

	// Timestamp is the point in time the source asserts the change
	// occurred. When the wire value cannot be parsed the decoder
	// substitutes ingestion time and sets TimestampInferred.
	Timestamp         time.Time
	TimestampInferred bool

	Email          string
	FullName       string
	Roles          []string
	Status         string
	PreviousStatus string
	Metadata       map[string]interface{}
}

// DecodeError marks a payload that can never be processed. The caller
// must acknowledge and drop the message.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid event envelope: %s", e.Reason)
}

// timeNow is swapped out in tests to pin the ingestion-time fallback.
var timeNow = time.Now

// Decode turns a raw broker payload into a CanonicalEvent. Unknown
// fields are ignored. Missing eventType or aggregateId is a DecodeError;
// everything else is tolerated.
func Decode(payload []byte) (*CanonicalEvent, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	wireType := stringField(raw, "eventType")
	if wireType == "" {
		return nil, &DecodeError{Reason: "missing eventType"}
	}

	// The producer emits aggregateId and userId with the same value;
	// older envelopes only carry userId.
	aggregateID := stringField(raw, "aggregateId")
	if aggregateID == "" {
		aggregateID = stringField(raw, "userId")
	}
	if aggregateID == "" {
		return nil, &DecodeError{Reason: "missing aggregateId"}
	}

	ev := &CanonicalEvent{
		EventID:        stringField(raw, "eventId"),
		Type:           typeFromWire(wireType),
		AggregateID:    aggregateID,
		Email:          stringField(raw, "email"),
		FullName:       stringField(raw, "name"),
		Status:         stringField(raw, "status"),
		PreviousStatus: stringField(raw, "previousStatus"),
		Roles:          rolesField(raw["roles"]),
	}

	if md, ok := raw["metadata"].(map[string]interface{}); ok {
		ev.Metadata = md
	}

	ts, ok := parseTimestamp(raw["timestamp"])
	if !ok {
		ts = timeNow()
		ev.TimestampInferred = true
	}
	ev.Timestamp = ts

	return ev, nil
}

func typeFromWire(s string) Type {
	switch s {
	case WireCreated:
		return TypeCreated
	case WireUpdated:
		return TypeUpdated
	case WireDeleted:
		return TypeDeleted
	default:
		return TypeUnknown
	}
}

func stringField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

// rolesField normalizes the roles value, which may arrive as a JSON
// array or as a comma-joined string, into a deduplicated slice.
func rolesField(v interface{}) []string {
	var parts []string
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = strings.Split(t, ",")
	default:
		return nil
	}

	seen := make(map[string]bool, len(parts))
	var roles []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		roles = append(roles, p)
	}
	return roles
}

// parseTimestamp accepts the three wire shapes the producer has emitted
// over time: epoch number, ISO-8601 string, and the serializer's numeric
// component array [year, month, day, hour, minute, second, nanos].
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		// Heuristic: values this large are epoch milliseconds. The
		// fractional part carries sub-second precision either way.
		if t > 1e12 {
			t /= 1000
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case []interface{}:
		return parseComponentArray(t)
	default:
		return time.Time{}, false
	}
}

func parseComponentArray(arr []interface{}) (time.Time, bool) {
	if len(arr) < 6 {
		return time.Time{}, false
	}
	comps := make([]int, 0, 7)
	for _, item := range arr {
		f, ok := item.(float64)
		if !ok {
			return time.Time{}, false
		}
		comps = append(comps, int(f))
	}
	nanos := 0
	if len(comps) > 6 {
		nanos = comps[6]
	}
	return time.Date(comps[0], time.Month(comps[1]), comps[2],
		comps[3], comps[4], comps[5], nanos, time.UTC), true
}
