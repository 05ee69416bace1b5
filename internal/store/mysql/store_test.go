package mysql

import (
	"strconv"
	"testing"
	"time"

	"usersync/internal/event"
	"usersync/internal/sync"
)

func TestDeriveKey_StableAndNonNegative(t *testing.T) {
	s := &Store{}

	k1 := s.DeriveKey("550e8400-e29b-41d4-a716-446655440000")
	k2 := s.DeriveKey("550e8400-e29b-41d4-a716-446655440000")
	if k1 != k2 {
		t.Errorf("Key derivation must be deterministic: %s != %s", k1, k2)
	}

	if k1 == s.DeriveKey("some-other-id") {
		t.Error("Different aggregate ids should not collide on trivial inputs")
	}

	for _, id := range []string{"u1", "", "550e8400-e29b-41d4-a716-446655440000"} {
		n, err := strconv.ParseInt(s.DeriveKey(id), 10, 64)
		if err != nil {
			t.Fatalf("Derived key must be a decimal int64: %v", err)
		}
		if n < 0 {
			t.Errorf("Derived key for %q is negative: %d", id, n)
		}
	}
}

func TestProjector_Project(t *testing.T) {
	p := Projector{Source: "user-management-service", SchemaVersion: "1.0"}

	ev := &event.CanonicalEvent{
		EventID:   "e1",
		Type:      event.TypeUpdated,
		Timestamp: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
		Email:     "ann@x.com",
		FullName:  "Ann Lee Park",
		Roles:     []string{"ADMIN"},
		Status:    "DISABLED",
	}

	rec, err := p.Project(ev, nil)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	if rec.Username != "ann@x.com" {
		t.Errorf("Email doubles as username in this schema, got %q", rec.Username)
	}
	if rec.FirstName != "Ann" || rec.LastName != "Lee Park" {
		t.Errorf("Expected Ann / Lee Park, got %q / %q", rec.FirstName, rec.LastName)
	}
	if rec.Active {
		t.Error("DISABLED status must project to inactive")
	}
	if rec.SyncStatus != sync.StatusSynced {
		t.Errorf("Expected SYNCED, got %s", rec.SyncStatus)
	}
	if rec.LastEventType != "UserUpdatedEvent" {
		t.Errorf("Unexpected provenance event type %q", rec.LastEventType)
	}
}
