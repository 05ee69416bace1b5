package sync

import (
	"context"
	"testing"

	"usersync/internal/event"
)

func TestResolve_DispositionTable(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		evType   event.Type
		existing bool
		want     Disposition
	}{
		{"created, unseen key", event.TypeCreated, false, DispositionInsert},
		{"created, existing record", event.TypeCreated, true, DispositionUpdate},
		{"updated, existing record", event.TypeUpdated, true, DispositionUpdate},
		{"updated, unseen key", event.TypeUpdated, false, DispositionInsert},
		{"deleted, existing record", event.TypeDeleted, true, DispositionMarkDeleted},
		{"deleted, unseen key", event.TypeDeleted, false, DispositionNoop},
		{"unknown type", event.TypeUnknown, true, DispositionNoop},
	}

	for _, tc := range cases {
		store := newMemStore()
		if tc.existing {
			store.records["u1"] = &Record{Key: "u1", SyncStatus: StatusSynced}
		}

		res, err := Resolve(ctx, store, &event.CanonicalEvent{Type: tc.evType, AggregateID: "u1"})
		if err != nil {
			t.Fatalf("%s: Resolve failed: %v", tc.name, err)
		}
		if res.Disposition != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, res.Disposition)
		}
		if res.Key != "u1" {
			t.Errorf("%s: expected derived key u1, got %s", tc.name, res.Key)
		}
	}
}

func TestResolve_UnknownTypeSkipsLookup(t *testing.T) {
	store := newMemStore()
	_, err := Resolve(context.Background(), store, &event.CanonicalEvent{
		Type:        event.TypeUnknown,
		AggregateID: "u1",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if store.findCalls != 0 {
		t.Errorf("Unknown events should not hit the store, got %d lookups", store.findCalls)
	}
}

func TestResolve_ExistingRecordReturned(t *testing.T) {
	store := newMemStore()
	store.records["u1"] = &Record{Key: "u1", Email: "a@x.com"}

	res, err := Resolve(context.Background(), store, &event.CanonicalEvent{
		Type:        event.TypeUpdated,
		AggregateID: "u1",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Existing == nil || res.Existing.Email != "a@x.com" {
		t.Errorf("Expected existing record to be returned, got %+v", res.Existing)
	}
}
