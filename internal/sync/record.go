package sync

import (
	"context"
	"time"
)

// Status is the operational state of a replica record. It is distinct
// from the domain user status carried by the event.
const (
	StatusSynced  = "SYNCED"
	StatusPending = "PENDING"
	StatusError   = "ERROR"
	StatusDeleted = "DELETED"
)

// Record is the canonical replica row. Each store persists the subset
// of fields its schema carries; fields a projector leaves empty are
// stored as null/empty, never fabricated.
type Record struct {
	// Key is the store's natural key, derived deterministically from
	// the event's aggregate id by the store's DeriveKey.
	Key string

	Email      string
	Username   string
	FirstName  string
	LastName   string
	FullName   string
	Role       string // comma-joined roles
	StatusCode string // constrained per-store status vocabulary
	Active     bool
	Metadata   string // serialized event metadata, persisted verbatim

	SyncStatus    string
	LastEventID   string
	LastEventType string
	Source        string
	SchemaVersion string

	// EventTimestamp is the source-asserted change time.
	EventTimestamp time.Time

	// Replica-local audit timestamps, set by the store layer.
	SyncCreatedAt time.Time
	SyncUpdatedAt time.Time
}

// Provenance identifies the event that caused a state transition.
type Provenance struct {
	EventID   string
	EventType string
}

// Stats is a point-in-time record count summary for one store.
type Stats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// RecordStore is the persisted replica abstraction. All three backends
// implement the same contract over different storage engines.
//
// Upsert must be a single logical read-modify-write per key: concurrent
// upserts for the same key must not lose writes. FindByKey returns
// (nil, nil) when no record exists.
type RecordStore interface {
	DeriveKey(aggregateID string) string
	FindByKey(ctx context.Context, key string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	MarkDeleted(ctx context.Context, key string, prov Provenance) error
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
