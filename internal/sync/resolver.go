package sync

import (
	"context"
	"fmt"

	"usersync/internal/event"
)

// Disposition is the resolved action for one event against one store's
// current state.
type Disposition int

const (
	DispositionNoop Disposition = iota
	DispositionInsert
	DispositionUpdate
	DispositionMarkDeleted
)

func (d Disposition) String() string {
	switch d {
	case DispositionInsert:
		return "insert"
	case DispositionUpdate:
		return "update"
	case DispositionMarkDeleted:
		return "mark-deleted"
	default:
		return "noop"
	}
}

// Resolution pairs a disposition with the derived key and whatever
// record already exists for it.
type Resolution struct {
	Disposition Disposition
	Key         string
	Existing    *Record
}

// Resolve derives the store's natural key for the event and decides the
// disposition against existing state. The lookup-before-insert is what
// enforces the one-record-per-key invariant; duplicate deliveries and
// out-of-order arrivals degrade to updates and inserts rather than
// errors.
func Resolve(ctx context.Context, store RecordStore, ev *event.CanonicalEvent) (Resolution, error) {
	res := Resolution{Key: store.DeriveKey(ev.AggregateID)}

	if ev.Type == event.TypeUnknown {
		return res, nil
	}

	existing, err := store.FindByKey(ctx, res.Key)
	if err != nil {
		return res, fmt.Errorf("lookup for key %s: %w", res.Key, err)
	}
	res.Existing = existing

	switch ev.Type {
	case event.TypeCreated:
		if existing == nil {
			res.Disposition = DispositionInsert
		} else {
			// Idempotent replay or create/update race: update in place.
			res.Disposition = DispositionUpdate
		}
	case event.TypeUpdated:
		if existing == nil {
			// Update before its create: treat as the de-facto create.
			res.Disposition = DispositionInsert
		} else {
			res.Disposition = DispositionUpdate
		}
	case event.TypeDeleted:
		if existing != nil {
			res.Disposition = DispositionMarkDeleted
		}
	}

	return res, nil
}
