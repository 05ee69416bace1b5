package redisdoc

import (
	"usersync/internal/event"
	"usersync/internal/sync"
)

// Projector shapes canonical events for the document schema: both the
// split and combined names are kept, and the username is derived from
// the email local part.
type Projector struct {
	Source        string
	SchemaVersion string
}

func (p Projector) Project(ev *event.CanonicalEvent, existing *sync.Record) (*sync.Record, error) {
	first, last := sync.SplitName(ev.FullName)
	return &sync.Record{
		Email:          ev.Email,
		Username:       sync.UsernameFromEmail(ev.Email),
		FirstName:      first,
		LastName:       last,
		FullName:       ev.FullName,
		Role:           sync.JoinRoles(ev.Roles),
		Active:         sync.ActiveFromStatus(ev.Status),
		Metadata:       sync.SerializeMetadata(ev.Metadata),
		SyncStatus:     sync.StatusSynced,
		LastEventID:    ev.EventID,
		LastEventType:  ev.Type.String(),
		Source:         p.Source,
		SchemaVersion:  p.SchemaVersion,
		EventTimestamp: ev.Timestamp,
	}, nil
}
