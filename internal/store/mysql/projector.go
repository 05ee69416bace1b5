package mysql

import (
	"usersync/internal/event"
	"usersync/internal/sync"
)

// Projector shapes canonical events for the MySQL schema: the display
// name is split into first/last, the email doubles as username, and
// there is no constrained status code column, only the active flag.
type Projector struct {
	Source        string
	SchemaVersion string
}

func (p Projector) Project(ev *event.CanonicalEvent, existing *sync.Record) (*sync.Record, error) {
	first, last := sync.SplitName(ev.FullName)
	return &sync.Record{
		Username:       ev.Email,
		Email:          ev.Email,
		FirstName:      first,
		LastName:       last,
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
