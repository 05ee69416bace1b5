package postgres

import (
	"usersync/internal/event"
	"usersync/internal/sync"
)

// statusCodes maps the domain's free-form status onto this schema's
// CHAR(1) vocabulary. Unrecognized statuses map to unknown rather than
// failing.
var statusCodes = map[string]string{
	"ACTIVE":               "A",
	"INACTIVE":             "I",
	"DISABLED":             "D",
	"PENDING_VERIFICATION": "P",
}

const statusCodeUnknown = "U"

// StatusCode resolves the schema's constrained status code for a
// domain status.
func StatusCode(status string) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return statusCodeUnknown
}

// Projector shapes canonical events for the PostgreSQL schema: the
// full display name is kept intact and the domain status collapses to
// a single-char code.
type Projector struct {
	Source        string
	SchemaVersion string
}

func (p Projector) Project(ev *event.CanonicalEvent, existing *sync.Record) (*sync.Record, error) {
	return &sync.Record{
		Email:          ev.Email,
		FullName:       ev.FullName,
		StatusCode:     StatusCode(ev.Status),
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
