package sync

import (
	"encoding/json"
	"log"
	"strings"

	"usersync/internal/event"
)

// Projector maps a canonical event into one store's persisted shape.
// existing is the record currently at the key, or nil on first insert;
// implementations overwrite profile fields and preserve replica-local
// creation audit.
type Projector interface {
	Project(ev *event.CanonicalEvent, existing *Record) (*Record, error)
}

// SplitName applies the best-effort display-name heuristic: first token
// becomes the first name, the remainder the last name (empty if none).
func SplitName(name string) (first, last string) {
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// JoinRoles flattens the role set into the comma-joined column form.
func JoinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// ActiveFromStatus projects the domain status onto the active flag.
// Only a disabled status deactivates; unrecognized statuses default to
// active.
func ActiveFromStatus(status string) bool {
	return !strings.EqualFold(status, "DISABLED")
}

// SerializeMetadata renders the opaque metadata map for verbatim
// persistence. Metadata is audit payload: it is stored, never
// interpreted, and serialization failures degrade to an empty object
// rather than failing the event. The empty object keeps a failed
// serialization distinguishable from an event that carried no metadata.
func SerializeMetadata(md map[string]interface{}) string {
	if len(md) == 0 {
		return ""
	}
	data, err := json.Marshal(md)
	if err != nil {
		log.Printf("failed to serialize event metadata: %v", err)
		return "{}"
	}
	return string(data)
}

// UsernameFromEmail derives a username from the email local part.
func UsernameFromEmail(email string) string {
	if email == "" {
		return ""
	}
	return strings.SplitN(email, "@", 2)[0]
}
