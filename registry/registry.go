// Package registry is the event-ID-to-name lookup spec.md calls a
// "trivial" external collaborator: a small compile-time table mapping a
// UUID event ID to a human-readable label, used by anything that wants
// to print a cached or queued event in a log or dashboard. Grounded on
// original_source/eosmetrics/emtr-event-types.c's emtr_event_id_to_name
// (static array of UUID/label pairs, same two-sentinel error shape).
package registry

import "github.com/google/uuid"

// InvalidEventLabel is returned when the given string does not even
// parse as a UUID.
const InvalidEventLabel = "(invalid event)"

// UnknownEventLabel is returned when the string parses as a UUID but
// isn't in the table.
const UnknownEventLabel = "(unknown event)"

// descriptions mirrors emtr-event-types.c's event_descriptions array.
// The table is intentionally small and static — new event types are
// registered here, not discovered at runtime.
var descriptions = map[uuid.UUID]string{
	uuid.MustParse("005096c8-7873-4c0d-a2ae-0a0c8f2ce3fe"): "User is logged in",
	uuid.MustParse("5b2c3b81-33e1-46e1-a54a-b7a983567cd5"): "Network status changed",
	uuid.MustParse("b89d3c6a-b27b-48b6-89b2-bb1e848e1f0b"): "Shell app is open",
	uuid.MustParse("2d6cf20b-a2e8-443e-9cc1-e7ee4c8a7a6b"): "Social bar is visible",
	uuid.MustParse("1c36d97c-b7bb-4bb8-9a8a-a9ee1cbd3eab"): "Shell app added",
	uuid.MustParse("edfd4e4d-9275-41e8-a5b3-b8dd4e8b27e8"): "Shell app removed",
}

// EventName looks up eventID's human-readable name. ok is false if
// eventID doesn't parse as a UUID (name is InvalidEventLabel) or parses
// but isn't registered (name is UnknownEventLabel).
func EventName(eventID string) (name string, ok bool) {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return InvalidEventLabel, false
	}

	if name, found := descriptions[id]; found {
		return name, true
	}
	return UnknownEventLabel, false
}
