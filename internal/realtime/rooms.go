package realtime

import (
	"regexp"
	"strings"
)

// Room name patterns. Anything outside this set is rejected with
// INVALID_ROOM.
const (
	RoomSystemStatus = "system-status"
	RoomIncidents    = "incidents"

	incidentRoomPrefix = "incident-"
	uptimeRoomPrefix   = "uptime-"
)

var (
	incidentRoomRe = regexp.MustCompile(`^incident-[A-Za-z0-9][A-Za-z0-9-]*$`)
	uptimeRoomRe   = regexp.MustCompile(`^uptime-[a-z0-9][a-z0-9-]*$`)
)

// ValidRoom reports whether name matches a known room pattern.
func ValidRoom(name string) bool {
	switch name {
	case RoomSystemStatus, RoomIncidents:
		return true
	}
	return incidentRoomRe.MatchString(name) || uptimeRoomRe.MatchString(name)
}

// IncidentRoom returns the room name for an incident.
func IncidentRoom(incidentID string) string {
	return incidentRoomPrefix + incidentID
}

// UptimeRoom returns the per-service uptime room name.
func UptimeRoom(serviceID string) string {
	return uptimeRoomPrefix + serviceID
}

// incidentIDFromRoom extracts the incident id from an incident room name,
// or "" when the room is not incident-scoped.
func incidentIDFromRoom(room string) string {
	if room == RoomIncidents || !strings.HasPrefix(room, incidentRoomPrefix) {
		return ""
	}
	return strings.TrimPrefix(room, incidentRoomPrefix)
}
