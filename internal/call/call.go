// Package call holds the records the engine correlates: tracked calls and
// the users that own extensions. Records reference each other by id only;
// relationships are resolved through the store.
package call

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction classifies a call relative to the PBX.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
	Internal Direction = "internal"
	Missed   Direction = "missed"
)

// Status is the lifecycle state of a call, and doubles as a user's live
// status (oncall reads as "busy" for a user).
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRinging Status = "ringing"
	StatusOnCall  Status = "oncall"
	StatusOffline Status = "offline"
)

// Record is one tracked call.
type Record struct {
	ID        string
	Extension string
	CallerID  string
	UserID    string // empty when no user owns the extension
	Direction Direction
	Status    Status
	Start     time.Time
	End       time.Time // zero until the call ends
	Duration  time.Duration
}

// User is an operator who owns an extension.
type User struct {
	ID        string
	Name      string
	Extension string
	Status    Status
}

// NewRecord creates a ringing call record with a fresh id.
func NewRecord(extension, callerID string, dir Direction, start time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Extension: extension,
		CallerID:  callerID,
		Direction: dir,
		Status:    StatusRinging,
		Start:     start,
	}
}

// ExtensionFromChannel derives the extension from a channel identifier:
// the prefix up to the first '-' (e.g. "101-00000001" -> "101").
func ExtensionFromChannel(channel string) string {
	if idx := strings.Index(channel, "-"); idx >= 0 {
		return channel[:idx]
	}
	return channel
}
