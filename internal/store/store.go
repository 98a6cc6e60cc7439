// Package store is the persistence port for calls and users. The engine
// only consumes this interface; schema and storage belong to the adapter.
package store

import (
	"time"

	"github.com/sweeney/callwatch/internal/call"
)

// Store persists call records and user live status.
type Store interface {
	// AddCall inserts a new call record.
	AddCall(rec *call.Record) error
	// UpdateCall replaces the stored record with the same id.
	UpdateCall(rec *call.Record) error
	// GetUserByExtension returns the user owning an extension, or
	// (nil, nil) when no user owns it.
	GetUserByExtension(extension string) (*call.User, error)
	// GetUserCalls returns calls started within [start, end], newest
	// first. An empty extension matches all extensions.
	GetUserCalls(extension string, start, end time.Time) ([]call.Record, error)
	// UpdateUser replaces the stored user with the same id.
	UpdateUser(u *call.User) error
}
