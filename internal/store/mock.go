package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/callwatch/internal/call"
)

// Mock is an in-memory Store that records every write for test
// assertions and supports failure injection.
type Mock struct {
	mu    sync.Mutex
	calls []call.Record
	users map[string]*call.User // keyed by extension
	err   error                 // if set, every operation returns this error
}

// NewMock creates an empty Mock store.
func NewMock() *Mock {
	return &Mock{users: map[string]*call.User{}}
}

// AddUser seeds a user keyed by extension.
func (m *Mock) AddUser(u call.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Status == "" {
		u.Status = call.StatusIdle
	}
	m.users[u.Extension] = &u
}

func (m *Mock) AddCall(rec *call.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, *rec)
	return nil
}

func (m *Mock) UpdateCall(rec *call.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.calls {
		if m.calls[i].ID == rec.ID {
			m.calls[i] = *rec
			return nil
		}
	}
	return fmt.Errorf("updating call %s: not found", rec.ID)
}

func (m *Mock) GetUserByExtension(extension string) (*call.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[extension]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *Mock) GetUserCalls(extension string, start, end time.Time) ([]call.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var recs []call.Record
	// Iterate newest-first; calls are appended in arrival order.
	for i := len(m.calls) - 1; i >= 0; i-- {
		rec := m.calls[i]
		if extension != "" && rec.Extension != extension {
			continue
		}
		if rec.Start.Before(start) || rec.Start.After(end) {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (m *Mock) UpdateUser(u *call.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for ext, existing := range m.users {
		if existing.ID == u.ID {
			cp := *u
			m.users[ext] = &cp
			return nil
		}
	}
	return fmt.Errorf("updating user %s: not found", u.ID)
}

// Calls returns a copy of every stored call record.
func (m *Mock) Calls() []call.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]call.Record, len(m.calls))
	copy(recs, m.calls)
	return recs
}

// User returns the current state of the user owning an extension.
func (m *Mock) User(extension string) (call.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[extension]
	if !ok {
		return call.User{}, false
	}
	return *u, true
}

// SetError causes all subsequent operations to return err.
// Pass nil to clear.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
