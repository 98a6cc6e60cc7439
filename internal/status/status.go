// Package status publishes the transient call-status artifact: a small
// JSON file external processes read instead of querying the engine.
package status

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot is the point-in-time call state written to the artifact.
type Snapshot struct {
	CallerID  string    `json:"callerId"`
	Extension string    `json:"extension"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	CallID    string    `json:"callId"`
	Duration  int64     `json:"duration"` // seconds
}

// Publisher overwrites the artifact on each status change and expires
// it after ttl. Writes are temp-file-plus-rename so a concurrent
// reader never sees a half-written document.
type Publisher struct {
	path string
	ttl  time.Duration

	mu     sync.Mutex
	last   []byte
	timers map[int]*time.Timer
	nextID int
	closed bool
}

// NewPublisher creates a Publisher for the artifact at path.
func NewPublisher(path string, ttl time.Duration) *Publisher {
	return &Publisher{
		path:   path,
		ttl:    ttl,
		timers: map[int]*time.Timer{},
	}
}

// Publish overwrites the artifact with snap and schedules its expiry.
// A payload identical to the last write is a no-op: the file is left
// alone and no new deletion is scheduled, so a pending expiry is never
// shortened by a repeat of the same event.
func (p *Publisher) Publish(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("status publisher closed")
	}
	if bytes.Equal(data, p.last) {
		return nil
	}
	if err := writeAtomic(p.path, data); err != nil {
		return err
	}
	p.last = data

	// Each write gets its own deletion. The delete only checks that the
	// file still exists, so a stale deletion can remove a newer write
	// within the ttl window; accepted, the next event rewrites it.
	id := p.nextID
	p.nextID++
	p.timers[id] = time.AfterFunc(p.ttl, func() { p.expire(id) })
	return nil
}

func (p *Publisher) expire(id int) {
	p.mu.Lock()
	delete(p.timers, id)
	p.last = nil
	p.mu.Unlock()
	removeIfExists(p.path)
}

// Close cancels every pending expiry and removes the artifact.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()
	return removeIfExists(p.path)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("creating status temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing status temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing status file: %w", err)
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing status file: %w", err)
	}
	return nil
}
