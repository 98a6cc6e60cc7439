// Package engine correlates raw manager-protocol events into per-extension
// call state and republishes it: store updates, status artifact writes and
// bus notifications.
package engine

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/callwatch/internal/ami"
	"github.com/sweeney/callwatch/internal/call"
	"github.com/sweeney/callwatch/internal/notify"
	"github.com/sweeney/callwatch/internal/status"
	"github.com/sweeney/callwatch/internal/store"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// StatusWriter is where call snapshots go. *status.Publisher satisfies it.
type StatusWriter interface {
	Publish(status.Snapshot) error
}

const (
	defaultInboundMarker = "from-pstn"
	defaultLookback      = time.Hour
)

// Engine classifies decoded events into call lifecycle transitions.
// Events arrive from a single transport in order; queries may come from
// any goroutine.
type Engine struct {
	store         store.Store
	bus           *notify.Bus
	status        StatusWriter // nil when the status artifact is disabled
	clock         Clock
	inboundMarker string
	lookback      time.Duration

	mu   sync.Mutex
	open map[string]call.Record // extension -> open call
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithStatusWriter sets the status artifact destination.
func WithStatusWriter(w StatusWriter) Option {
	return func(e *Engine) { e.status = w }
}

// WithInboundContext sets the context marker identifying externally
// originated calls.
func WithInboundContext(marker string) Option {
	return func(e *Engine) { e.inboundMarker = marker }
}

// WithLookback bounds the call-history window used to resolve Hangup
// and Bridge events to a tracked call.
func WithLookback(d time.Duration) Option {
	return func(e *Engine) { e.lookback = d }
}

// New creates an Engine publishing to bus and persisting through st.
func New(st store.Store, bus *notify.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:         st,
		bus:           bus,
		clock:         time.Now,
		inboundMarker: defaultInboundMarker,
		lookback:      defaultLookback,
		open:          map[string]call.Record{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process ingests one decoded event. Failures never escape: a bad block
// is dropped and the stream continues.
func (e *Engine) Process(evt ami.Event) {
	switch strings.ToLower(evt.Type()) {
	case "newexten":
		e.handleNewExten(evt)
	case "hangup":
		e.handleHangup(evt)
	case "bridge", "link":
		e.handleBridge(evt)
	}
}

func (e *Engine) handleNewExten(evt ami.Event) {
	exten := evt.Get("Exten")
	context := evt.Get("Context")
	if exten == "" || context == "" {
		log.Printf("dropping NewExten without Exten/Context")
		return
	}
	caller := evt.Get("CallerID")
	if caller == "" {
		caller = "Unknown"
	}
	dir := call.Outgoing
	if strings.Contains(context, e.inboundMarker) {
		dir = call.Incoming
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.open[exten]; ok {
		log.Printf("correlation miss: extension %s already has open call %s", exten, cur.ID)
		return
	}
	e.openLocked(call.NewRecord(exten, caller, dir, e.clock()))
}

// openLocked registers a new ringing call: user live status, persistence,
// index, artifact, notification. A persistence failure is logged and the
// notification still fires so in-memory consumers stay current.
func (e *Engine) openLocked(rec call.Record) {
	if u, err := e.store.GetUserByExtension(rec.Extension); err != nil {
		log.Printf("user lookup for %s: %v", rec.Extension, err)
	} else if u != nil {
		rec.UserID = u.ID
		u.Status = call.StatusRinging
		if err := e.store.UpdateUser(u); err != nil {
			log.Printf("updating user %s: %v", u.ID, err)
		}
	}
	if err := e.store.AddCall(&rec); err != nil {
		log.Printf("persisting call %s: %v", rec.ID, err)
	}
	e.open[rec.Extension] = rec
	e.publishStatus(rec)
	e.bus.Publish(notify.Notification{Kind: notify.CallReceived, Call: rec, Timestamp: rec.Start})
}

func (e *Engine) handleHangup(evt ami.Event) {
	channel := evt.Get("Channel")
	if channel == "" {
		log.Printf("dropping Hangup without Channel")
		return
	}
	ext := call.ExtensionFromChannel(channel)

	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.findRecentLocked(ext, func(r call.Record) bool {
		return r.Status != call.StatusOffline
	})
	if !ok {
		log.Printf("correlation miss: no open call for extension %s on hangup", ext)
		return
	}
	e.endLocked(rec)
}

// endLocked closes a tracked call.
func (e *Engine) endLocked(rec call.Record) {
	now := e.clock()
	rec.End = now
	if rec.Status == call.StatusRinging && rec.Direction == call.Incoming {
		rec.Direction = call.Missed
	}
	rec.Status = call.StatusOffline
	rec.Duration = now.Sub(rec.Start).Truncate(time.Second)
	if err := e.store.UpdateCall(&rec); err != nil {
		log.Printf("persisting hangup for call %s: %v", rec.ID, err)
	}
	e.setUserStatusLocked(rec.Extension, call.StatusIdle)
	delete(e.open, rec.Extension)
	e.publishStatus(rec)
	e.bus.Publish(notify.Notification{Kind: notify.CallEnded, Call: rec, Timestamp: now})
}

func (e *Engine) handleBridge(evt ami.Event) {
	channel := evt.Get("Channel1")
	if channel == "" {
		channel = evt.Get("Channel")
	}
	if channel == "" {
		log.Printf("dropping Bridge without Channel1/Channel")
		return
	}
	ext := call.ExtensionFromChannel(channel)

	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.findRecentLocked(ext, func(r call.Record) bool {
		return r.Status == call.StatusRinging
	})
	if !ok {
		log.Printf("correlation miss: no ringing call for extension %s on bridge", ext)
		return
	}
	e.answerLocked(rec)
}

// answerLocked marks a ringing call as connected.
func (e *Engine) answerLocked(rec call.Record) {
	now := e.clock()
	rec.Status = call.StatusOnCall
	if err := e.store.UpdateCall(&rec); err != nil {
		log.Printf("persisting answer for call %s: %v", rec.ID, err)
	}
	e.setUserStatusLocked(rec.Extension, call.StatusOnCall)
	e.open[rec.Extension] = rec
	e.publishStatus(rec)
	e.bus.Publish(notify.Notification{Kind: notify.CallAnswered, Call: rec, Timestamp: now})
}

// findRecentLocked resolves an extension to its most recent call matching
// pred, within the lookback window, through the store's call history.
// When the store is unavailable the in-memory index answers instead.
func (e *Engine) findRecentLocked(ext string, pred func(call.Record) bool) (call.Record, bool) {
	now := e.clock()
	recs, err := e.store.GetUserCalls(ext, now.Add(-e.lookback), now)
	if err != nil {
		log.Printf("call history lookup for %s: %v", ext, err)
		if rec, ok := e.open[ext]; ok && pred(rec) {
			return rec, true
		}
		return call.Record{}, false
	}
	for _, rec := range recs {
		if pred(rec) {
			return rec, true
		}
	}
	return call.Record{}, false
}

func (e *Engine) setUserStatusLocked(ext string, st call.Status) {
	u, err := e.store.GetUserByExtension(ext)
	if err != nil {
		log.Printf("user lookup for %s: %v", ext, err)
		return
	}
	if u == nil {
		return
	}
	u.Status = st
	if err := e.store.UpdateUser(u); err != nil {
		log.Printf("updating user %s: %v", u.ID, err)
	}
}

func (e *Engine) publishStatus(rec call.Record) {
	if e.status == nil {
		return
	}
	snap := status.Snapshot{
		CallerID:  rec.CallerID,
		Extension: rec.Extension,
		Status:    string(rec.Status),
		Timestamp: e.clock(),
		CallID:    rec.ID,
		Duration:  int64(rec.Duration / time.Second),
	}
	if err := e.status.Publish(snap); err != nil {
		log.Printf("writing status artifact: %v", err)
	}
}

// OpenCalls returns a copy of every currently open call.
func (e *Engine) OpenCalls() []call.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := make([]call.Record, 0, len(e.open))
	for _, rec := range e.open {
		recs = append(recs, rec)
	}
	return recs
}

// OpenCall returns the open call for an extension, if any.
func (e *Engine) OpenCall(ext string) (call.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.open[ext]
	return rec, ok
}

// newCallID is split out so the remote-sync path can reuse snapshot call
// ids when the switch provides them.
func newCallID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
