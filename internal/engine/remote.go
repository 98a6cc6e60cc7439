package engine

import (
	"time"

	"github.com/sweeney/callwatch/internal/call"
)

// RemoteCall is one entry of the switch's HTTP call snapshot, already
// decoded by the polling transport. Status is one of "ringing", "up"
// or "down".
type RemoteCall struct {
	ID        string
	Extension string
	CallerID  string
	Status    string
	Direction string
	Start     time.Time
}

// SyncRemote replays an HTTP snapshot through the same transitions as
// the socket path: an unseen ringing entry opens a call, a tracked call
// reported up is answered, and a tracked call reported down or absent
// from the snapshot is ended.
func (e *Engine) SyncRemote(calls []RemoteCall) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := map[string]bool{}
	for _, rc := range calls {
		if rc.Extension == "" {
			continue
		}
		switch rc.Status {
		case "ringing":
			seen[rc.Extension] = true
			if _, ok := e.open[rc.Extension]; !ok {
				e.openLocked(e.remoteRecord(rc))
			}
		case "up":
			seen[rc.Extension] = true
			rec, ok := e.open[rc.Extension]
			if !ok {
				e.openLocked(e.remoteRecord(rc))
				rec = e.open[rc.Extension]
			}
			if rec.Status == call.StatusRinging {
				e.answerLocked(rec)
			}
		case "down":
			if rec, ok := e.open[rc.Extension]; ok {
				e.endLocked(rec)
			}
		}
	}

	// Anything we track that the snapshot no longer reports has ended.
	var gone []call.Record
	for ext, rec := range e.open {
		if !seen[ext] {
			gone = append(gone, rec)
		}
	}
	for _, rec := range gone {
		e.endLocked(rec)
	}
}

func (e *Engine) remoteRecord(rc RemoteCall) call.Record {
	caller := rc.CallerID
	if caller == "" {
		caller = "Unknown"
	}
	start := rc.Start
	if start.IsZero() {
		start = e.clock()
	}
	rec := call.NewRecord(rc.Extension, caller, remoteDirection(rc.Direction), start)
	rec.ID = newCallID(rc.ID)
	return rec
}

func remoteDirection(dir string) call.Direction {
	switch dir {
	case "incoming":
		return call.Incoming
	case "internal":
		return call.Internal
	default:
		return call.Outgoing
	}
}
