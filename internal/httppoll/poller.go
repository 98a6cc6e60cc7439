package httppoll

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/callwatch/internal/engine"
)

// Poller periodically fetches the call snapshot and replays it through
// the engine. After a failed poll it waits the longer backoff interval
// before trying again.
type Poller struct {
	client   *Client
	engine   *engine.Engine
	interval time.Duration
	backoff  time.Duration
}

// NewPoller creates a Poller feeding eng.
func NewPoller(client *Client, eng *engine.Engine, interval, backoff time.Duration) *Poller {
	return &Poller{client: client, engine: eng, interval: interval, backoff: backoff}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		wait := p.poll(ctx)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// poll performs one fetch-and-sync cycle and returns how long to wait
// before the next one.
func (p *Poller) poll(ctx context.Context) time.Duration {
	calls, err := p.client.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("poll failed: %v, backing off %s", err, p.backoff)
		}
		return p.backoff
	}
	p.engine.SyncRemote(toRemote(calls))
	return p.interval
}

func toRemote(calls []CallStatus) []engine.RemoteCall {
	remote := make([]engine.RemoteCall, 0, len(calls))
	for _, c := range calls {
		remote = append(remote, engine.RemoteCall{
			ID:        c.CallID,
			Extension: c.Extension,
			CallerID:  c.CallerID,
			Status:    c.Status,
			Direction: c.Direction,
			Start:     c.StartTime,
		})
	}
	return remote
}
