package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// payload is the JSON structure forwarded to the broker.
type payload struct {
	Event     string `json:"event"`
	Message   string `json:"message,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Extension string `json:"extension,omitempty"`
	CallerID  string `json:"caller_id,omitempty"`
	Direction string `json:"direction,omitempty"`
	Status    string `json:"status,omitempty"`
	Duration  int64  `json:"duration_seconds,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Forward drains sub into pub until the context is cancelled or the
// subscription channel is closed. Call notifications go to
// <prefix>/call/<id>/<kind>, connection notifications to
// <prefix>/connection. Publish failures are logged, not fatal.
func Forward(ctx context.Context, sub <-chan Notification, pub Publisher, prefix string) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub:
			if !ok {
				return
			}
			if err := forwardOne(ctx, pub, prefix, n); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
	}
}

func forwardOne(ctx context.Context, pub Publisher, prefix string, n Notification) error {
	var topic string
	p := payload{
		Event:     string(n.Kind),
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
	}
	if n.Kind == Connection {
		topic = fmt.Sprintf("%s/connection", prefix)
		p.Message = n.Message
	} else {
		topic = fmt.Sprintf("%s/call/%s/%s", prefix, n.Call.ID, n.Kind)
		p.CallID = n.Call.ID
		p.Extension = n.Call.Extension
		p.CallerID = n.Call.CallerID
		p.Direction = string(n.Call.Direction)
		p.Status = string(n.Call.Status)
		p.Duration = int64(n.Call.Duration / time.Second)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	return pub.Publish(ctx, topic, data)
}
