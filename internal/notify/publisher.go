package notify

import "context"

// Publisher defines the interface for publishing messages to an
// external broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
