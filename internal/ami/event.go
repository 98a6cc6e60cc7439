package ami

import "strings"

// Event represents one decoded manager-protocol block as an ordered set of
// key-value pairs.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a slice of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the value for the given key, or empty string if not found.
// Keys are matched case-insensitively.
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Type returns the Event header value (the manager event type).
func (e Event) Type() string {
	return e.Get("Event")
}

// Headers returns all headers as key-value pairs.
func (e Event) Headers() []header {
	return e.headers
}

// IsResponse returns true if this block is an action response rather than
// an event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}
