package ami

import (
	"io"
	"strings"
)

// Parser reads a manager-protocol byte stream and emits Events.
type Parser struct {
	r       io.Reader
	dec     Decoder
	pending []Event
	buf     []byte
	eof     bool
}

// NewParser creates a Parser that reads from the given reader.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r, buf: make([]byte, 4096)}
}

// Next reads the next event from the stream.
// Returns the event and true if an event was read, or a zero Event and
// false at EOF.
func (p *Parser) Next() (Event, bool) {
	for len(p.pending) == 0 {
		if p.eof {
			return Event{}, false
		}
		n, err := p.r.Read(p.buf)
		if n > 0 {
			p.pending = p.dec.Feed(p.buf[:n])
		}
		if err != nil {
			p.eof = true
			if evt, ok := p.dec.Flush(); ok {
				p.pending = append(p.pending, evt)
			}
		}
	}
	evt := p.pending[0]
	p.pending = p.pending[1:]
	return evt, true
}

// ParseAll reads all events from the stream and returns them.
func (p *Parser) ParseAll() []Event {
	var events []Event
	for {
		evt, ok := p.Next()
		if !ok {
			break
		}
		events = append(events, evt)
	}
	return events
}

// ParseBytes is a convenience function that parses all events from a byte slice.
func ParseBytes(data []byte) []Event {
	return NewParser(strings.NewReader(string(data))).ParseAll()
}
