package ami

import "strings"

// Decoder turns an incrementally fed byte stream into complete events.
// A block ends at a blank line (two consecutive CRLF pairs on the wire;
// bare LF line endings are tolerated). Partial blocks are held in the
// accumulator until the terminator arrives, so events come out the same
// no matter how the stream is split across reads.
type Decoder struct {
	buf []byte
}

// Feed appends p to the accumulator and returns every event completed
// by it. Whitespace-only blocks are skipped.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		block, rest, ok := splitBlock(d.buf)
		if !ok {
			return events
		}
		d.buf = rest
		if evt, ok := parseBlock(block); ok {
			events = append(events, evt)
		}
	}
}

// Flush parses whatever remains in the accumulator as a final,
// unterminated block. Used when the stream ends without a trailing
// blank line.
func (d *Decoder) Flush() (Event, bool) {
	block := d.buf
	d.buf = nil
	return parseBlock(block)
}

// splitBlock finds the first blank-line terminator in buf and splits
// around it.
func splitBlock(buf []byte) (block, rest []byte, ok bool) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(buf) && buf[j] == '\r' {
			j++
		}
		if j < len(buf) && buf[j] == '\n' {
			return buf[:i+1], buf[j+1:], true
		}
	}
	return nil, nil, false
}

// parseBlock parses newline-separated "Key: Value" lines. Lines without
// a colon are ignored (the connection banner has no colon). Returns
// false for a block with no parseable headers.
func parseBlock(block []byte) (Event, bool) {
	var headers []header
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		headers = append(headers, header{
			Key:   strings.TrimSpace(line[:idx]),
			Value: strings.TrimSpace(line[idx+1:]),
		})
	}
	if len(headers) == 0 {
		return Event{}, false
	}
	return Event{headers: headers}, true
}
