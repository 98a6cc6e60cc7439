package ami_test

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sweeney/callwatch/internal/ami"
)

func fixturesDir() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), name))
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	return data
}

const multiBlock = "Event: NewExten\r\nExten: 101\r\nContext: from-pstn\r\nCallerID: 0770000000\r\n\r\n" +
	"Event: Bridge\r\nChannel1: 101-00000001\r\n\r\n" +
	"Event: Hangup\r\nChannel: 101-00000001\r\n\r\n"

func feedAll(dec *ami.Decoder, data []byte, chunk int) []ami.Event {
	var events []ami.Event
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		events = append(events, dec.Feed(data[:n])...)
		data = data[n:]
	}
	return events
}

func TestFeedChunkBoundaryInvariance(t *testing.T) {
	want := (&ami.Decoder{}).Feed([]byte(multiBlock))
	if len(want) != 3 {
		t.Fatalf("expected 3 events from single feed, got %d", len(want))
	}

	for chunk := 1; chunk <= len(multiBlock); chunk++ {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			got := feedAll(&ami.Decoder{}, []byte(multiBlock), chunk)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("chunked feed diverged from single feed: got %d events", len(got))
			}
		})
	}
}

func TestFeedSplitInsideTerminator(t *testing.T) {
	dec := &ami.Decoder{}
	if evts := dec.Feed([]byte("Event: Hangup\r\nChannel: 101-1\r\n\r")); len(evts) != 0 {
		t.Fatalf("expected no events before terminator completes, got %d", len(evts))
	}
	evts := dec.Feed([]byte("\nEvent: Bridge\r\n"))
	if len(evts) != 1 {
		t.Fatalf("expected 1 event once terminator completes, got %d", len(evts))
	}
	if evts[0].Type() != "Hangup" {
		t.Errorf("expected Hangup, got %q", evts[0].Type())
	}
	if evts[0].Get("Channel") != "101-1" {
		t.Errorf("expected Channel=101-1, got %q", evts[0].Get("Channel"))
	}
}

func TestFeedBareLineFeeds(t *testing.T) {
	evts := (&ami.Decoder{}).Feed([]byte("Event: Hangup\nChannel: 101-1\n\n"))
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if evts[0].Get("Channel") != "101-1" {
		t.Errorf("expected Channel=101-1, got %q", evts[0].Get("Channel"))
	}
}

func TestColonlessLinesIgnored(t *testing.T) {
	evts := (&ami.Decoder{}).Feed([]byte("Asterisk Call Manager/2.10.5\r\nEvent: NewExten\r\nExten: 101\r\n\r\n"))
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if evts[0].Type() != "NewExten" {
		t.Errorf("expected NewExten, got %q", evts[0].Type())
	}
	if len(evts[0].Headers()) != 2 {
		t.Errorf("expected banner line dropped, got %d headers", len(evts[0].Headers()))
	}
}

func TestWhitespaceOnlyBlocksSkipped(t *testing.T) {
	evts := (&ami.Decoder{}).Feed([]byte("\r\n\r\n   \r\n\r\nEvent: Hangup\r\nChannel: 7-1\r\n\r\n"))
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
}

func TestEventKeyCaseInsensitive(t *testing.T) {
	evts := (&ami.Decoder{}).Feed([]byte("EVENT: Hangup\r\nchannel: 9-1\r\n\r\n"))
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if evts[0].Type() != "Hangup" {
		t.Errorf("expected case-insensitive Event match, got %q", evts[0].Type())
	}
	if evts[0].Get("Channel") != "9-1" {
		t.Errorf("expected case-insensitive Get, got %q", evts[0].Get("Channel"))
	}
}

func TestValueWhitespaceTrimmed(t *testing.T) {
	evts := (&ami.Decoder{}).Feed([]byte("Event:   NewExten  \r\nExten:101\r\n\r\n"))
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if evts[0].Type() != "NewExten" {
		t.Errorf("expected trimmed type, got %q", evts[0].Type())
	}
	if evts[0].Get("Exten") != "101" {
		t.Errorf("expected Exten=101 without a space after the colon, got %q", evts[0].Get("Exten"))
	}
}

func TestFlushUnterminatedBlock(t *testing.T) {
	dec := &ami.Decoder{}
	if evts := dec.Feed([]byte("Event: Final\r\nKey: Value")); len(evts) != 0 {
		t.Fatalf("unterminated block should not emit, got %d", len(evts))
	}
	evt, ok := dec.Flush()
	if !ok {
		t.Fatal("expected flushed event")
	}
	if evt.Type() != "Final" {
		t.Errorf("expected Final, got %q", evt.Type())
	}
	if _, ok := dec.Flush(); ok {
		t.Error("second flush should be empty")
	}
}

func TestParseFixture(t *testing.T) {
	events := ami.ParseBytes(loadFixture(t, "incoming-answered.raw"))
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	if !events[0].IsResponse() {
		t.Error("expected first block to be the login response")
	}
	if events[2].Type() != "NewExten" {
		t.Errorf("expected NewExten, got %q", events[2].Type())
	}
	if events[2].Get("CallerID") != "0770000000" {
		t.Errorf("expected CallerID=0770000000, got %q", events[2].Get("CallerID"))
	}
	if events[4].Get("Channel1") != "101-00000001" {
		t.Errorf("expected Channel1=101-00000001, got %q", events[4].Get("Channel1"))
	}
}

func TestParserStreamReading(t *testing.T) {
	input := "Event: Test\r\nKey: Value\r\n\r\nEvent: Test2\r\nKey2: Value2\r\n\r\n"
	parser := ami.NewParser(strings.NewReader(input))

	evt1, ok := parser.Next()
	if !ok {
		t.Fatal("expected first event")
	}
	if evt1.Type() != "Test" {
		t.Errorf("expected Test, got %q", evt1.Type())
	}

	evt2, ok := parser.Next()
	if !ok {
		t.Fatal("expected second event")
	}
	if evt2.Type() != "Test2" {
		t.Errorf("expected Test2, got %q", evt2.Type())
	}

	if _, ok := parser.Next(); ok {
		t.Error("expected no more events")
	}
}

func TestParserNoTrailingBlankLine(t *testing.T) {
	events := ami.ParseBytes([]byte("Event: Final\r\nKey: Value"))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type() != "Final" {
		t.Errorf("expected Final, got %q", events[0].Type())
	}
}

func TestParseEmptyInput(t *testing.T) {
	if events := ami.ParseBytes(nil); len(events) != 0 {
		t.Errorf("expected 0 events from empty input, got %d", len(events))
	}
}

func TestEventAccessors(t *testing.T) {
	evt := ami.NewEvent(
		"Event", "Hangup",
		"Channel", "101-00000019",
	)
	if evt.Type() != "Hangup" {
		t.Errorf("expected Type()=Hangup, got %q", evt.Type())
	}
	if evt.Get("Missing") != "" {
		t.Errorf("expected empty string for missing key, got %q", evt.Get("Missing"))
	}
	if evt.IsResponse() {
		t.Error("expected IsResponse()=false for an event")
	}

	resp := ami.NewEvent("Response", "Success", "Message", "Authentication accepted")
	if !resp.IsResponse() {
		t.Error("expected IsResponse()=true for response block")
	}
}
