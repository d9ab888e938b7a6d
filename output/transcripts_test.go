package output

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, v.(Event))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) snapshot() ([]Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...), c.closed
}

func TestTranscriptOutputBroadcasts(t *testing.T) {
	events := make(chan Event)
	o, err := NewTranscriptOutput(events, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewTranscriptOutput failed: %v", err)
	}
	good, bad := &fakeConn{}, &fakeConn{fail: true}
	o.Add(good)
	o.Add(bad)
	o.Start()

	events <- Event{Event: EventTranscript, Text: "hello"}
	events <- Event{Event: EventStatus, State: "idle"}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := good.snapshot(); len(got) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, _ := good.snapshot()
	if len(got) != 2 || got[0].Text != "hello" || got[1].State != "idle" {
		t.Errorf("unexpected events %+v", got)
	}
	if _, closed := bad.snapshot(); !closed {
		t.Error("Expected failing client to be closed")
	}
	if o.Clients() != 1 {
		t.Errorf("Expected 1 client left, got %d", o.Clients())
	}

	o.Stop()
	if _, closed := good.snapshot(); !closed {
		t.Error("Expected Stop to close remaining clients")
	}
}

func TestNewTranscriptOutputValidation(t *testing.T) {
	if _, err := NewTranscriptOutput(nil, nil); err == nil {
		t.Error("Expected error for nil channel")
	}
}
