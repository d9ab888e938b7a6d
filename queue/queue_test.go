package queue

import "testing"

func TestQueueCursor(t *testing.T) {
	q := New[int]()
	if !q.IsEmpty() {
		t.Fatal("expected new queue to be empty")
	}

	q.Enqueue(1)
	q.Enqueue(2)
	if got := q.MarkProcessed(); got != 2 {
		t.Errorf("Expected cursor 2, got %d", got)
	}
	q.Enqueue(3)
	q.Enqueue(4)

	rest := q.Unprocessed()
	if len(rest) != 2 || rest[0] != 3 || rest[1] != 4 {
		t.Errorf("Expected [3 4], got %v", rest)
	}
	if q.Len() != 4 {
		t.Errorf("Expected 4 items, got %d", q.Len())
	}

	q.Reset()
	if q.Len() != 0 || q.Processed() != 0 {
		t.Errorf("Expected empty queue after reset, got len=%d cursor=%d", q.Len(), q.Processed())
	}
}

func TestUnprocessedIsCopy(t *testing.T) {
	q := New[int]()
	q.Enqueue(7)
	out := q.Unprocessed()
	out[0] = 99
	if again := q.Unprocessed(); again[0] != 7 {
		t.Errorf("Expected queue contents to be unaffected, got %d", again[0])
	}
}
