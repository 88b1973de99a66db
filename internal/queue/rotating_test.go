package queue

import "testing"

func TestRotatingRoundRobin(t *testing.T) {
	q := NewRotating(4)
	q.Insert(0)
	q.Insert(1)
	q.Insert(2)

	seen := make([]int32, 0, 6)
	for i := 0; i < 6; i++ {
		id, ok := q.Next()
		if !ok {
			t.Fatalf("Next() returned false on non-empty queue")
		}
		seen = append(seen, id)
	}
	want := []int32{1, 2, 0, 1, 2, 0}
	for i, id := range seen {
		if id != want[i] {
			t.Fatalf("seen[%d] = %d, want %d (full: %v)", i, id, want[i], seen)
		}
	}
}

func TestRotatingRemoveAdvancesCursor(t *testing.T) {
	q := NewRotating(4)
	q.Insert(0)
	q.Insert(1)
	q.Insert(2)

	// Force cursor onto 1.
	if id, _ := q.Next(); id != 1 {
		t.Fatalf("expected cursor on 1, got %d", id)
	}
	q.Remove(1)
	if q.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", q.Count())
	}
	id, ok := q.Next()
	if !ok || id == 1 {
		t.Fatalf("Next() after removing cursor returned stale id %d, ok=%v", id, ok)
	}
}

func TestRotatingEmptyNext(t *testing.T) {
	q := NewRotating(1)
	if _, ok := q.Next(); ok {
		t.Fatalf("Next() on empty queue should return false")
	}
}

func TestRotatingRemoveLastElement(t *testing.T) {
	q := NewRotating(1)
	q.Insert(0)
	q.Remove(0)
	if q.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", q.Count())
	}
	if _, ok := q.Next(); ok {
		t.Fatalf("Next() after draining queue should return false")
	}
}
