package latency

import "testing"

func TestQueueSubmitDrain(t *testing.T) {
	q := NewQueue(4)
	q.Submit(Record{Start: 0, End: 100, TicksPerUnit: 1})
	q.Submit(Record{Start: 0, End: 200, TicksPerUnit: 1})

	out := q.Drain(nil)
	if len(out) != 2 {
		t.Fatalf("Drain() returned %d records, want 2", len(out))
	}
	if out[0].Micros() != 100 || out[1].Micros() != 200 {
		t.Fatalf("unexpected record values: %+v", out)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", q.Len())
	}
}

func TestQueueDrainIsAppendOnly(t *testing.T) {
	q := NewQueue(2)
	q.Submit(Record{Start: 0, End: 10, TicksPerUnit: 1})

	existing := []Record{{Start: 0, End: 1, TicksPerUnit: 1}}
	out := q.Drain(existing)
	if len(out) != 2 {
		t.Fatalf("Drain() with prefix returned %d records, want 2", len(out))
	}
}

func TestStatsWelford(t *testing.T) {
	var s Stats
	for _, v := range []int64{10, 20, 30, 40} {
		s.Add(v)
	}
	if s.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", s.Count())
	}
	if s.Mean() != 25 {
		t.Fatalf("Mean() = %v, want 25", s.Mean())
	}
	if s.Min() != 10 || s.Max() != 40 {
		t.Fatalf("Min/Max = %d/%d, want 10/40", s.Min(), s.Max())
	}
	if sd := s.StdDev(); sd < 12.9 || sd > 12.95 {
		t.Fatalf("StdDev() = %v, want ~12.91", sd)
	}
}
