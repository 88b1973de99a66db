package burst

import "testing"

func TestPlanTickSumsToConfiguredRate(t *testing.T) {
	s, err := New(1000, Config{PerSec: 100000}, Config{}, false, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	total := 0
	for tick := 0; tick < 1000; tick++ {
		count, _, _ := s.PlanTick(tick)
		total += count
	}
	if total != 100000 {
		t.Fatalf("total = %d, want 100000", total)
	}
}

func TestPlanTickRemainderSpread(t *testing.T) {
	// 10 ticks/sec, 23 updates/sec => 2 per tick + remainder 3.
	s := &Scheduler{ticksPerSec: 10, update: newPlan(Config{PerSec: 23}, 10)}
	total := 0
	extra := 0
	for tick := 0; tick < 10; tick++ {
		count, _, _ := s.PlanTick(tick)
		total += count
		if count > 2 {
			extra++
		}
	}
	if total != 23 {
		t.Fatalf("total = %d, want 23", total)
	}
	if extra != 3 {
		t.Fatalf("ticks with remainder bonus = %d, want 3", extra)
	}
}

func TestLatencySelectionExactCount(t *testing.T) {
	sel := buildLatencySelection(1000, 137)
	count := 0
	for _, v := range sel {
		if v {
			count++
		}
	}
	if count != 137 {
		t.Fatalf("latency-marked ticks = %d, want 137", count)
	}
}

func TestAlwaysLatencyRejectsPreEncoding(t *testing.T) {
	_, err := New(1000, Config{PerSec: 1000, LatencyPerSec: AlwaysLatency}, Config{}, true, false)
	if err == nil {
		t.Fatalf("expected error combining AlwaysLatency with pre-encoding")
	}
}

func TestMeasureEncodeRequiresLatency(t *testing.T) {
	_, err := New(1000, Config{PerSec: 1000}, Config{}, false, true)
	if err == nil {
		t.Fatalf("expected error: measureEncode requires latencyUpdatesPerSec > 0")
	}
}

func TestSubTickSecondRateRejected(t *testing.T) {
	_, err := New(1000, Config{PerSec: 10}, Config{}, false, false)
	if err == nil {
		t.Fatalf("expected error: updatesPerSec below ticksPerSec and non-zero")
	}
}
