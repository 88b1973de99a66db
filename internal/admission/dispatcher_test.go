package admission

import (
	"testing"

	"github.com/odin-labs/odin-provider/internal/transport"
)

type fakeTarget struct {
	count     int
	enqueued  int
	failEnqueue bool
}

func (f *fakeTarget) ConnectionCount() int { return f.count }
func (f *fakeTarget) Enqueue(ch transport.Channel, userSpec any) error {
	if f.failEnqueue {
		return errEnqueue
	}
	f.enqueued++
	return nil
}

type enqueueErr string

func (e enqueueErr) Error() string { return string(e) }

const errEnqueue = enqueueErr("enqueue failed")

func TestDispatchPicksLeastLoaded(t *testing.T) {
	targets := []Target{
		&fakeTarget{count: 5},
		&fakeTarget{count: 2},
		&fakeTarget{count: 8},
	}
	d := New(targets, 0)
	idx, err := d.Dispatch(nil, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if idx != 1 {
		t.Fatalf("idx = %d, want 1 (lowest connection count)", idx)
	}
}

func TestDispatchTieBreaksLowestIndex(t *testing.T) {
	targets := []Target{
		&fakeTarget{count: 3},
		&fakeTarget{count: 3},
	}
	d := New(targets, 0)
	idx, err := d.Dispatch(nil, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0 (tie-break to lowest index)", idx)
	}
}

func TestDispatchNoTargets(t *testing.T) {
	d := New(nil, 0)
	if _, err := d.Dispatch(nil, nil); err == nil {
		t.Fatalf("expected error with no targets configured")
	}
}

func TestDispatchRateLimited(t *testing.T) {
	targets := []Target{&fakeTarget{count: 0}}
	d := New(targets, 1)
	if _, err := d.Dispatch(nil, nil); err != nil {
		t.Fatalf("first Dispatch should succeed: %v", err)
	}
	if _, err := d.Dispatch(nil, nil); err == nil {
		t.Fatalf("second immediate Dispatch should be rate limited")
	}
}
