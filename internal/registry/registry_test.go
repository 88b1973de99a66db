package registry

import "testing"

type fakeData struct{ domain uint8 }

func (f fakeData) Domain() uint8 { return f.domain }

func attrs(name string, service uint32) Attributes {
	return Attributes{DomainType: 6, NameType: 1, Name: []byte(name), ServiceID: service}
}

func TestCreateFindFreeRoundTrip(t *testing.T) {
	reg := New(16, 10)
	a := attrs("TRI.N", 1)

	reason, reissue := reg.AdmitRequest(5, a, 1, QoS{}, nil, nil)
	if reason != RejectNone || reissue {
		t.Fatalf("AdmitRequest = %v, %v, want RejectNone,false", reason, reissue)
	}
	item := reg.CreateItem(5, a, fakeData{domain: 6}, FlagStreaming)

	found, ok := reg.FindOpenItem(a)
	if !ok || found != item {
		t.Fatalf("FindOpenItem did not return created item")
	}
	if reg.OpenCount() != 1 {
		t.Fatalf("OpenCount() = %d, want 1", reg.OpenCount())
	}
	if reg.Refresh.Count() != 1 || reg.Update.Count() != 0 {
		t.Fatalf("expected item in refresh queue only, got refresh=%d update=%d", reg.Refresh.Count(), reg.Update.Count())
	}

	reg.CompleteRefresh(item)
	if reg.Refresh.Count() != 0 || reg.Update.Count() != 1 {
		t.Fatalf("expected item moved to update queue, got refresh=%d update=%d", reg.Refresh.Count(), reg.Update.Count())
	}

	reg.FreeItem(item)
	if reg.OpenCount() != 0 {
		t.Fatalf("OpenCount() after free = %d, want 0", reg.OpenCount())
	}
	if _, ok := reg.FindOpenItem(a); ok {
		t.Fatalf("FindOpenItem should fail after free")
	}
}

func TestAdmitRequestItemCountReached(t *testing.T) {
	reg := New(4, 1)
	a := attrs("A", 1)
	reg.CreateItem(1, a, fakeData{}, 0)

	reason, _ := reg.AdmitRequest(2, attrs("B", 1), 1, QoS{}, nil, nil)
	if reason != RejectItemCountReached {
		t.Fatalf("reason = %v, want RejectItemCountReached", reason)
	}
}

func TestAdmitRequestStreamConflict(t *testing.T) {
	reg := New(4, 10)
	a := attrs("A", 1)
	reg.CreateItem(1, a, fakeData{}, 0)

	reason, _ := reg.AdmitRequest(1, attrs("B", 1), 1, QoS{}, nil, nil)
	if reason != RejectStreamAlreadyInUse {
		t.Fatalf("reason = %v, want RejectStreamAlreadyInUse", reason)
	}
}

func TestAdmitRequestAlreadyOpenedUnderDifferentStream(t *testing.T) {
	reg := New(4, 10)
	a := attrs("A", 1)
	reg.CreateItem(1, a, fakeData{}, 0)

	reason, _ := reg.AdmitRequest(2, a, 1, QoS{}, nil, nil)
	if reason != RejectItemAlreadyOpened {
		t.Fatalf("reason = %v, want RejectItemAlreadyOpened", reason)
	}
}

func TestAdmitRequestReissue(t *testing.T) {
	reg := New(4, 10)
	a := attrs("A", 1)
	reg.CreateItem(1, a, fakeData{}, 0)

	reason, reissue := reg.AdmitRequest(1, a, 1, QoS{}, nil, nil)
	if reason != RejectNone || !reissue {
		t.Fatalf("reason=%v reissue=%v, want RejectNone,true", reason, reissue)
	}
}

func TestCloseToleratesUnknownStream(t *testing.T) {
	reg := New(4, 10)
	if reg.CloseByStream(99) {
		t.Fatalf("CloseByStream on unknown stream should return false")
	}
}

func TestCloseThenRequestSameStream(t *testing.T) {
	reg := New(4, 10)
	a := attrs("A", 1)
	reg.CreateItem(1, a, fakeData{}, 0)
	before := reg.OpenCount()

	if !reg.CloseByStream(1) {
		t.Fatalf("CloseByStream should succeed for open stream")
	}
	reason, _ := reg.AdmitRequest(1, a, 1, QoS{}, nil, nil)
	if reason != RejectNone {
		t.Fatalf("reason = %v, want RejectNone after close freed the slot", reason)
	}
	reg.CreateItem(1, a, fakeData{}, 0)
	if reg.OpenCount() != before {
		t.Fatalf("OpenCount() = %d, want %d (request-then-close-then-reopen should net to same count)", reg.OpenCount(), before)
	}
}
