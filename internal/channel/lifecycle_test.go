package channel

import "testing"

type fakeSender struct {
	directoryRequests int
	dictRequests      []int32
	dictCloses        []int32
	failDirectory     bool
}

func (f *fakeSender) SendDirectoryRequest() error {
	f.directoryRequests++
	if f.failDirectory {
		return errFake
	}
	return nil
}

func (f *fakeSender) SendDictionaryRequest(streamID int32, name string) error {
	f.dictRequests = append(f.dictRequests, streamID)
	return nil
}

func (f *fakeSender) SendDictionaryClose(streamID int32) error {
	f.dictCloses = append(f.dictCloses, streamID)
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("boom")

func TestLifecycleConsumerWithDictionaries(t *testing.T) {
	l := NewLifecycle(true, true)
	s := &fakeSender{}

	ok, err := l.OnLoginRefresh(LoginOpenOK, s)
	if !ok || err != nil {
		t.Fatalf("OnLoginRefresh: ok=%v err=%v", ok, err)
	}
	if s.directoryRequests != 1 {
		t.Fatalf("directoryRequests = %d, want 1", s.directoryRequests)
	}

	if err := l.OnDirectoryResponse(DictionaryAvailability{HasFieldDict: true, HasEnumDict: true}, 10, 11, s); err != nil {
		t.Fatalf("OnDirectoryResponse: %v", err)
	}
	if l.State() != ReadyHaveDirectory {
		t.Fatalf("state = %v, want HaveDirectory", l.State())
	}
	if len(s.dictRequests) != 2 {
		t.Fatalf("dictRequests = %v, want 2 entries", s.dictRequests)
	}

	if err := l.OnDictionaryComplete(10, s); err != nil {
		t.Fatalf("OnDictionaryComplete(field): %v", err)
	}
	if l.State() != ReadyHaveFieldDict {
		t.Fatalf("state = %v, want HaveFieldDict", l.State())
	}
	if err := l.OnDictionaryComplete(11, s); err != nil {
		t.Fatalf("OnDictionaryComplete(enum): %v", err)
	}
	if !l.Ready() {
		t.Fatalf("expected Ready() after both dictionaries complete")
	}
	if len(s.dictCloses) != 2 {
		t.Fatalf("dictCloses = %v, want 2 entries", s.dictCloses)
	}
}

func TestLifecycleNoDictionariesAdvertised(t *testing.T) {
	l := NewLifecycle(true, true)
	s := &fakeSender{}
	l.OnLoginRefresh(LoginOpenOK, s)
	if err := l.OnDirectoryResponse(DictionaryAvailability{}, 10, 11, s); err != nil {
		t.Fatalf("OnDirectoryResponse: %v", err)
	}
	if !l.Ready() {
		t.Fatalf("expected immediate Ready() when no dictionaries advertised")
	}
}

func TestLifecycleLoginRejected(t *testing.T) {
	l := NewLifecycle(true, true)
	s := &fakeSender{}
	ok, err := l.OnLoginRefresh(LoginOther, s)
	if ok || err != nil {
		t.Fatalf("OnLoginRefresh(closed): ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if s.directoryRequests != 0 {
		t.Fatalf("directoryRequests = %d, want 0 on rejected login", s.directoryRequests)
	}
}
