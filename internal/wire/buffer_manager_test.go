package wire

import (
	"testing"

	"github.com/odin-labs/odin-provider/internal/transport"
)

type fakeChannel struct {
	writes [][]byte
}

func (f *fakeChannel) Init() (transport.InitResult, error) { return transport.InitSuccess, nil }
func (f *fakeChannel) ReadEx() ([]byte, transport.ReadResult, error) {
	return nil, transport.ReadWouldBlock, nil
}
func (f *fakeChannel) Write(buf []byte) (bool, error) {
	cp := append([]byte(nil), buf...)
	f.writes = append(f.writes, cp)
	return false, nil
}
func (f *fakeChannel) Flush() error { return nil }
func (f *fakeChannel) Ping() error  { return nil }
func (f *fakeChannel) Close(reason string) error { return nil }
func (f *fakeChannel) Info() transport.Info      { return transport.Info{} }

func TestManagerNoPackingWritesImmediately(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(Config{MaxPerPack: 1}, nil)

	dst, err := m.Acquire(ch, 10)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	n := copy(dst, []byte("hello-msg!"))
	if _, err := m.Submit(ch, n, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(ch.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(ch.writes))
	}
}

func TestManagerPacksUntilFull(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(Config{MaxPerPack: 3, PackBufLen: 1024}, nil)

	for i := 0; i < 3; i++ {
		dst, err := m.Acquire(ch, 5)
		if err != nil {
			t.Fatalf("Acquire[%d]: %v", i, err)
		}
		n := copy(dst, []byte("msg"))
		if _, err := m.Submit(ch, n, true); err != nil {
			t.Fatalf("Submit[%d]: %v", i, err)
		}
	}
	if len(ch.writes) != 1 {
		t.Fatalf("writes = %d, want 1 (packed buffer flushed on 3rd message)", len(ch.writes))
	}
	if len(ch.writes[0]) != 9 {
		t.Fatalf("packed buffer length = %d, want 9", len(ch.writes[0]))
	}
}

func TestManagerOversizedMessageBypassesPacking(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(Config{MaxPerPack: 5, PackBufLen: 16}, nil)

	dst, err := m.Acquire(ch, 64)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(dst) < 64 {
		t.Fatalf("dst too small: %d", len(dst))
	}
	if _, err := m.Submit(ch, 64, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(ch.writes) != 1 || len(ch.writes[0]) != 64 {
		t.Fatalf("expected one 64-byte write, got %v", ch.writes)
	}
}

func TestWriteEncodedTemplatePatchesStreamID(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(Config{MaxPerPack: 1}, nil)

	template := []byte{0, 0, 0, 0, 0xAA, 0xBB}
	patch := func(buf []byte, streamID int32) error {
		buf[0] = byte(streamID)
		return nil
	}
	if _, err := m.WriteEncodedTemplate(ch, template, 7, patch, true); err != nil {
		t.Fatalf("WriteEncodedTemplate: %v", err)
	}
	if len(ch.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(ch.writes))
	}
	if ch.writes[0][0] != 7 {
		t.Fatalf("stream id byte = %d, want 7", ch.writes[0][0])
	}
	if ch.writes[0][4] != 0xAA {
		t.Fatalf("template body not preserved: %v", ch.writes[0])
	}
}

