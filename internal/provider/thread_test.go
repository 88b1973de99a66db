package provider

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/odin-labs/odin-provider/internal/burst"
	"github.com/odin-labs/odin-provider/internal/channel"
	"github.com/odin-labs/odin-provider/internal/registry"
	"github.com/odin-labs/odin-provider/internal/transport"
	"github.com/odin-labs/odin-provider/internal/wire"
)

type stubChannel struct{ writes int }

func (s *stubChannel) Init() (transport.InitResult, error) { return transport.InitSuccess, nil }
func (s *stubChannel) ReadEx() ([]byte, transport.ReadResult, error) {
	return nil, transport.ReadWouldBlock, nil
}
func (s *stubChannel) Write(buf []byte) (bool, error) { s.writes++; return false, nil }
func (s *stubChannel) Flush() error                   { return nil }
func (s *stubChannel) Ping() error                     { return nil }
func (s *stubChannel) Close(reason string) error       { return nil }
func (s *stubChannel) Info() transport.Info            { return transport.Info{} }

type stubData struct{}

func (stubData) Domain() uint8 { return 6 }

func newTestThread(t *testing.T, updateCfg burst.Config) (*Thread, *Session) {
	t.Helper()
	encode := func(item *registry.Item, dst []byte, latencyStamped bool) (int, error) {
		return copy(dst, []byte("msg")), nil
	}
	cfg := ThreadConfig{
		TicksPerSec:      10,
		RefreshBurstSize: 10,
		ItemCapacity:     16,
		OpenLimit:        100,
		WireConfig:       wire.Config{MaxPerPack: 1},
		Update:           updateCfg,
		EncodeRefresh:    encode,
		EncodeUpdate:     encode,
		EncodeGenMsg:     encode,
	}
	th, err := NewThread(0, zerolog.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}

	ci := &channel.Info{ID: 1, Channel: &stubChannel{}}
	sess := NewSession(ci, 16, 100, cfg.WireConfig, nil, channel.NewLifecycle(false, false))
	// Force readiness: a freshly constructed Lifecycle starts at
	// ReadyInit, but sendBurst only services Ready() sessions.
	sess.Lifecycle.OnLoginRefresh(channel.LoginOpenOK, noopSender{})
	sess.Lifecycle.OnDirectoryResponse(channel.DictionaryAvailability{}, 0, 0, noopSender{})

	item := sess.Items.CreateItem(1, registry.Attributes{DomainType: 6, Name: []byte("X")}, stubData{}, registry.FlagStreaming)
	sess.Items.CompleteRefresh(item)

	th.sessions[ci.ID] = sess
	return th, sess
}

type noopSender struct{}

func (noopSender) SendDirectoryRequest() error                        { return nil }
func (noopSender) SendDictionaryRequest(streamID int32, name string) error { return nil }
func (noopSender) SendDictionaryClose(streamID int32) error            { return nil }

func TestSendUpdateBurstMatchesConfiguredRate(t *testing.T) {
	th, _ := newTestThread(t, burst.Config{PerSec: 100})
	total := 0
	for tick := 0; tick < th.cfg.TicksPerSec; tick++ {
		th.tickIndex = tick
		before := th.Counters.Updates.Load()
		for _, sess := range th.sessions {
			th.sendUpdateBurst(sess)
		}
		total += int(th.Counters.Updates.Load() - before)
	}
	if total != 100 {
		t.Fatalf("total updates over one second = %d, want 100", total)
	}
}

func TestSendRefreshThenItemMovesToUpdateQueue(t *testing.T) {
	th, sess := newTestThread(t, burst.Config{})
	if sess.Items.Update.Count() != 1 || sess.Items.Refresh.Count() != 0 {
		t.Fatalf("expected streaming item already moved to update queue by test setup")
	}
	sess.Items.CreateItem(2, registry.Attributes{DomainType: 6, Name: []byte("Y")}, stubData{}, registry.FlagStreaming)
	if sess.Items.Refresh.Count() != 1 {
		t.Fatalf("refresh queue = %d after CreateItem, want 1", sess.Items.Refresh.Count())
	}
	th.sendRefreshChunk(sess)
	if sess.Items.Refresh.Count() != 0 || sess.Items.Update.Count() != 2 {
		t.Fatalf("after refresh: refresh=%d update=%d, want 0 and 2", sess.Items.Refresh.Count(), sess.Items.Update.Count())
	}
	if got := th.Counters.Refreshes.Load(); got != 1 {
		t.Fatalf("refreshes sent = %d, want 1", got)
	}
}
