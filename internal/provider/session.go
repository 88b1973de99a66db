// Package provider implements the provider core's three remaining
// layers: the per-peer ProviderSession, the per-worker ProviderThread
// tick loop, and the top-level Provider that owns the thread fleet and
// aggregates statistics.
package provider

import (
	"time"

	"github.com/odin-labs/odin-provider/internal/channel"
	"github.com/odin-labs/odin-provider/internal/registry"
	"github.com/odin-labs/odin-provider/internal/wire"
)

// Session aggregates one peer's channel state, item registry, and
// outbound buffer manager. It is owned exclusively by the ProviderThread
// that created it.
type Session struct {
	Channel   *channel.Info
	Items     *registry.Registry
	Buffers   *wire.Manager
	Lifecycle *channel.Lifecycle

	// TimeActivated is set once the channel reaches StateActive; bursts
	// are skipped for a tick whose deadline falls before this, avoiding
	// a correction pass for freshly admitted sessions.
	TimeActivated time.Time

	// PreEncoded maps a domain to a precomputed update template.
	// NewSession creates it empty and nothing fills it, whether or not
	// pre-encoding is enabled, so every burst message is encoded fresh.
	PreEncoded map[uint8][]byte

	firstGenMsgSent bool
}

// NewSession builds a Session over an already-active channel.
func NewSession(ci *channel.Info, itemCapacity, openLimit int, wireCfg wire.Config, convert wire.Converter, lifecycle *channel.Lifecycle) *Session {
	return &Session{
		Channel:       ci,
		Items:         registry.New(itemCapacity, openLimit),
		Buffers:       wire.NewManager(wireCfg, convert),
		Lifecycle:     lifecycle,
		TimeActivated: time.Now(),
		PreEncoded:    make(map[uint8][]byte),
	}
}

// Destroy frees every remaining item (draining both rotating queues) so
// the session's slots and index storage can be released. Callers must
// ensure no more bursts are scheduled against this session afterward.
func (s *Session) Destroy() {
	for {
		slot, ok := s.Items.Refresh.PeekFront()
		if !ok {
			break
		}
		s.Items.FreeItem(s.Items.ItemAt(slot))
	}
	for {
		slot, ok := s.Items.Update.PeekFront()
		if !ok {
			break
		}
		s.Items.FreeItem(s.Items.ItemAt(slot))
	}
}
