package channel

import (
	"time"

	"github.com/odin-labs/odin-provider/internal/transport"
)

// Info is the per-connection runtime state the handler tracks: the
// transport channel itself, flush/liveness bookkeeping, and ping
// deadlines. It corresponds 1:1 with one accepted or dialed peer.
type Info struct {
	ID      int64
	Channel transport.Channel
	State   State
	Ready   Readiness

	NeedFlush   bool
	receivedMsg bool
	checkPings  bool

	pingTimeout   time.Duration
	sendInterval  time.Duration
	recvInterval  time.Duration
	nextSendPing  time.Time
	nextRecvPing  time.Time

	// UserSpec carries caller-supplied context (e.g. role, service id)
	// threaded through without interpretation by the handler itself.
	UserSpec any
}

// newInfo builds an Info in StateHandshake with ping bookkeeping derived
// from pingTimeout: sendInterval = pingTimeout/3, recvInterval =
// pingTimeout, recomputed from "now" on every send/receive event rather
// than a fixed wall-clock schedule.
func newInfo(id int64, ch transport.Channel, checkPings bool) *Info {
	info := ch.Info()
	pt := info.PingTimeout
	now := time.Now()
	ci := &Info{
		ID:           id,
		Channel:      ch,
		State:        StateHandshake,
		Ready:        ReadyInit,
		NeedFlush:    true,
		checkPings:   checkPings,
		pingTimeout:  pt,
		sendInterval: pt / 3,
		recvInterval: pt,
	}
	ci.nextSendPing = now.Add(ci.sendInterval)
	ci.nextRecvPing = now.Add(ci.recvInterval)
	return ci
}

// noteSent records that the channel sent something, pushing the next
// ping-send deadline out from now.
func (ci *Info) noteSent(now time.Time) {
	ci.nextSendPing = now.Add(ci.sendInterval)
}

// noteReceived records inbound activity: it satisfies the recv-ping
// liveness check and pushes the next recv deadline out from now.
func (ci *Info) noteReceived(now time.Time) {
	ci.receivedMsg = true
	ci.nextRecvPing = now.Add(ci.recvInterval)
}
