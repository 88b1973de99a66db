package channel

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-labs/odin-provider/internal/transport"
)

// MessageCallback handles one inbound frame for a channel already in
// StateActive. Returning an error closes the channel.
type MessageCallback func(*Info, []byte) error

// ActiveCallback fires exactly once, when a channel's handshake
// completes and it is promoted from the initializing list to the active
// list.
type ActiveCallback func(*Info) error

// Handler owns the live set of connections for one ProviderThread: the
// channels still completing their handshake, and the channels ready for
// burst production. It is not safe for concurrent use; exactly one
// ProviderThread goroutine may call its methods.
type Handler struct {
	log zerolog.Logger

	active       map[int64]*Info
	initializing map[int64]*Info
	nextID       int64

	onMessage MessageCallback
	onActive  ActiveCallback
}

// NewHandler returns an empty Handler. onMessage is invoked for every
// inbound application frame on an active channel; onActive is invoked
// once per channel when its handshake completes.
func NewHandler(log zerolog.Logger, onMessage MessageCallback, onActive ActiveCallback) *Handler {
	return &Handler{
		log:          log,
		active:       make(map[int64]*Info),
		initializing: make(map[int64]*Info),
		onMessage:    onMessage,
		onActive:     onActive,
	}
}

// Add registers a newly accepted or dialed channel. If it already
// reports success from Init() (the gobwas/ws substrate completes its
// handshake at the HTTP-upgrade layer, before a Channel value exists),
// it is promoted to the active list immediately.
func (h *Handler) Add(ch transport.Channel, userSpec any, checkPings bool) *Info {
	h.nextID++
	info := newInfo(h.nextID, ch, checkPings)
	info.UserSpec = userSpec
	res, err := ch.Init()
	if err == nil && res == transport.InitSuccess {
		h.promote(info)
		return info
	}
	h.initializing[info.ID] = info
	return info
}

// Initialize drives one handshake step for a channel still in the
// initializing list.
func (h *Handler) Initialize(info *Info) error {
	res, err := info.Channel.Init()
	if err != nil {
		h.closeLocked(info, "handshake failed: "+err.Error())
		return err
	}
	switch res {
	case transport.InitFDChange:
		info.NeedFlush = true
	case transport.InitSuccess:
		h.promote(info)
	case transport.InitFailed:
		h.closeLocked(info, "handshake failed")
		return errors.New("channel: handshake failed")
	}
	return nil
}

func (h *Handler) promote(info *Info) {
	delete(h.initializing, info.ID)
	info.State = StateActive
	h.active[info.ID] = info
	if h.onActive != nil {
		if err := h.onActive(info); err != nil {
			h.closeLocked(info, "active callback failed: "+err.Error())
		}
	}
}

// Read drains one channel's inbound frames until the transport reports
// would-block, fd-change, or in-progress.
func (h *Handler) Read(info *Info) error {
	for {
		buf, res, err := info.Channel.ReadEx()
		switch res {
		case transport.ReadWouldBlock, transport.ReadFDChange, transport.ReadInProgress:
			return nil
		case transport.ReadNoBuffers:
			return nil
		case transport.ReadPing:
			info.noteReceived(time.Now())
			continue
		case transport.ReadSuccess:
			if err != nil {
				h.closeLocked(info, "read failed: "+err.Error())
				return err
			}
			info.noteReceived(time.Now())
			if h.onMessage != nil {
				if cbErr := h.onMessage(info, buf); cbErr != nil {
					h.closeLocked(info, "message callback failed: "+cbErr.Error())
					return cbErr
				}
			}
		default:
			return nil
		}
	}
}

// Write submits buf on info's channel, downgrading ErrFlushFailed on an
// otherwise-active channel to a flush-pending signal rather than a
// fatal error.
func (h *Handler) Write(info *Info, buf []byte) (flushPending bool, err error) {
	pending, werr := info.Channel.Write(buf)
	if werr == nil {
		if pending {
			info.NeedFlush = true
		}
		info.noteSent(time.Now())
		return pending, nil
	}
	switch {
	case errors.Is(werr, transport.ErrCallAgain):
		if ferr := info.Channel.Flush(); ferr != nil {
			h.closeLocked(info, "flush after call-again failed: "+ferr.Error())
			return false, ferr
		}
		return h.Write(info, buf)
	case errors.Is(werr, transport.ErrFlushFailed) && info.State == StateActive:
		info.NeedFlush = true
		return true, nil
	case errors.Is(werr, transport.ErrNoBuffers):
		info.NeedFlush = true
		return false, transport.ErrNoBuffers
	default:
		h.closeLocked(info, "write failed: "+werr.Error())
		return false, werr
	}
}

// ReadAll services every active and initializing channel once: reads
// whatever is available, flushes channels with a pending NeedFlush, and
// advances any channel still completing its handshake. stopTime is
// checked before each active channel is read: once it has passed, the
// remaining active channels are skipped until the next pass. A channel
// already being read is drained until it reports would-block, and each
// ReadEx call may wait up to its own short read timeout, so a pass can
// end somewhat after stopTime.
func (h *Handler) ReadAll(stopTime time.Time) {
	for _, info := range h.initializing {
		_ = h.Initialize(info)
	}
	for _, info := range h.active {
		if time.Now().After(stopTime) {
			return
		}
		_ = h.Read(info)
		if info.NeedFlush {
			if err := info.Channel.Flush(); err == nil {
				info.NeedFlush = false
			}
		}
	}
}

// CheckPings runs the send/recv ping supervision pass across every
// active channel with ping-checking enabled. Call once per outer tick
// iteration, not once per tick.
func (h *Handler) CheckPings() {
	now := time.Now()
	for _, info := range h.active {
		if !info.checkPings {
			continue
		}
		if !now.Before(info.nextSendPing) {
			if err := info.Channel.Ping(); err != nil {
				h.closeLocked(info, "ping send failed: "+err.Error())
				continue
			}
			info.noteSent(now)
		}
		if !now.Before(info.nextRecvPing) {
			received := info.receivedMsg
			info.receivedMsg = false
			info.nextRecvPing = now.Add(info.recvInterval)
			if !received {
				h.closeLocked(info, "ping timed out")
			}
		}
	}
}

// Active returns the live set of active channels. Callers must not
// retain the returned map across a ReadAll/CheckPings call.
func (h *Handler) Active() map[int64]*Info { return h.active }

// Close tears down info explicitly, e.g. on an application-level close
// request.
func (h *Handler) Close(info *Info, reason string) {
	h.closeLocked(info, reason)
}

func (h *Handler) closeLocked(info *Info, reason string) {
	if info.State == StateInactive {
		return
	}
	info.State = StateInactive
	delete(h.active, info.ID)
	delete(h.initializing, info.ID)
	if err := info.Channel.Close(reason); err != nil {
		h.log.Debug().Int64("channel_id", info.ID).Err(err).Msg("channel close returned error")
	}
	h.log.Info().Int64("channel_id", info.ID).Str("reason", reason).Msg("channel closed")
}
