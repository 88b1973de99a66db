package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-labs/odin-provider/internal/burst"
	"github.com/odin-labs/odin-provider/internal/channel"
	"github.com/odin-labs/odin-provider/internal/feed"
	"github.com/odin-labs/odin-provider/internal/latency"
	"github.com/odin-labs/odin-provider/internal/registry"
	"github.com/odin-labs/odin-provider/internal/transport"
	"github.com/odin-labs/odin-provider/internal/wire"
)

// EncodeFunc encodes one item's message into dst and reports the bytes
// written. latencyStamped tells the encoder whether to stamp a current
// timestamp into the message. It stands in for the opaque wire codec.
type EncodeFunc func(item *registry.Item, dst []byte, latencyStamped bool) (int, error)

// ThreadConfig bundles the per-thread construction parameters sourced
// from Config.
type ThreadConfig struct {
	TicksPerSec      int
	RefreshBurstSize int
	ItemCapacity     int
	OpenLimit        int
	WireConfig       wire.Config
	Update           burst.Config
	GenMsg           burst.Config
	PreEncode        bool
	MeasureEncode    bool
	AutoDownloadDict bool
	IsConsumerOrNI   bool

	EncodeRefresh EncodeFunc
	EncodeUpdate  EncodeFunc
	EncodeGenMsg  EncodeFunc
	Convert       wire.Converter

	// Decode turns an inbound frame into a dispatchable InboundMessage.
	// Nil disables dispatch entirely: onMessage only counts the frame.
	Decode DecodeFunc
	// Protocol encodes the readiness FSM's self-initiated messages. Nil
	// makes those sends no-ops, which still lets the FSM advance.
	Protocol ProtocolEncoder

	// ProvisionedServiceID/ProvisionedQoS are the interactive admission
	// policy's reference values, checked against each item request.
	ProvisionedServiceID uint32
	ProvisionedQoS       registry.QoS

	// PublishItemStart/PublishItemCount, when PublishItemCount > 0,
	// make every newly active session on this thread a non-interactive
	// publisher: onActive seeds that many items (attribute names
	// numbered from PublishItemStart) under PublishDomainType and
	// drives the session straight to ReadyComplete.
	PublishItemStart  int
	PublishItemCount  int
	PublishDomainType uint8
}

type pendingChannel struct {
	ch       transport.Channel
	userSpec any
}

// Thread is one worker's exclusively-owned slice of the provider: its
// live connections, their sessions, its per-tick scheduler, and its
// statistics. Exactly one goroutine (Run) touches handler/sessions/
// scheduler/tickIndex; cross-thread handoff happens only through the
// mutex-guarded inbox.
type Thread struct {
	id  int
	log zerolog.Logger
	cfg ThreadConfig

	handler   *channel.Handler
	sessions  map[int64]*Session
	scheduler *burst.Scheduler
	tickIndex int

	Counters       Counters
	LatencyRecords *latency.Queue
	EncodeRecords  *latency.Queue

	inboxMu   sync.Mutex
	inbox     []pendingChannel
	feedInbox []feed.Update

	connCount atomic.Int64
}

// NewThread constructs a Thread. id is a 0-based index used only for
// logging and the admission tie-break rule.
func NewThread(id int, log zerolog.Logger, cfg ThreadConfig) (*Thread, error) {
	sched, err := burst.New(cfg.TicksPerSec, cfg.Update, cfg.GenMsg, cfg.PreEncode, cfg.MeasureEncode)
	if err != nil {
		return nil, err
	}
	t := &Thread{
		id:             id,
		log:            log.With().Int("thread", id).Logger(),
		cfg:            cfg,
		sessions:       make(map[int64]*Session),
		scheduler:      sched,
		LatencyRecords: latency.NewQueue(4096),
		EncodeRecords:  latency.NewQueue(4096),
	}
	t.handler = channel.NewHandler(t.log, t.onMessage, t.onActive)
	return t, nil
}

// ConnectionCount implements admission.Target.
func (t *Thread) ConnectionCount() int { return int(t.connCount.Load()) }

// Enqueue implements admission.Target: it hands a freshly accepted or
// dialed channel to this thread's inbox, to be promoted to a Session on
// the next outer-loop iteration.
func (t *Thread) Enqueue(ch transport.Channel, userSpec any) error {
	t.connCount.Add(1)
	t.inboxMu.Lock()
	t.inbox = append(t.inbox, pendingChannel{ch: ch, userSpec: userSpec})
	t.inboxMu.Unlock()
	return nil
}

// Run drives the tick loop described by the provider core's main-loop
// design until ctx is canceled: read channels, produce this tick's
// burst for every session, drain newly admitted channels, and check
// ping liveness once per outer iteration.
func (t *Thread) Run(ctx context.Context) {
	tickPeriod := time.Second / time.Duration(t.cfg.TicksPerSec)
	stopTime := time.Now().Add(tickPeriod)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.handler.ReadAll(stopTime)
		stopTime = stopTime.Add(tickPeriod)

		t.sendBurst(stopTime)
		t.acceptNewChannels()
		t.drainFeedUpdates()

		t.tickIndex++
		if t.tickIndex == t.cfg.TicksPerSec {
			t.tickIndex = 0
		}
		t.handler.CheckPings()

		if remaining := time.Until(stopTime); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

func (t *Thread) acceptNewChannels() {
	t.inboxMu.Lock()
	pending := t.inbox
	t.inbox = nil
	t.inboxMu.Unlock()

	for _, p := range pending {
		t.handler.Add(p.ch, p.userSpec, true)
	}
}

func (t *Thread) onActive(ci *channel.Info) error {
	lifecycle := channel.NewLifecycle(t.cfg.AutoDownloadDict, t.cfg.IsConsumerOrNI)
	sess := NewSession(ci, t.cfg.ItemCapacity, t.cfg.OpenLimit, t.cfg.WireConfig, t.cfg.Convert, lifecycle)
	t.sessions[ci.ID] = sess
	if t.cfg.PublishItemCount > 0 {
		return t.seedPublishingItems(sess)
	}
	return nil
}

// onMessage is the channel.Handler integration point: it decodes frame
// with the (opaque) codec and dispatches the result to the registry and
// readiness FSM. Decoding itself is out of scope here; routing an
// already-decoded REQUEST/CLOSE/login/directory/dictionary message to
// Items/Lifecycle is not.
func (t *Thread) onMessage(ci *channel.Info, frame []byte) error {
	t.Counters.Requests.Add(1)
	if t.cfg.Decode == nil {
		return nil
	}
	msg, err := t.cfg.Decode(frame)
	if err != nil {
		return fmt.Errorf("provider: decode: %w", err)
	}

	sess, ok := t.sessions[ci.ID]
	if !ok {
		return nil
	}
	sender := &sessionSender{thread: t, sess: sess}

	switch msg.Class {
	case MessageLoginRefresh:
		ok, err := sess.Lifecycle.OnLoginRefresh(msg.Login, sender)
		if err != nil {
			return fmt.Errorf("provider: login refresh: %w", err)
		}
		if !ok {
			t.closeSession(ci, "login refresh rejected")
		}

	case MessageDirectoryResponse:
		if err := sess.Lifecycle.OnDirectoryResponse(msg.DirectoryAvail, msg.DirectoryFieldStream, msg.DirectoryEnumStream, sender); err != nil {
			return fmt.Errorf("provider: directory response: %w", err)
		}

	case MessageDictionaryComplete:
		if err := sess.Lifecycle.OnDictionaryComplete(msg.DictionaryStreamID, sender); err != nil {
			return fmt.Errorf("provider: dictionary complete: %w", err)
		}

	case MessageItemRequest:
		t.dispatchItemRequest(sess, msg)

	case MessageItemClose:
		if sess.Items.CloseByStream(msg.StreamID) {
			t.Counters.Closes.Add(1)
		}

	case MessageGenericMessage:
		t.Counters.GenMsgsRecv.Add(1)
	}
	return nil
}

func (t *Thread) dispatchItemRequest(sess *Session, msg InboundMessage) {
	reason, isReissue := sess.Items.AdmitRequest(msg.StreamID, msg.Attributes, t.cfg.ProvisionedServiceID, t.cfg.ProvisionedQoS, msg.QoS, msg.QoSRange)
	if reason != registry.RejectNone {
		t.log.Debug().Str("reason", reason.String()).Msg("item request rejected")
		return
	}
	if isReissue {
		item, ok := sess.Items.FindOpenItem(msg.Attributes)
		if ok {
			sess.Items.Reissue(item)
		}
		return
	}
	sess.Items.CreateItem(msg.StreamID, msg.Attributes, msg.Data, msg.Flags)
}

// Session looks up the session owning channel id, if still active.
func (t *Thread) Session(id int64) (*Session, bool) {
	s, ok := t.sessions[id]
	return s, ok
}

func (t *Thread) closeSession(ci *channel.Info, reason string) {
	if sess, ok := t.sessions[ci.ID]; ok {
		sess.Destroy()
		delete(t.sessions, ci.ID)
		t.connCount.Add(-1)
	}
	t.handler.Close(ci, reason)
}

func (t *Thread) sendBurst(stopTime time.Time) {
	for _, sess := range t.sessions {
		if !sess.Lifecycle.Ready() {
			continue
		}
		if stopTime.Before(sess.TimeActivated) {
			continue
		}
		if t.cfg.Update.PerSec > 0 && sess.Items.Update.Count() > 0 {
			t.sendUpdateBurst(sess)
		}
		if t.cfg.GenMsg.PerSec > 0 && sess.Items.Update.Count() > 0 {
			t.sendGenMsgBurst(sess)
		}
		for time.Now().Before(stopTime) && sess.Items.Refresh.Count() > 0 {
			if !t.sendRefreshChunk(sess) {
				break
			}
		}
	}
}

func (t *Thread) sendUpdateBurst(sess *Session) {
	count, latencyLast, allLatency := t.scheduler.PlanTick(t.tickIndex)
	for i := 0; i < count; i++ {
		slot, ok := sess.Items.Update.Next()
		if !ok {
			break
		}
		item := sess.Items.ItemAt(slot)
		stamped := allLatency || (latencyLast && i == count-1)
		if !t.emit(sess, item, t.cfg.EncodeUpdate, stamped, &t.Counters.Updates) {
			return
		}
	}
}

func (t *Thread) sendGenMsgBurst(sess *Session) {
	count, latencyLast, allLatency := t.scheduler.PlanGenMsgTick(t.tickIndex)
	for i := 0; i < count; i++ {
		slot, ok := sess.Items.Update.Next()
		if !ok {
			break
		}
		item := sess.Items.ItemAt(slot)
		stamped := allLatency || (latencyLast && i == count-1)
		if !t.emit(sess, item, t.cfg.EncodeGenMsg, stamped, &t.Counters.GenMsgsSent) {
			return
		}
		if !sess.firstGenMsgSent {
			sess.firstGenMsgSent = true
		}
	}
}

func (t *Thread) sendRefreshChunk(sess *Session) bool {
	n := t.cfg.RefreshBurstSize
	for i := 0; i < n; i++ {
		slot, ok := sess.Items.Refresh.PeekFront()
		if !ok {
			return false
		}
		item := sess.Items.ItemAt(slot)
		if !t.emit(sess, item, t.cfg.EncodeRefresh, false, &t.Counters.Refreshes) {
			return false
		}
		if item.Streaming() {
			sess.Items.CompleteRefresh(item)
		} else {
			sess.Items.FreeItem(item)
		}
	}
	return true
}

func (t *Thread) emit(sess *Session, item *registry.Item, encode EncodeFunc, stamped bool, counter *atomic.Uint64) bool {
	const estimatedLen = 512
	dst, err := sess.Buffers.Acquire(sess.Channel.Channel, estimatedLen)
	if err != nil {
		t.Counters.OutOfBuffers.Add(1)
		sess.Channel.NeedFlush = true
		return false
	}
	start := time.Now().UnixNano()
	n, err := encode(item, dst, stamped)
	if err != nil {
		t.closeSession(sess.Channel, "encode failed: "+err.Error())
		return false
	}
	if t.cfg.MeasureEncode {
		end := time.Now().UnixNano()
		t.EncodeRecords.Submit(latency.Record{Start: start, End: end, TicksPerUnit: 1000})
	}
	if stamped {
		t.LatencyRecords.Submit(latency.Record{Start: start, End: start, TicksPerUnit: 1000})
	}
	_, err = sess.Buffers.Submit(sess.Channel.Channel, n, true)
	if err != nil {
		if errors.Is(err, transport.ErrNoBuffers) {
			t.Counters.OutOfBuffers.Add(1)
			sess.Channel.NeedFlush = true
			return false
		}
		t.closeSession(sess.Channel, "write failed: "+err.Error())
		return false
	}
	counter.Add(1)
	return true
}

// syntheticItemData is the domain payload for items this thread opens
// on its own behalf (non-interactive publishing) rather than in
// response to a decoded item request.
type syntheticItemData struct{ domain uint8 }

func (d syntheticItemData) Domain() uint8 { return d.domain }

// seedPublishingItems opens this thread's non-interactive publish list
// directly in sess's registry and drives sess's lifecycle to
// ReadyComplete without waiting on an inbound login/directory exchange:
// a non-interactive provider owns the directory it would otherwise
// request, so it can declare itself ready as soon as it has opened its
// items.
func (t *Thread) seedPublishingItems(sess *Session) error {
	sender := &sessionSender{thread: t, sess: sess}
	if ok, err := sess.Lifecycle.OnLoginRefresh(channel.LoginOpenOK, sender); err != nil {
		return fmt.Errorf("provider: ni login: %w", err)
	} else if !ok {
		return fmt.Errorf("provider: ni login rejected")
	}
	if err := sess.Lifecycle.OnDirectoryResponse(channel.DictionaryAvailability{}, 0, 0, sender); err != nil {
		return fmt.Errorf("provider: ni directory: %w", err)
	}

	for i := 0; i < t.cfg.PublishItemCount; i++ {
		idx := t.cfg.PublishItemStart + i
		attrs := registry.Attributes{
			DomainType: t.cfg.PublishDomainType,
			ServiceID:  t.cfg.ProvisionedServiceID,
			Name:       []byte(fmt.Sprintf("NI_ITEM_%d", idx)),
		}
		streamID := int32(idx + 1)
		sess.Items.CreateItem(streamID, attrs, syntheticItemData{domain: t.cfg.PublishDomainType}, registry.FlagStreaming)
	}
	return nil
}

// DispatchFeedUpdate queues an externally sourced update for delivery
// on this thread's own goroutine. Safe to call from any goroutine.
func (t *Thread) DispatchFeedUpdate(u feed.Update) {
	t.inboxMu.Lock()
	t.feedInbox = append(t.feedInbox, u)
	t.inboxMu.Unlock()
}

// drainFeedUpdates delivers every update queued since the last tick to
// whichever open session, across this thread's sessions, has a
// matching item; threads that don't own that item simply find nothing.
func (t *Thread) drainFeedUpdates() {
	t.inboxMu.Lock()
	updates := t.feedInbox
	t.feedInbox = nil
	t.inboxMu.Unlock()

	for _, u := range updates {
		attrs := registry.Attributes{
			DomainType: t.cfg.PublishDomainType,
			ServiceID:  t.cfg.ProvisionedServiceID,
			Name:       []byte(u.Subject),
		}
		for _, sess := range t.sessions {
			if !sess.Lifecycle.Ready() {
				continue
			}
			if _, ok := sess.Items.FindOpenItem(attrs); !ok {
				continue
			}
			t.emitFeedUpdate(sess, u.Payload)
		}
	}
}

func (t *Thread) emitFeedUpdate(sess *Session, payload []byte) {
	dst, err := sess.Buffers.Acquire(sess.Channel.Channel, len(payload))
	if err != nil {
		t.Counters.OutOfBuffers.Add(1)
		sess.Channel.NeedFlush = true
		return
	}
	n := copy(dst, payload)
	if _, err := sess.Buffers.Submit(sess.Channel.Channel, n, true); err != nil {
		if errors.Is(err, transport.ErrNoBuffers) {
			t.Counters.OutOfBuffers.Add(1)
			sess.Channel.NeedFlush = true
			return
		}
		t.closeSession(sess.Channel, "feed write failed: "+err.Error())
		return
	}
	t.Counters.Updates.Add(1)
}
