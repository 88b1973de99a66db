package registry

import (
	"github.com/odin-labs/odin-provider/internal/queue"
)

// RejectReason enumerates the interactive item-request rejection codes.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectItemCountReached
	RejectInvalidServiceID
	RejectQoSNotSupported
	RejectStreamAlreadyInUse
	RejectItemAlreadyOpened
	RejectDomainNotSupported
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return ""
	case RejectItemCountReached:
		return "ITEM_COUNT_REACHED"
	case RejectInvalidServiceID:
		return "INVALID_SERVICE_ID"
	case RejectQoSNotSupported:
		return "QOS_NOT_SUPPORTED"
	case RejectStreamAlreadyInUse:
		return "STREAM_ALREADY_IN_USE"
	case RejectItemAlreadyOpened:
		return "ITEM_ALREADY_OPENED"
	case RejectDomainNotSupported:
		return "DOMAIN_NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// Registry is one session's item catalog: every open Item is indexed by
// both its Attributes and its StreamID, and lives in exactly one of the
// refresh or update rotating queues at all times.
type Registry struct {
	items []*Item
	free  []int32

	attrIndex   *queue.HashTable[Attributes, int32]
	streamIndex *queue.HashTable[int32, int32]

	Refresh *queue.Rotating
	Update  *queue.Rotating

	openLimit int
	openCount int
}

// New returns an empty Registry sized for roughly capacity concurrently
// open items (the hash table bucket counts are derived from it; no
// resize ever occurs, matching the fixed-capacity design of the
// underlying hash table).
func New(capacity, openLimit int) *Registry {
	buckets := capacity
	if buckets < 16 {
		buckets = 16
	}
	return &Registry{
		attrIndex:   queue.NewHashTable[Attributes, int32](buckets, hashAttributes, Attributes.Equal),
		streamIndex: queue.NewHashTable[int32, int32](buckets, func(id int32) uint64 { return uint64(uint32(id)) }, func(a, b int32) bool { return a == b }),
		Refresh:     queue.NewRotating(capacity),
		Update:      queue.NewRotating(capacity),
		openLimit:   openLimit,
	}
}

// OpenCount returns the number of currently open items.
func (r *Registry) OpenCount() int { return r.openCount }

// FindOpenItem returns the existing item with the given attributes, if
// any is open.
func (r *Registry) FindOpenItem(attrs Attributes) (*Item, bool) {
	idx, ok := r.attrIndex.Find(attrs)
	if !ok {
		return nil, false
	}
	return r.items[idx], true
}

// findByStream returns the item currently indexed under streamID, if any.
func (r *Registry) findByStream(streamID int32) (*Item, bool) {
	idx, ok := r.streamIndex.Find(streamID)
	if !ok {
		return nil, false
	}
	return r.items[idx], true
}

// IsStreamInUse reports whether streamID is occupied by an item whose
// attributes differ from the supplied key — the conflict-vs-reissue
// distinction the admission policy needs.
func (r *Registry) IsStreamInUse(streamID int32, attrs Attributes) bool {
	item, ok := r.findByStream(streamID)
	if !ok {
		return false
	}
	return !item.Attributes.Equal(attrs)
}

// CreateItem opens a new item: deep-copies attrs, inserts into both
// indexes and the refresh queue, and returns the new Item. Callers must
// have already run AdmitRequest and received RejectNone.
func (r *Registry) CreateItem(streamID int32, attrs Attributes, data ItemData, flags ItemFlags) *Item {
	item := &Item{
		StreamID:   streamID,
		Attributes: attrs.clone(),
		Data:       data,
		Flags:      flags,
	}
	slot := r.allocSlot(item)
	item.slot = slot

	r.attrIndex.Insert(item.Attributes, slot)
	r.streamIndex.Insert(streamID, slot)
	r.Refresh.Insert(slot)
	r.openCount++
	return item
}

// FreeItem removes item from both indexes and its current queue and
// releases its slot.
func (r *Registry) FreeItem(item *Item) {
	r.attrIndex.Remove(item.Attributes)
	r.streamIndex.Remove(item.StreamID)
	r.Refresh.Remove(item.slot)
	r.Update.Remove(item.slot)
	r.items[item.slot] = nil
	r.free = append(r.free, item.slot)
	r.openCount--
}

// CompleteRefresh moves a streaming item from the refresh queue to the
// update queue once its initial refresh has been sent. Non-streaming
// items must be freed by the caller instead.
func (r *Registry) CompleteRefresh(item *Item) {
	r.Refresh.Remove(item.slot)
	r.Update.Insert(item.slot)
}

// Reissue moves an already-open item back to the refresh queue (a
// duplicate request for the same attributes/stream is a reissue, not a
// fresh open).
func (r *Registry) Reissue(item *Item) {
	r.Update.Remove(item.slot)
	r.Refresh.Remove(item.slot)
	r.Refresh.Insert(item.slot)
}

// ItemAt resolves a rotating-queue slot id back to its Item.
func (r *Registry) ItemAt(slot int32) *Item { return r.items[slot] }

// CloseByStream implements the interactive close semantics: if
// streamID is open, the item is freed and true is returned. If it is
// not open, false is returned and the caller must NOT tear down the
// session — an unexpected close is tolerated as a close/close race.
func (r *Registry) CloseByStream(streamID int32) bool {
	item, ok := r.findByStream(streamID)
	if !ok {
		return false
	}
	r.FreeItem(item)
	return true
}

// AdmitRequest runs the five ordered admission checks for an interactive
// item request and reports the first violated one, or RejectNone plus
// whether this is a reissue of an already-open item. single and
// qosRange are mutually exclusive views of the request's requested QoS;
// pass both nil to skip the QoS check entirely (request carried none).
func (r *Registry) AdmitRequest(streamID int32, attrs Attributes, provisionedServiceID uint32, provisionedQoS QoS, single *QoS, qosRange *[2]QoS) (reason RejectReason, isReissue bool) {
	if r.openCount >= r.openLimit {
		return RejectItemCountReached, false
	}
	if attrs.ServiceID != provisionedServiceID {
		return RejectInvalidServiceID, false
	}
	if qosRange != nil {
		if !qosWithinRange(provisionedQoS, qosRange[0], qosRange[1]) {
			return RejectQoSNotSupported, false
		}
	} else if single != nil {
		if *single != provisionedQoS {
			return RejectQoSNotSupported, false
		}
	}
	if existing, ok := r.FindOpenItem(attrs); ok {
		if existing.StreamID != streamID {
			return RejectItemAlreadyOpened, false
		}
		return RejectNone, true
	}
	if r.IsStreamInUse(streamID, attrs) {
		return RejectStreamAlreadyInUse, false
	}
	return RejectNone, false
}

// qosWithinRange reports whether qos falls inside [lo, hi] by the
// timeliness/rate ordering the underlying QoS domain defines (lower
// values mean better/faster service, matching the wire protocol's
// convention).
func qosWithinRange(qos, lo, hi QoS) bool {
	return qos.Timeliness >= lo.Timeliness && qos.Timeliness <= hi.Timeliness &&
		qos.Rate >= lo.Rate && qos.Rate <= hi.Rate
}

func (r *Registry) allocSlot(item *Item) int32 {
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.items[idx] = item
		return idx
	}
	r.items = append(r.items, item)
	return int32(len(r.items) - 1)
}
