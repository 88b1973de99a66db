package provider

import "sync/atomic"

// Counters holds the monotonically increasing per-thread statistics the
// aggregation layer reads via GetChange (storing the last-sampled value
// and subtracting on the next call). Writers use relaxed atomic
// increments; the reducer is the only reader.
type Counters struct {
	Refreshes    atomic.Uint64
	Updates      atomic.Uint64
	Requests     atomic.Uint64
	Closes       atomic.Uint64
	Posts        atomic.Uint64
	GenMsgsSent  atomic.Uint64
	GenMsgsRecv  atomic.Uint64
	OutOfBuffers atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters suitable for delta
// computation and CSV rows.
type Snapshot struct {
	Refreshes, Updates, Requests, Closes, Posts, GenMsgsSent, GenMsgsRecv, OutOfBuffers uint64
}

func (c *Counters) snapshot() Snapshot {
	return Snapshot{
		Refreshes:    c.Refreshes.Load(),
		Updates:      c.Updates.Load(),
		Requests:     c.Requests.Load(),
		Closes:       c.Closes.Load(),
		Posts:        c.Posts.Load(),
		GenMsgsSent:  c.GenMsgsSent.Load(),
		GenMsgsRecv:  c.GenMsgsRecv.Load(),
		OutOfBuffers: c.OutOfBuffers.Load(),
	}
}

// Delta tracks the last-sampled Snapshot so GetChange can report the
// increase since the previous call.
type Delta struct {
	last Snapshot
}

// GetChange returns the per-field increase in cur since the last call,
// and updates the stored baseline to cur.
func (d *Delta) GetChange(cur Snapshot) Snapshot {
	change := Snapshot{
		Refreshes:    cur.Refreshes - d.last.Refreshes,
		Updates:      cur.Updates - d.last.Updates,
		Requests:     cur.Requests - d.last.Requests,
		Closes:       cur.Closes - d.last.Closes,
		Posts:        cur.Posts - d.last.Posts,
		GenMsgsSent:  cur.GenMsgsSent - d.last.GenMsgsSent,
		GenMsgsRecv:  cur.GenMsgsRecv - d.last.GenMsgsRecv,
		OutOfBuffers: cur.OutOfBuffers - d.last.OutOfBuffers,
	}
	d.last = cur
	return change
}
