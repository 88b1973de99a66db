package wire

import (
	"errors"
	"fmt"

	"github.com/odin-labs/odin-provider/internal/transport"
)

// ErrPreEncodedTooLarge is returned when a pre-encoded message template
// does not fit in the buffer currently being packed into; it is fatal
// for the owning session.
var ErrPreEncodedTooLarge = errors.New("wire: pre-encoded message too large for buffer")

// Encoder writes one message into dst (the slice Acquire returned, at
// least the estimated length requested; when packing it is the rest of
// the packing buffer) and returns the number of bytes actually used.
type Encoder func(dst []byte) (n int, err error)

// Config controls packing behavior. MaxPerPack == 1 disables packing:
// every message gets its own buffer and is written immediately.
type Config struct {
	MaxPerPack   int
	PackBufLen   int
	TextProtocol bool
}

// Converter transforms a packed binary buffer into the wire's textual
// representation, used only when Config.TextProtocol is set. It is the
// pluggable hook standing in for the opaque wire codec.
type Converter func(buf []byte) ([]byte, error)

// Manager implements the acquire/submit/write buffer lifecycle described
// by the provider core's buffer management component. One Manager is
// owned by exactly one ProviderSession.
type Manager struct {
	cfg     Config
	pool    *sizedPool
	convert Converter

	current      []byte
	used         int
	packedCount  int
	dedicated    bool // true if current was acquired oversized (non-packed)
	totalMessages uint64
}

// NewManager returns a Manager. convert may be nil when Config.TextProtocol
// is false.
func NewManager(cfg Config, convert Converter) *Manager {
	if cfg.MaxPerPack < 1 {
		cfg.MaxPerPack = 1
	}
	return &Manager{cfg: cfg, pool: newSizedPool(), convert: convert}
}

// Acquire ensures a buffer with at least estimatedLen free bytes is
// available to encode into, flushing/writing the current buffer first
// if necessary. It returns the destination slice to encode into; the
// caller must pass the number of bytes actually used to Submit.
func (m *Manager) Acquire(ch transport.Channel, estimatedLen int) ([]byte, error) {
	if m.cfg.MaxPerPack == 1 {
		buf := m.pool.get(estimatedLen)
		m.current = buf
		m.used = 0
		m.dedicated = true
		return buf, nil
	}

	if estimatedLen > m.cfg.PackBufLen {
		if m.current != nil {
			if err := m.writeCurrent(ch); err != nil {
				return nil, err
			}
		}
		buf := m.pool.get(estimatedLen)
		m.current = buf
		m.used = 0
		m.dedicated = true
		return m.current, nil
	}

	if m.current == nil {
		m.current = m.pool.get(m.cfg.PackBufLen)
		m.used = 0
		m.dedicated = false
	} else if len(m.current)-m.used < estimatedLen {
		if err := m.writeCurrent(ch); err != nil {
			return nil, err
		}
		m.current = m.pool.get(m.cfg.PackBufLen)
		m.used = 0
		m.dedicated = false
	}
	return m.current[m.used:], nil
}

// Submit finalizes n encoded bytes into the buffer returned by the most
// recent Acquire. allowPack hints that the caller would like the buffer
// to continue accumulating messages rather than write immediately; it
// is ignored once MaxPerPack-1 messages have already been packed, or
// when packing is disabled.
func (m *Manager) Submit(ch transport.Channel, n int, allowPack bool) (flushPending bool, err error) {
	m.used += n
	m.totalMessages++

	if m.cfg.MaxPerPack == 1 || m.dedicated {
		return m.writeCurrent(ch)
	}
	if m.packedCount == m.cfg.MaxPerPack-1 || !allowPack {
		return m.writeCurrent(ch)
	}
	m.packedCount++
	return false, nil
}

// WriteEncodedTemplate copies a pre-encoded template into the current
// buffer (acquiring one first if packing permits), then patches the
// stream id in place via patchStreamID, avoiding a fresh encode for
// messages that are not latency-stamped this tick.
func (m *Manager) WriteEncodedTemplate(ch transport.Channel, template []byte, streamID int32, patchStreamID func(buf []byte, streamID int32) error, allowPack bool) (flushPending bool, err error) {
	dst, err := m.Acquire(ch, len(template))
	if err != nil {
		return false, err
	}
	if len(dst) < len(template) {
		return false, fmt.Errorf("%w: need %d, have %d", ErrPreEncodedTooLarge, len(template), len(dst))
	}
	copy(dst[:len(template)], template)
	if err := patchStreamID(dst[:len(template)], streamID); err != nil {
		return false, fmt.Errorf("wire: patch stream id: %w", err)
	}
	return m.Submit(ch, len(template), allowPack)
}

func (m *Manager) writeCurrent(ch transport.Channel) (flushPending bool, err error) {
	buf := m.current[:m.used]
	if m.cfg.TextProtocol {
		converted, cerr := m.convert(buf)
		if cerr != nil {
			return false, fmt.Errorf("wire: text conversion: %w", cerr)
		}
		buf = converted
	}

	for {
		pending, werr := ch.Write(buf)
		if werr == nil {
			m.release()
			return pending, nil
		}
		switch {
		case errors.Is(werr, transport.ErrCallAgain):
			if ferr := ch.Flush(); ferr != nil {
				m.release()
				return false, ferr
			}
			continue
		case errors.Is(werr, transport.ErrFlushFailed):
			m.release()
			return true, nil
		case errors.Is(werr, transport.ErrNoBuffers):
			// leave current buffer intact; caller requests a flush and
			// tries again on a later tick.
			return false, transport.ErrNoBuffers
		default:
			m.release()
			return false, werr
		}
	}
}

func (m *Manager) release() {
	if m.current != nil && cap(m.current) <= largeClass {
		m.pool.put(m.current)
	}
	m.current = nil
	m.used = 0
	m.packedCount = 0
	m.dedicated = false
}

// TotalMessages returns the running count of messages submitted, packed
// or not.
func (m *Manager) TotalMessages() uint64 { return m.totalMessages }
