package transport

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSChannel implements Channel over a raw net.Conn upgraded to a
// websocket connection via gobwas/ws. It is the direct I/O substrate
// named by the provider core's design notes; the higher-level reactor
// substrate is not implemented.
//
// One WSChannel is owned exclusively by the ProviderThread that accepted
// or dialed it; no method here is safe to call concurrently from two
// goroutines.
type WSChannel struct {
	conn net.Conn

	pingTimeout time.Duration
	maxFrag     int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// NewAcceptedWSChannel wraps a connection that has already completed
// the HTTP upgrade handshake (the listener side).
func NewAcceptedWSChannel(conn net.Conn, pingTimeout time.Duration, maxFragmentSize int) *WSChannel {
	return &WSChannel{
		conn:        conn,
		pingTimeout: pingTimeout,
		maxFrag:     maxFragmentSize,
	}
}

// DialWSChannel opens an outbound websocket connection to addr,
// performing the client-side upgrade handshake synchronously. It is
// used by the non-interactive provider to connect to its aggregator.
func DialWSChannel(addr string, pingTimeout time.Duration, maxFragmentSize int) (*WSChannel, error) {
	conn, _, _, err := ws.Dial(nil, addr)
	if err != nil {
		return nil, err
	}
	return &WSChannel{
		conn:        conn,
		pingTimeout: pingTimeout,
		maxFrag:     maxFragmentSize,
	}, nil
}

// Init reports success immediately: by the time a WSChannel exists, the
// HTTP-level upgrade (the channel's handshake) has already completed by
// construction. This collapses the INIT/HANDSHAKE distinction the
// generic contract allows for transports with a multi-step negotiation.
func (c *WSChannel) Init() (InitResult, error) {
	return InitSuccess, nil
}

func (c *WSChannel) ReadEx() ([]byte, ReadResult, error) {
	c.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	msg, op, err := wsutil.ReadClientData(c.conn)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ReadWouldBlock, nil
		}
		return nil, ReadInProgress, err
	}
	if op == ws.OpPing {
		return nil, ReadPing, nil
	}
	return msg, ReadSuccess, nil
}

func (c *WSChannel) Write(buf []byte) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := wsutil.WriteServerMessage(c.conn, ws.OpBinary, buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return true, ErrCallAgain
		}
		return false, err
	}
	return false, nil
}

// Flush is a no-op: WSChannel writes directly to the underlying
// connection rather than through an additional application-level
// buffer, so there is nothing held back to drain. It exists to satisfy
// the Channel contract for transports that do buffer internally.
func (c *WSChannel) Flush() error {
	return nil
}

func (c *WSChannel) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.pingTimeout / 3))
	return wsutil.WriteServerMessage(c.conn, ws.OpPing, nil)
}

func (c *WSChannel) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed = true
		err = c.conn.Close()
	})
	return err
}

func (c *WSChannel) Info() Info {
	return Info{
		MaxFragmentSize:  c.maxFrag,
		MaxOutputBuffers: 64,
		PingTimeout:      c.pingTimeout,
	}
}
