// Package transport defines the opaque channel contract the provider
// core is built against, and a concrete implementation over
// github.com/gobwas/ws for the direct (non-reactor) I/O substrate.
package transport

import (
	"errors"
	"time"
)

// Sentinel errors the tick loop matches on with errors.Is. These stand
// in for the negative return codes of the channel contract: transient
// conditions the caller recovers from locally, versus fatal ones that
// close the channel.
var (
	// ErrNoBuffers means the transport has no output buffer available
	// right now; the caller should request a flush and continue with
	// the rest of its burst rather than retrying this message.
	ErrNoBuffers = errors.New("transport: no buffers available")
	// ErrCallAgain means the write needs the caller to flush once and
	// retry.
	ErrCallAgain = errors.New("transport: call write again after flush")
	// ErrFlushFailed means flush failed, but the channel is still
	// active; the caller must record a pending flush and may continue.
	ErrFlushFailed = errors.New("transport: flush failed, channel still active")
	// ErrFatal names a fatal channel failure. WSChannel returns other
	// failures unwrapped; callers treat any error that is not one of the
	// sentinels above as fatal and close the channel.
	ErrFatal = errors.New("transport: fatal channel error")
)

// InitResult reports the outcome of one handshake step.
type InitResult int

const (
	InitInProgress InitResult = iota
	InitFDChange
	InitSuccess
	InitFailed
)

// ReadResult classifies the outcome of one ReadEx call.
type ReadResult int

const (
	ReadSuccess ReadResult = iota
	ReadWouldBlock
	ReadFDChange
	ReadInProgress
	ReadPing
	ReadNoBuffers
)

// Info reports negotiated channel parameters, mirroring the getChannelInfo
// contract.
type Info struct {
	MaxFragmentSize int
	MaxOutputBuffers int
	PingTimeout      time.Duration
	Compression      bool
}

// Channel is the opaque per-connection handle the provider core drives.
// A concrete Channel is backed by gobwas/ws in this port (see
// wschannel.go); the interface exists so the direct substrate described
// by the specification stays substitutable without touching the core.
type Channel interface {
	// Init advances the handshake by one step.
	Init() (InitResult, error)
	// ReadEx returns the next inbound frame, or a ReadResult explaining
	// why none is available right now.
	ReadEx() ([]byte, ReadResult, error)
	// Write submits buf for transmission. A nil error with
	// flushPending true means the caller still must flush.
	Write(buf []byte) (flushPending bool, err error)
	// Flush attempts to drain any buffered output.
	Flush() error
	// Ping sends a protocol-level keepalive.
	Ping() error
	// Close tears down the channel.
	Close(reason string) error
	// Info reports negotiated parameters.
	Info() Info
}
