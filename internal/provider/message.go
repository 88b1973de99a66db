package provider

import (
	"github.com/odin-labs/odin-provider/internal/channel"
	"github.com/odin-labs/odin-provider/internal/registry"
)

// MessageClass classifies an already-decoded inbound frame for
// dispatch. Decoding the raw frame into one of these is the opaque wire
// codec's job; routing a MessageClass to the registry and readiness FSM
// is onMessage's.
type MessageClass int

const (
	MessageUnknown MessageClass = iota
	MessageLoginRefresh
	MessageDirectoryResponse
	MessageDictionaryComplete
	MessageItemRequest
	MessageItemClose
	MessageGenericMessage
)

// InboundMessage is the decoded shape of one inbound frame. Only the
// fields relevant to Class are populated; the rest are zero.
type InboundMessage struct {
	Class MessageClass

	Login channel.LoginState

	DirectoryAvail       channel.DictionaryAvailability
	DirectoryFieldStream int32
	DirectoryEnumStream  int32

	DictionaryStreamID int32

	StreamID   int32
	Attributes registry.Attributes
	Flags      registry.ItemFlags
	Data       registry.ItemData
	QoS        *registry.QoS
	QoSRange   *[2]registry.QoS

	GenericPayload []byte
}

// DecodeFunc turns one raw inbound frame into its InboundMessage shape.
// It is the opaque wire codec boundary: a concrete deployment supplies
// its own decoder here, and onMessage dispatches whatever it returns.
type DecodeFunc func(frame []byte) (InboundMessage, error)
