package pof

import (
	"fmt"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// Version is the only wire version this codec understands. Any
// inbound message with a different version byte is a protocol error
// for that connection, except an incoming HELLO which exists
// specifically to negotiate it.
const Version uint8 = 0x04

// Type identifies the kind of a POF message; it is the second byte of
// every Header.
type Type uint8

// The POF message catalogue. The multipart pair is framed but not
// individually decoded; see message.go for its stub handling.
const (
	TypeHello Type = iota
	TypeError
	TypeEchoRequest
	TypeEchoReply
	TypeExperimenter
	TypeFeaturesRequest
	TypeFeaturesReply
	TypeGetConfigRequest
	TypeGetConfigReply
	TypeSetConfig
	TypePacketIn
	TypeFlowRemoved
	TypePortStatus
	TypeResourceReport
	TypePacketOut
	TypeFlowMod
	TypeGroupMod
	TypePortMod
	TypeTableMod
	TypeMultipartRequest
	TypeMultipartReply
	TypeBarrierRequest
	TypeBarrierReply
	_
	_
	_
	_
	_
	_
	_
	TypeMeterMod
	TypeCounterMod
	TypeCounterRequest
	TypeCounterReply
)

var typeText = map[Type]string{
	TypeHello:              "HELLO",
	TypeError:              "ERROR",
	TypeEchoRequest:        "ECHO_REQUEST",
	TypeEchoReply:          "ECHO_REPLY",
	TypeExperimenter:       "EXPERIMENTER",
	TypeFeaturesRequest:    "FEATURES_REQUEST",
	TypeFeaturesReply:      "FEATURES_REPLY",
	TypeGetConfigRequest:   "GET_CONFIG_REQUEST",
	TypeGetConfigReply:     "GET_CONFIG_REPLY",
	TypeSetConfig:          "SET_CONFIG",
	TypePacketIn:           "PACKET_IN",
	TypeFlowRemoved:        "FLOW_REMOVED",
	TypePortStatus:         "PORT_STATUS",
	TypeResourceReport:     "RESOURCE_REPORT",
	TypePacketOut:          "PACKET_OUT",
	TypeFlowMod:            "FLOW_MOD",
	TypeGroupMod:           "GROUP_MOD",
	TypePortMod:            "PORT_MOD",
	TypeTableMod:           "TABLE_MOD",
	TypeMultipartRequest:   "MULTIPART_REQUEST",
	TypeMultipartReply:     "MULTIPART_REPLY",
	TypeBarrierRequest:     "BARRIER_REQUEST",
	TypeBarrierReply:       "BARRIER_REPLY",
	TypeMeterMod:           "METER_MOD",
	TypeCounterMod:         "COUNTER_MOD",
	TypeCounterRequest:     "COUNTER_REQUEST",
	TypeCounterReply:       "COUNTER_REPLY",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if s, ok := typeText[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// HeaderLen is the fixed size of a Header on the wire.
const HeaderLen = 8

// Header is the 8-byte preamble of every POF message: version, type,
// total length (including this header) and transaction id.
type Header struct {
	Version uint8
	Type    Type
	Length  uint16
	XID     uint32
}

// WriteTo implements io.WriterTo.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, h.Version, h.Type, h.Length, h.XID)
}

// ReadFrom implements io.ReaderFrom.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	return wire.ReadFrom(r, &h.Version, &h.Type, &h.Length, &h.XID)
}

// Valid reports whether the header carries the version this codec
// speaks. HELLO is exempt: it is how version negotiation happens in
// the first place.
func (h Header) Valid() bool {
	return h.Version == Version || h.Type == TypeHello
}
