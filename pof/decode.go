package pof

import (
	"bytes"
	"fmt"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// Message is any decoded POF message body; every message type in
// messageMap implements it via its own Header field.
type Message interface {
	wire.ReadWriter
}

// messageMap is the static type-byte registry used to decode a full
// message once its Header has told us the type, the same shape as
// actionMap and instructionMap one layer down.
var messageMap = map[Type]wire.ReaderMaker{
	TypeHello:            wire.ReaderMakerOf(Header{}),
	TypeError:            wire.ReaderMakerOf(ErrorMsg{}),
	TypeEchoRequest:      wire.ReaderMakerOf(Echo{}),
	TypeEchoReply:        wire.ReaderMakerOf(Echo{}),
	TypeExperimenter:     wire.ReaderMakerOf(Experimenter{}),
	TypeFeaturesRequest:  wire.ReaderMakerOf(Header{}),
	TypeFeaturesReply:    wire.ReaderMakerOf(FeaturesReply{}),
	TypeGetConfigRequest: wire.ReaderMakerOf(Header{}),
	TypeGetConfigReply:   wire.ReaderMakerOf(GetConfigReply{}),
	TypeSetConfig:        wire.ReaderMakerOf(SetConfig{}),
	TypePacketIn:         wire.ReaderMakerOf(PacketIn{}),
	TypeFlowRemoved:      wire.ReaderMakerOf(FlowRemoved{}),
	TypePortStatus:       wire.ReaderMakerOf(PortStatus{}),
	TypeResourceReport:   wire.ReaderMakerOf(ResourceReport{}),
	TypePacketOut:        wire.ReaderMakerOf(PacketOut{}),
	TypeFlowMod:          wire.ReaderMakerOf(FlowMod{}),
	TypeGroupMod:         wire.ReaderMakerOf(GroupMod{}),
	TypePortMod:          wire.ReaderMakerOf(PortMod{}),
	TypeTableMod:         wire.ReaderMakerOf(TableMod{}),
	TypeMultipartRequest: wire.ReaderMakerOf(MultipartRequest{}),
	TypeMultipartReply:   wire.ReaderMakerOf(MultipartReply{}),
	TypeBarrierRequest:   wire.ReaderMakerOf(Header{}),
	TypeBarrierReply:     wire.ReaderMakerOf(Header{}),
	TypeMeterMod:         wire.ReaderMakerOf(MeterMod{}),
	TypeCounterMod:       wire.ReaderMakerOf(CounterMod{}),
	TypeCounterRequest:   wire.ReaderMakerOf(CounterRequest{}),
	TypeCounterReply:     wire.ReaderMakerOf(CounterReply{}),
}

// UnknownMessageTypeError is returned by Decode when a Header names a
// type byte this codec does not recognise.
type UnknownMessageTypeError struct {
	Type Type
}

func (e UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("pof: unknown message type %s", e.Type)
}

// Decode decodes one full POF message from its already-read header hdr
// and body, which must contain exactly the hdr.Length-HeaderLen bytes
// that follow the header. The returned value's concrete type is one of the structs
// registered in messageMap, e.g. *FeaturesReply, *PacketIn.
func Decode(hdr Header, body []byte) (Message, error) {
	rm, ok := messageMap[hdr.Type]
	if !ok {
		return nil, UnknownMessageTypeError{Type: hdr.Type}
	}

	dec, err := rm.MakeReader()
	if err != nil {
		return nil, err
	}

	var headerBuf bytes.Buffer
	if _, err := hdr.WriteTo(&headerBuf); err != nil {
		return nil, err
	}

	full := io.MultiReader(bytes.NewReader(headerBuf.Bytes()), bytes.NewReader(body))
	if _, err := dec.(io.ReaderFrom).ReadFrom(full); err != nil {
		return nil, err
	}

	return dec.(Message), nil
}
