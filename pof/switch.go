package pof

import (
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// SwitchNameLen is the fixed width of each of the three zero-padded
// name fields carried in a FeaturesReply.
const SwitchNameLen = 64

// FeaturesReplyLen is the fixed on-wire size of a FEATURES_REPLY
// message, header included.
const FeaturesReplyLen = 216

// FeaturesReply announces a switch's identity and capacity right
// after the TCP accept; it seeds the SwitchState.
type FeaturesReply struct {
	Header       Header
	DeviceID     uint32
	PortNum      uint16
	TableNum     uint8
	Capabilities uint32

	VendorName string
	DeviceName string
	BoardName  string
}

// WriteTo implements io.WriterTo.
func (f FeaturesReply) WriteTo(w io.Writer) (int64, error) {
	vendor := make([]byte, SwitchNameLen)
	device := make([]byte, SwitchNameLen)
	board := make([]byte, SwitchNameLen)
	copy(vendor, f.VendorName)
	copy(device, f.DeviceName)
	copy(board, f.BoardName)

	return wire.WriteTo(w, f.Header,
		f.DeviceID, f.PortNum, f.TableNum, zeros(1), f.Capabilities, zeros(4),
		vendor, device, board)
}

// ReadFrom implements io.ReaderFrom.
func (f *FeaturesReply) ReadFrom(r io.Reader) (int64, error) {
	var pad1 [1]byte
	var pad4 [4]byte
	vendor := make([]byte, SwitchNameLen)
	device := make([]byte, SwitchNameLen)
	board := make([]byte, SwitchNameLen)

	n, err := wire.ReadFrom(r, &f.Header,
		&f.DeviceID, &f.PortNum, &f.TableNum, &pad1, &f.Capabilities, &pad4,
		vendor, device, board)
	if err != nil {
		return n, err
	}
	f.VendorName = trimZeros(vendor)
	f.DeviceName = trimZeros(device)
	f.BoardName = trimZeros(board)
	return n, nil
}

// FeaturesRequestLen is the fixed size of a FEATURES_REQUEST: the bare
// Header, no body.
const FeaturesRequestLen = HeaderLen

// NewFeaturesRequest builds a bare FEATURES_REQUEST.
func NewFeaturesRequest(xid uint32) Header {
	return Header{Version: Version, Type: TypeFeaturesRequest, Length: FeaturesRequestLen, XID: xid}
}

// GetConfigReplyLen is the fixed on-wire size of a GET_CONFIG_REPLY
// message, header included.
const GetConfigReplyLen = 16

// GetConfigReply carries the switch's current miss-handling
// configuration.
type GetConfigReply struct {
	Header      Header
	Flags       uint32
	MissSendLen uint32
}

// WriteTo implements io.WriterTo.
func (c GetConfigReply) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, c.Header, c.Flags, c.MissSendLen)
}

// ReadFrom implements io.ReaderFrom.
func (c *GetConfigReply) ReadFrom(r io.Reader) (int64, error) {
	return wire.ReadFrom(r, &c.Header, &c.Flags, &c.MissSendLen)
}

// GetConfigRequestLen is the fixed size of a GET_CONFIG_REQUEST: the
// bare Header, no body.
const GetConfigRequestLen = HeaderLen

// NewGetConfigRequest builds a bare GET_CONFIG_REQUEST.
func NewGetConfigRequest(xid uint32) Header {
	return Header{Version: Version, Type: TypeGetConfigRequest, Length: GetConfigRequestLen, XID: xid}
}

// SetConfigLen is the fixed on-wire size of a SET_CONFIG message,
// header included.
const SetConfigLen = 12

// SetConfig pushes a new miss-handling configuration to the switch.
type SetConfig struct {
	Header      Header
	Flags       uint16
	MissSendLen uint16
}

// WriteTo implements io.WriterTo.
func (c SetConfig) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, c.Header, c.Flags, c.MissSendLen)
}

// ReadFrom implements io.ReaderFrom.
func (c *SetConfig) ReadFrom(r io.Reader) (int64, error) {
	return wire.ReadFrom(r, &c.Header, &c.Flags, &c.MissSendLen)
}

// NewSetConfig builds a SET_CONFIG message.
func NewSetConfig(xid uint32, flags, missSendLen uint16) SetConfig {
	return SetConfig{
		Header:      Header{Version: Version, Type: TypeSetConfig, Length: SetConfigLen, XID: xid},
		Flags:       flags,
		MissSendLen: missSendLen,
	}
}
