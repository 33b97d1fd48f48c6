package pof

import (
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// Hello carries no body beyond the Header; both sides send one right
// after the TCP accept to negotiate Version.
const HelloLen = HeaderLen

// NewHello builds a bare HELLO message.
func NewHello(xid uint32) Header {
	return Header{Version: Version, Type: TypeHello, Length: HelloLen, XID: xid}
}

// ErrMessageLen is the fixed width of the human-readable message body
// carried by an ERROR record.
const ErrMessageLen = 256

// ErrorLen is the fixed on-wire size of an ERROR message, header
// included.
const ErrorLen = HeaderLen + 4 + 4 + 4 + 4 + ErrMessageLen // 280

// ErrorMsg is the ERROR message body: a type/code pair identifying
// what went wrong, the device/slot that reported it, and a free-text
// message. Named ErrorMsg (not Error) so it doesn't shadow the error
// interface.
type ErrorMsg struct {
	Header   Header
	ErrType  uint32
	ErrCode  uint32
	DeviceID uint32
	SlotID   uint32
	Message  string
}

// WriteTo implements io.WriterTo.
func (e ErrorMsg) WriteTo(w io.Writer) (int64, error) {
	msg := make([]byte, ErrMessageLen)
	copy(msg, e.Message)
	return wire.WriteTo(w, e.Header, e.ErrType, e.ErrCode, e.DeviceID, e.SlotID, msg)
}

// ReadFrom implements io.ReaderFrom.
func (e *ErrorMsg) ReadFrom(r io.Reader) (int64, error) {
	msg := make([]byte, ErrMessageLen)
	n, err := wire.ReadFrom(r, &e.Header, &e.ErrType, &e.ErrCode, &e.DeviceID, &e.SlotID, msg)
	e.Message = trimZeros(msg)
	return n, err
}

// NewError builds an ERROR message.
func NewError(xid uint32, errType, errCode, deviceID, slotID uint32, message string) ErrorMsg {
	return ErrorMsg{
		Header:   Header{Version: Version, Type: TypeError, Length: ErrorLen, XID: xid},
		ErrType:  errType,
		ErrCode:  errCode,
		DeviceID: deviceID,
		SlotID:   slotID,
		Message:  message,
	}
}

// errorText maps well-known (type, code) pairs to a human-readable
// string for ErrorIn event logging.
var errorText = map[[2]uint32]string{
	{0, 0}: "hello failed: incompatible version",
	{1, 0}: "request: version not supported",
	{1, 1}: "request: message type not supported",
	{2, 0}: "flow mod failed: table full",
	{2, 1}: "flow mod failed: unknown table",
}

// Describe renders a human-readable description of this error's
// (type, code) pair, falling back to "error: unknown type/code" when
// the pair is not in errorText.
func (e ErrorMsg) Describe() string {
	if s, ok := errorText[[2]uint32{e.ErrType, e.ErrCode}]; ok {
		return s
	}
	return "error: unknown type/code"
}

// Echo is the common body of ECHO_REQUEST and ECHO_REPLY: an arbitrary
// opaque payload that must be returned unchanged.
type Echo struct {
	Header Header
	Data   []byte
}

// WriteTo implements io.WriterTo.
func (e Echo) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, e.Header, e.Data)
}

// ReadFrom implements io.ReaderFrom. It reads the Header from r first
// and uses its Length to size Data.
func (e *Echo) ReadFrom(r io.Reader) (int64, error) {
	n, err := e.Header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	bodyLen := int(e.Header.Length) - HeaderLen
	if bodyLen < 0 {
		return n, errTruncatedRecord
	}
	e.Data = make([]byte, bodyLen)
	bn, err := io.ReadFull(r, e.Data)
	return n + int64(bn), err
}

// NewEchoRequest builds an ECHO_REQUEST carrying data.
func NewEchoRequest(xid uint32, data []byte) Echo {
	return Echo{Header: Header{Version: Version, Type: TypeEchoRequest, Length: uint16(HeaderLen + len(data)), XID: xid}, Data: data}
}

// Reply turns an inbound ECHO_REQUEST into the ECHO_REPLY that echoes
// it back unchanged.
func (e Echo) Reply() Echo {
	e.Header.Type = TypeEchoReply
	return e
}

// Experimenter is the opaque vendor-extension message body.
type Experimenter struct {
	Header         Header
	ExperimenterID uint32
	ExpType        uint32
	Data           []byte
}

// WriteTo implements io.WriterTo.
func (e Experimenter) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, e.Header, e.ExperimenterID, e.ExpType, e.Data)
}

// ReadFrom implements io.ReaderFrom.
func (e *Experimenter) ReadFrom(r io.Reader) (int64, error) {
	n, err := wire.ReadFrom(r, &e.Header, &e.ExperimenterID, &e.ExpType)
	if err != nil {
		return n, err
	}
	bodyLen := int(e.Header.Length) - HeaderLen - 8
	if bodyLen < 0 {
		return n, errTruncatedRecord
	}
	e.Data = make([]byte, bodyLen)
	bn, err := io.ReadFull(r, e.Data)
	return n + int64(bn), err
}

// PacketInLen is the fixed on-wire size of the scalar portion of a
// PACKET_IN message, header included; Data is variable-length and
// follows immediately after.
const PacketInLen = HeaderLen + 24 // 32

// PacketIn carries a packet (or its first bytes) that missed every
// flow entry, or that an APPLY_ACTIONS PACKET_IN action forwarded to
// the controller explicitly.
//
// Switch firmwares disagree on whether the arrival port is a split
// slot_id+port_id pair or one combined slot_port_id; both are the
// same 4-byte value at the same offset, so this codec always exposes
// it as SlotPortID.
type PacketIn struct {
	Header      Header
	BufferID    uint32
	TotalLen    uint16
	Reason      uint8
	TableID     uint8
	Cookie      uint64
	DeviceID    uint32
	SlotPortID  uint32
	Data        []byte
}

// WriteTo implements io.WriterTo.
func (p PacketIn) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, p.Header, p.BufferID, p.TotalLen, p.Reason, p.TableID,
		p.Cookie, p.DeviceID, p.SlotPortID, p.Data)
}

// ReadFrom implements io.ReaderFrom.
func (p *PacketIn) ReadFrom(r io.Reader) (int64, error) {
	n, err := wire.ReadFrom(r, &p.Header, &p.BufferID, &p.TotalLen, &p.Reason, &p.TableID,
		&p.Cookie, &p.DeviceID, &p.SlotPortID)
	if err != nil {
		return n, err
	}
	dataLen := int(p.Header.Length) - PacketInLen
	if dataLen < 0 {
		return n, errTruncatedRecord
	}
	p.Data = make([]byte, dataLen)
	dn, err := io.ReadFull(r, p.Data)
	return n + int64(dn), err
}

// FlowRemovedLen is the fixed on-wire size of a FLOW_REMOVED message,
// header included: an 8-byte header, a single 40-byte match (the same
// width as a MatchX, so it is carried as one here), and 40 bytes of
// scalars.
const FlowRemovedLen = HeaderLen + MatchXLen + 40 // 88

// FlowRemoved notifies the controller that an entry aged out or was
// explicitly evicted.
type FlowRemoved struct {
	Header       Header
	Match        MatchX
	Cookie       uint64
	Priority     uint16
	Reason       uint8
	DurationSec  uint32
	DurationNSec uint32
	IdleTimeout  uint16
	PacketCount  uint64
	ByteCount    uint64
}

// WriteTo implements io.WriterTo.
func (f FlowRemoved) WriteTo(w io.Writer) (int64, error) {
	n, err := wire.WriteTo(w, f.Header, f.Match, f.Cookie, f.Priority, f.Reason, defaultPad1,
		f.DurationSec, f.DurationNSec, f.IdleTimeout, defaultPad2,
		f.PacketCount, f.ByteCount)
	return n, err
}

// ReadFrom implements io.ReaderFrom.
func (f *FlowRemoved) ReadFrom(r io.Reader) (int64, error) {
	var pad1 [1]byte
	var pad2 [2]byte
	return wire.ReadFrom(r, &f.Header, &f.Match, &f.Cookie, &f.Priority, &f.Reason, &pad1,
		&f.DurationSec, &f.DurationNSec, &f.IdleTimeout, &pad2,
		&f.PacketCount, &f.ByteCount)
}

// PortStatusLen is the fixed on-wire size of a PORT_STATUS message,
// header included: the reason byte plus an embedded PhyPort.
const PortStatusLen = HeaderLen + 8 + PhyPortLen // 136

// PortStatusReason enumerates why a PORT_STATUS was sent.
type PortStatusReason uint8

const (
	PortReasonAdd PortStatusReason = iota
	PortReasonDelete
	PortReasonModify
)

// PortStatus is sent whenever a switch port is added, removed, or its
// config/state bits change.
type PortStatus struct {
	Header Header
	Reason PortStatusReason
	Port   PhyPort
}

// WriteTo implements io.WriterTo.
func (p PortStatus) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, p.Header, p.Reason, zeros(7), p.Port)
}

// ReadFrom implements io.ReaderFrom.
func (p *PortStatus) ReadFrom(r io.Reader) (int64, error) {
	var pad [7]byte
	return wire.ReadFrom(r, &p.Header, &p.Reason, &pad, &p.Port)
}

// PortModLen is the fixed on-wire size of a PORT_MOD message, header
// included: a reason byte plus an embedded PhyPort.
const PortModLen = HeaderLen + 8 + PhyPortLen // 136

// PortModReason mirrors PortStatusReason but is used when the
// controller, rather than the switch, initiates the change.
type PortModReason = PortStatusReason

const (
	PortModAdd    = PortReasonAdd
	PortModDelete = PortReasonDelete
	PortModModify = PortReasonModify
)

// PortMod pushes a port configuration change; the manager's
// SetPortOfEnable emits this with Reason=Modify.
type PortMod struct {
	Header Header
	Reason PortModReason
	Port   PhyPort
}

// WriteTo implements io.WriterTo.
func (p PortMod) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, p.Header, p.Reason, zeros(7), p.Port)
}

// ReadFrom implements io.ReaderFrom.
func (p *PortMod) ReadFrom(r io.Reader) (int64, error) {
	var pad [7]byte
	return wire.ReadFrom(r, &p.Header, &p.Reason, &pad, &p.Port)
}

// NewPortMod builds a PORT_MOD message.
func NewPortMod(xid uint32, reason PortModReason, port PhyPort) PortMod {
	return PortMod{
		Header: Header{Version: Version, Type: TypePortMod, Length: PortModLen, XID: xid},
		Reason: reason,
		Port:   port,
	}
}

// TableResourceLen is the fixed wire size of one per-table-type
// capacity record inside a RESOURCE_REPORT.
const TableResourceLen = 16

// TableResource reports how many entries a switch can hold in one
// table type, and how many table slots of that type it has.
type TableResource struct {
	TableType   TableType
	TableNum    uint8
	KeySizeBits uint16
	TotalSize   uint32
}

// WriteTo implements io.WriterTo.
func (t TableResource) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, t.TableType, t.TableNum, t.KeySizeBits, t.TotalSize, zeros(8))
}

// ReadFrom implements io.ReaderFrom.
func (t *TableResource) ReadFrom(r io.Reader) (int64, error) {
	var pad [8]byte
	return wire.ReadFrom(r, &t.TableType, &t.TableNum, &t.KeySizeBits, &t.TotalSize, &pad)
}

// NumTableTypes is the number of table-type slots a RESOURCE_REPORT
// always carries, one per TableType.
const NumTableTypes = 4

// ResourceReportLen is the fixed on-wire size of a RESOURCE_REPORT
// message, header included.
const ResourceReportLen = HeaderLen + 16 + NumTableTypes*TableResourceLen // 88

// ResourceReport announces a switch's counter/meter/group/table
// capacity; pmdb's SwitchState derives the per-type global-id bases from the
// four TableResource entries.
type ResourceReport struct {
	Header        Header
	ResourceType  uint8
	SlotID        uint8
	CounterNum    uint32
	MeterNum      uint32
	GroupNum      uint32
	Tables        [NumTableTypes]TableResource
}

// WriteTo implements io.WriterTo.
func (rr ResourceReport) WriteTo(w io.Writer) (int64, error) {
	n, err := wire.WriteTo(w, rr.Header, rr.ResourceType, rr.SlotID, zeros(2),
		rr.CounterNum, rr.MeterNum, rr.GroupNum)
	if err != nil {
		return n, err
	}
	for _, t := range rr.Tables {
		tn, err := t.WriteTo(w)
		n += tn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadFrom implements io.ReaderFrom.
func (rr *ResourceReport) ReadFrom(r io.Reader) (int64, error) {
	var pad [2]byte
	n, err := wire.ReadFrom(r, &rr.Header, &rr.ResourceType, &rr.SlotID, &pad,
		&rr.CounterNum, &rr.MeterNum, &rr.GroupNum)
	if err != nil {
		return n, err
	}
	for i := range rr.Tables {
		tn, err := rr.Tables[i].ReadFrom(r)
		n += tn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// PacketOutActionListLen is the action-slot budget carried by a
// PACKET_OUT: 6 padded slots, same as an
// InstructionApplyActions body.
const PacketOutActionListLen = ActionListLen

// PacketOutDataLen is the fixed size of the trailing raw-packet data
// slot in a PACKET_OUT.
const PacketOutDataLen = 2048

// PacketOutLen is the fixed on-wire size of a PACKET_OUT message,
// header included.
const PacketOutLen = HeaderLen + 16 + PacketOutActionListLen + PacketOutDataLen // 2360

// PacketOut tells a switch to process or emit a controller-supplied
// packet through a caller-chosen action list.
type PacketOut struct {
	Header     Header
	BufferID   uint32
	InPort     uint32
	ActionNum  uint8
	DataLength uint16
	Actions    ActionList
	Data       []byte
}

// WriteTo implements io.WriterTo.
func (p PacketOut) WriteTo(w io.Writer) (int64, error) {
	if len(p.Actions) > MaxActionNumPerInstruction {
		return 0, errTooManyActions
	}
	data := make([]byte, PacketOutDataLen)
	copy(data, p.Data)

	n, err := wire.WriteTo(w, p.Header, p.BufferID, p.InPort,
		uint8(len(p.Actions)), zeros(3), uint16(len(p.Data)), zeros(2))
	if err != nil {
		return n, err
	}
	an, err := p.Actions.WriteTo(w)
	n += an
	if err != nil {
		return n, err
	}
	dn, err := w.Write(data)
	return n + int64(dn), err
}

// ReadFrom implements io.ReaderFrom.
func (p *PacketOut) ReadFrom(r io.Reader) (int64, error) {
	var actionNum uint8
	var headPad [3]byte
	var dataLen uint16
	var tailPad [2]byte

	n, err := wire.ReadFrom(r, &p.Header, &p.BufferID, &p.InPort,
		&actionNum, &headPad, &dataLen, &tailPad)
	if err != nil {
		return n, err
	}
	p.ActionNum = actionNum
	p.DataLength = dataLen

	var actions ActionList
	an, err := actions.ReadFrom(r)
	n += an
	if err != nil {
		return n, err
	}
	p.Actions = actions

	data := make([]byte, PacketOutDataLen)
	dn, err := io.ReadFull(r, data)
	n += int64(dn)
	if err != nil {
		return n, err
	}
	if int(dataLen) <= len(data) {
		p.Data = data[:dataLen]
	} else {
		p.Data = data
	}
	return n, nil
}

// NewPacketOut builds a PACKET_OUT telling the switch to run data (or
// the buffered packet named by bufferID) through actions.
func NewPacketOut(xid, bufferID, inPort uint32, actions ActionList, data []byte) PacketOut {
	return PacketOut{
		Header:     Header{Version: Version, Type: TypePacketOut, Length: PacketOutLen, XID: xid},
		BufferID:   bufferID,
		InPort:     inPort,
		ActionNum:  uint8(len(actions)),
		DataLength: uint16(len(data)),
		Actions:    actions,
		Data:       data,
	}
}

// GroupModCommand distinguishes add/modify/delete on a GROUP_MOD.
type GroupModCommand uint8

const (
	GroupModAdd GroupModCommand = iota
	GroupModModify
	GroupModDelete
)

// GroupModLen is the fixed on-wire size of a GROUP_MOD message, header
// included.
const GroupModLen = HeaderLen + 8 + ActionListLen // 304

// GroupMod installs, updates, or removes a group entry: a bucket of
// actions addressable by GroupID from an ActionGroup action.
type GroupMod struct {
	Header  Header
	Command GroupModCommand
	GroupID uint32
	Actions ActionList
}

// WriteTo implements io.WriterTo.
func (g GroupMod) WriteTo(w io.Writer) (int64, error) {
	if len(g.Actions) > MaxActionNumPerInstruction {
		return 0, errTooManyActions
	}
	n, err := wire.WriteTo(w, g.Header, g.Command, zeros(3), g.GroupID)
	if err != nil {
		return n, err
	}
	an, err := g.Actions.WriteTo(w)
	return n + an, err
}

// ReadFrom implements io.ReaderFrom.
func (g *GroupMod) ReadFrom(r io.Reader) (int64, error) {
	var pad [3]byte
	n, err := wire.ReadFrom(r, &g.Header, &g.Command, &pad, &g.GroupID)
	if err != nil {
		return n, err
	}
	var actions ActionList
	an, err := actions.ReadFrom(r)
	g.Actions = actions
	return n + an, err
}

// NewGroupMod builds a GROUP_MOD message.
func NewGroupMod(xid uint32, command GroupModCommand, groupID uint32, actions ActionList) GroupMod {
	return GroupMod{
		Header:  Header{Version: Version, Type: TypeGroupMod, Length: GroupModLen, XID: xid},
		Command: command,
		GroupID: groupID,
		Actions: actions,
	}
}

// MeterModCommand distinguishes add/modify/delete on a METER_MOD.
type MeterModCommand uint8

const (
	MeterModAdd MeterModCommand = iota
	MeterModModify
	MeterModDelete
)

// MeterModLen is the fixed on-wire size of a METER_MOD message, header
// included.
const MeterModLen = HeaderLen + 16 // 24

// MeterMod installs, updates, or removes a rate limiter.
type MeterMod struct {
	Header  Header
	Command MeterModCommand
	SlotID  uint8
	MeterID uint32
	Rate    uint32
}

// WriteTo implements io.WriterTo.
func (m MeterMod) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, m.Header, m.Command, m.SlotID, zeros(2), m.MeterID, m.Rate, zeros(4))
}

// ReadFrom implements io.ReaderFrom.
func (m *MeterMod) ReadFrom(r io.Reader) (int64, error) {
	var pad2 [2]byte
	var pad4 [4]byte
	return wire.ReadFrom(r, &m.Header, &m.Command, &m.SlotID, &pad2, &m.MeterID, &m.Rate, &pad4)
}

// NewMeterMod builds a METER_MOD message.
func NewMeterMod(xid uint32, command MeterModCommand, slotID uint8, meterID, rate uint32) MeterMod {
	return MeterMod{
		Header:  Header{Version: Version, Type: TypeMeterMod, Length: MeterModLen, XID: xid},
		Command: command,
		SlotID:  slotID,
		MeterID: meterID,
		Rate:    rate,
	}
}

// CounterModCommand distinguishes add/delete/clear on a
// COUNTER_MOD.
type CounterModCommand uint8

const (
	CounterModAdd CounterModCommand = iota
	CounterModDelete
	CounterModClear
)

// CounterModLen is the fixed on-wire size of a COUNTER_MOD message,
// header included.
const CounterModLen = HeaderLen + 24 // 32

// CounterMod installs, clears, or removes a counter.
type CounterMod struct {
	Header    Header
	Command   CounterModCommand
	CounterID uint32
}

// WriteTo implements io.WriterTo.
func (c CounterMod) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, c.Header, c.Command, zeros(3), c.CounterID, zeros(16))
}

// ReadFrom implements io.ReaderFrom.
func (c *CounterMod) ReadFrom(r io.Reader) (int64, error) {
	var pad3 [3]byte
	var tail [16]byte
	return wire.ReadFrom(r, &c.Header, &c.Command, &pad3, &c.CounterID, &tail)
}

// NewCounterMod builds a COUNTER_MOD message.
func NewCounterMod(xid uint32, command CounterModCommand, counterID uint32) CounterMod {
	return CounterMod{
		Header:    Header{Version: Version, Type: TypeCounterMod, Length: CounterModLen, XID: xid},
		Command:   command,
		CounterID: counterID,
	}
}

// CounterRequestReplyLen is the fixed on-wire size of both
// COUNTER_REQUEST and COUNTER_REPLY, header included.
const CounterRequestReplyLen = HeaderLen + 24 // 32

// CounterRequest asks a switch for a counter's current value.
type CounterRequest struct {
	Header    Header
	CounterID uint32
}

// WriteTo implements io.WriterTo.
func (c CounterRequest) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, c.Header, c.CounterID, zeros(20))
}

// ReadFrom implements io.ReaderFrom.
func (c *CounterRequest) ReadFrom(r io.Reader) (int64, error) {
	var tail [20]byte
	return wire.ReadFrom(r, &c.Header, &c.CounterID, &tail)
}

// NewCounterRequest builds a COUNTER_REQUEST message.
func NewCounterRequest(xid uint32, counterID uint32) CounterRequest {
	return CounterRequest{
		Header:    Header{Version: Version, Type: TypeCounterRequest, Length: CounterRequestReplyLen, XID: xid},
		CounterID: counterID,
	}
}

// CounterReply carries a counter's packet/byte values back from the
// switch.
type CounterReply struct {
	Header      Header
	CounterID   uint32
	PacketCount uint64
	ByteCount   uint64
}

// WriteTo implements io.WriterTo.
func (c CounterReply) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, c.Header, c.CounterID, zeros(4), c.PacketCount, c.ByteCount)
}

// ReadFrom implements io.ReaderFrom.
func (c *CounterReply) ReadFrom(r io.Reader) (int64, error) {
	var pad [4]byte
	return wire.ReadFrom(r, &c.Header, &c.CounterID, &pad, &c.PacketCount, &c.ByteCount)
}

// BarrierLen is the fixed on-wire size of both BARRIER_REQUEST and
// BARRIER_REPLY: bare headers, no body.
const BarrierLen = HeaderLen

// NewBarrierRequest builds a bare BARRIER_REQUEST.
func NewBarrierRequest(xid uint32) Header {
	return Header{Version: Version, Type: TypeBarrierRequest, Length: BarrierLen, XID: xid}
}

// NewBarrierReply replies to a BARRIER_REQUEST with the same xid.
func NewBarrierReply(xid uint32) Header {
	return Header{Version: Version, Type: TypeBarrierReply, Length: BarrierLen, XID: xid}
}

// MultipartRequest and MultipartReply are framed but not individually
// decoded; stats semantics are unsettled in this dialect, so only the
// framing is pinned. Callers that need a specific multipart body can extend
// this type; the codec guarantees the header's declared Length still
// bounds how many body bytes are consumed.
type MultipartRequest struct {
	Header Header
	Body   []byte
}

// WriteTo implements io.WriterTo.
func (m MultipartRequest) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, m.Header, m.Body)
}

// ReadFrom implements io.ReaderFrom.
func (m *MultipartRequest) ReadFrom(r io.Reader) (int64, error) {
	n, err := m.Header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	bodyLen := int(m.Header.Length) - HeaderLen
	if bodyLen < 0 {
		return n, errTruncatedRecord
	}
	m.Body = make([]byte, bodyLen)
	bn, err := io.ReadFull(r, m.Body)
	return n + int64(bn), err
}

// MultipartReply mirrors MultipartRequest for the switch-to-controller
// direction.
type MultipartReply struct {
	Header Header
	Body   []byte
}

// WriteTo implements io.WriterTo.
func (m MultipartReply) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, m.Header, m.Body)
}

// ReadFrom implements io.ReaderFrom.
func (m *MultipartReply) ReadFrom(r io.Reader) (int64, error) {
	n, err := m.Header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	bodyLen := int(m.Header.Length) - HeaderLen
	if bodyLen < 0 {
		return n, errTruncatedRecord
	}
	m.Body = make([]byte, bodyLen)
	bn, err := io.ReadFull(r, m.Body)
	return n + int64(bn), err
}
