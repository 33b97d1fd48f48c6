package pof

import (
	"bytes"
	"fmt"
	"io"

	"github.com/USTC-INFINITELAB/pctrl/internal/wire"
)

// ActionType identifies the kind of an Action.
type ActionType uint8

// The action catalogue.
const (
	ActionTypeOutput ActionType = iota
	ActionTypeSetField
	ActionTypeSetFieldFromMetadata
	ActionTypeModifyField
	ActionTypeAddField
	ActionTypeDeleteField
	ActionTypeCalculateChecksum
	ActionTypeGroup
	ActionTypeDrop
	ActionTypePacketIn
	ActionTypeCounter
	ActionTypeExperimenter
)

var actionTypeText = map[ActionType]string{
	ActionTypeOutput:               "OUTPUT",
	ActionTypeSetField:             "SET_FIELD",
	ActionTypeSetFieldFromMetadata: "SET_FIELD_FROM_METADATA",
	ActionTypeModifyField:          "MODIFY_FIELD",
	ActionTypeAddField:             "ADD_FIELD",
	ActionTypeDeleteField:          "DELETE_FIELD",
	ActionTypeCalculateChecksum:    "CALCULATE_CHECKSUM",
	ActionTypeGroup:                "GROUP",
	ActionTypeDrop:                 "DROP",
	ActionTypePacketIn:             "PACKET_IN",
	ActionTypeCounter:              "COUNTER",
	ActionTypeExperimenter:         "EXPERIMENTER",
}

func (t ActionType) String() string {
	if s, ok := actionTypeText[t]; ok {
		return s
	}
	return fmt.Sprintf("ActionType(%d)", uint8(t))
}

// A 1-byte type, a 2-byte length, and a 1-byte pad make a
// 4-byte header; bodies are reserved up to ActionMaxBodyLen so every
// action occupies exactly ActionSlotLen bytes once padded.
const (
	actionHeaderLen  = 4
	ActionMaxBodyLen = 44
	ActionSlotLen    = actionHeaderLen + ActionMaxBodyLen // 48
)

// actionHeader is the common prefix of every Action on the wire.
type actionHeader struct {
	Type ActionType
	Len  uint16
}

func (h actionHeader) WriteTo(w io.Writer) (int64, error) {
	return wire.WriteTo(w, h.Type, h.Len, defaultPad1)
}

func (h *actionHeader) ReadFrom(r io.Reader) (int64, error) {
	var pad pad1
	return wire.ReadFrom(r, &h.Type, &h.Len, &pad)
}

// Action is implemented by every concrete action record.
type Action interface {
	wire.ReadWriter
	Type() ActionType
}

// writeAction emits header+body and pads the whole record out to
// ActionSlotLen bytes, per the pervasive pad-to-maximum rule.
func writeAction(w io.Writer, t ActionType, body []byte) (int64, error) {
	if len(body) > ActionMaxBodyLen {
		return 0, fmt.Errorf("pof: action %s body exceeds %d bytes", t, ActionMaxBodyLen)
	}
	header := actionHeader{t, uint16(actionHeaderLen + len(body))}
	return wire.WriteTo(w, header, body, zeros(ActionMaxBodyLen-len(body)))
}

// actionMap is the static type-byte registry used to decode an unknown
// action from its header; built once at package init.
var actionMap = map[ActionType]wire.ReaderMaker{
	ActionTypeOutput:               wire.ReaderMakerOf(ActionOutput{}),
	ActionTypeSetField:             wire.ReaderMakerOf(ActionSetField{}),
	ActionTypeSetFieldFromMetadata: wire.ReaderMakerOf(ActionSetFieldFromMetadata{}),
	ActionTypeModifyField:          wire.ReaderMakerOf(ActionModifyField{}),
	ActionTypeAddField:             wire.ReaderMakerOf(ActionAddField{}),
	ActionTypeDeleteField:          wire.ReaderMakerOf(ActionDeleteField{}),
	ActionTypeCalculateChecksum:    wire.ReaderMakerOf(ActionCalculateChecksum{}),
	ActionTypeGroup:                wire.ReaderMakerOf(ActionGroup{}),
	ActionTypeDrop:                 wire.ReaderMakerOf(ActionDrop{}),
	ActionTypePacketIn:             wire.ReaderMakerOf(ActionPacketIn{}),
	ActionTypeCounter:              wire.ReaderMakerOf(ActionCounter{}),
	ActionTypeExperimenter:         wire.ReaderMakerOf(ActionExperimenter{}),
}

// readActionBody reads the header, hands the body (sans the slot's
// trailing padding) to fn, and skips the remainder of the fixed
// ActionSlotLen window so the surrounding list's framing stays intact
// even for a body shorter than the 44-byte budget.
func readActionBody(r io.Reader, fn func(body io.Reader, bodyLen int) error) (int64, error) {
	var h actionHeader
	n, err := h.ReadFrom(r)
	if err != nil {
		return n, err
	}
	if h.Len < actionHeaderLen {
		return n, errTruncatedRecord
	}
	bodyLen := int(h.Len) - actionHeaderLen
	lr := io.LimitReader(r, int64(bodyLen))
	if err := fn(lr, bodyLen); err != nil {
		return n, err
	}
	n += int64(bodyLen)

	skip := ActionMaxBodyLen - bodyLen
	if skip > 0 {
		sn, err := io.CopyN(io.Discard, r, int64(skip))
		n += sn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ActionOutput sends the packet out a port, either a literal port_id
// or a Field descriptor naming where to read the port number from the
// packet.
type ActionOutput struct {
	// PortFromField, when true, means Field names where in the packet
	// to read the output port from instead of using PortID directly.
	PortFromField  bool
	MetadataOffset uint16
	MetadataLength uint16
	PacketOffset   uint16
	PortID         uint32
	Field          Field
}

func (a *ActionOutput) Type() ActionType { return ActionTypeOutput }

func (a *ActionOutput) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	portValueType := uint8(0)
	if a.PortFromField {
		portValueType = 1
	}
	if _, err := wire.WriteTo(&buf, portValueType, a.MetadataOffset, a.MetadataLength, a.PacketOffset); err != nil {
		return 0, err
	}
	if a.PortFromField {
		if _, err := a.Field.WriteTo(&buf); err != nil {
			return 0, err
		}
	} else {
		if _, err := wire.WriteTo(&buf, a.PortID); err != nil {
			return 0, err
		}
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionOutput) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		var portValueType uint8
		if _, err := wire.ReadFrom(body, &portValueType, &a.MetadataOffset, &a.MetadataLength, &a.PacketOffset); err != nil {
			return err
		}
		a.PortFromField = portValueType == 1
		if a.PortFromField {
			_, err := a.Field.ReadFrom(body)
			return err
		}
		_, err := wire.ReadFrom(body, &a.PortID)
		return err
	})
}

// ActionSetField overwrites a field with a literal value/mask.
type ActionSetField struct {
	MatchX MatchX
}

func (a *ActionSetField) Type() ActionType { return ActionTypeSetField }

func (a *ActionSetField) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := a.MatchX.WriteTo(&buf); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionSetField) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := a.MatchX.ReadFrom(body)
		return err
	})
}

// ActionSetFieldFromMetadata copies a value out of the metadata buffer
// into Field.
type ActionSetFieldFromMetadata struct {
	Field          Field
	MetadataOffset uint16
}

func (a *ActionSetFieldFromMetadata) Type() ActionType { return ActionTypeSetFieldFromMetadata }

func (a *ActionSetFieldFromMetadata) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := a.Field.WriteTo(&buf); err != nil {
		return 0, err
	}
	if _, err := wire.WriteTo(&buf, a.MetadataOffset); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionSetFieldFromMetadata) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		if _, err := a.Field.ReadFrom(body); err != nil {
			return err
		}
		_, err := wire.ReadFrom(body, &a.MetadataOffset)
		return err
	})
}

// ActionModifyField increments a field by a signed delta.
type ActionModifyField struct {
	Field     Field
	Increment int32
}

func (a *ActionModifyField) Type() ActionType { return ActionTypeModifyField }

func (a *ActionModifyField) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := a.Field.WriteTo(&buf); err != nil {
		return 0, err
	}
	if _, err := wire.WriteTo(&buf, a.Increment); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionModifyField) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		if _, err := a.Field.ReadFrom(body); err != nil {
			return err
		}
		_, err := wire.ReadFrom(body, &a.Increment)
		return err
	})
}

// ActionAddField inserts a brand new field at Position with Value.
type ActionAddField struct {
	FieldID  int16
	Position uint16
	Length   uint16
	Value    [ValueLen]byte
}

func (a *ActionAddField) Type() ActionType { return ActionTypeAddField }

func (a *ActionAddField) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.FieldID, a.Position, a.Length, a.Value); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionAddField) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.FieldID, &a.Position, &a.Length, &a.Value)
		return err
	})
}

// ActionDeleteField removes Length bits (literal, or read from Field)
// starting at Position.
type ActionDeleteField struct {
	Position       uint16
	LengthIsField  bool
	Length         uint32
	Field          Field
}

func (a *ActionDeleteField) Type() ActionType { return ActionTypeDeleteField }

func (a *ActionDeleteField) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	lengthValueType := uint8(0)
	if a.LengthIsField {
		lengthValueType = 1
	}
	if _, err := wire.WriteTo(&buf, a.Position, lengthValueType); err != nil {
		return 0, err
	}
	if a.LengthIsField {
		if _, err := a.Field.WriteTo(&buf); err != nil {
			return 0, err
		}
	} else {
		if _, err := wire.WriteTo(&buf, a.Length); err != nil {
			return 0, err
		}
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionDeleteField) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		var lengthValueType uint8
		if _, err := wire.ReadFrom(body, &a.Position, &lengthValueType); err != nil {
			return err
		}
		a.LengthIsField = lengthValueType == 1
		if a.LengthIsField {
			_, err := a.Field.ReadFrom(body)
			return err
		}
		_, err := wire.ReadFrom(body, &a.Length)
		return err
	})
}

// ActionCalculateChecksum recomputes a checksum over one span from
// another, each expressed as a (position, length) pair whose "type"
// byte indicates whether position/length are literal or field-derived.
type ActionCalculateChecksum struct {
	CheckposType   uint8
	CalcposType    uint8
	ChecksumPos    uint16
	ChecksumLength uint16
	CalcStartPos   uint16
	CalcLength     uint16
}

func (a *ActionCalculateChecksum) Type() ActionType { return ActionTypeCalculateChecksum }

func (a *ActionCalculateChecksum) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.CheckposType, a.CalcposType,
		a.ChecksumPos, a.ChecksumLength, a.CalcStartPos, a.CalcLength); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionCalculateChecksum) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.CheckposType, &a.CalcposType,
			&a.ChecksumPos, &a.ChecksumLength, &a.CalcStartPos, &a.CalcLength)
		return err
	})
}

// ActionGroup sends the packet to a group table entry.
type ActionGroup struct {
	GroupID uint32
}

func (a *ActionGroup) Type() ActionType { return ActionTypeGroup }

func (a *ActionGroup) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.GroupID); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionGroup) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.GroupID)
		return err
	})
}

// ActionDrop discards the packet, recording Reason for diagnostics.
type ActionDrop struct {
	Reason uint32
}

func (a *ActionDrop) Type() ActionType { return ActionTypeDrop }

func (a *ActionDrop) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.Reason); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionDrop) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.Reason)
		return err
	})
}

// ActionPacketIn sends the packet to the controller, recording Reason.
type ActionPacketIn struct {
	Reason uint32
}

func (a *ActionPacketIn) Type() ActionType { return ActionTypePacketIn }

func (a *ActionPacketIn) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.Reason); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionPacketIn) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.Reason)
		return err
	})
}

// ActionCounter increments the named counter for every matching
// packet.
type ActionCounter struct {
	CounterID uint32
}

func (a *ActionCounter) Type() ActionType { return ActionTypeCounter }

func (a *ActionCounter) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.CounterID); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionCounter) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.CounterID)
		return err
	})
}

// ActionExperimenter is an opaque vendor extension action.
type ActionExperimenter struct {
	Experimenter uint32
}

func (a *ActionExperimenter) Type() ActionType { return ActionTypeExperimenter }

func (a *ActionExperimenter) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteTo(&buf, a.Experimenter); err != nil {
		return 0, err
	}
	return writeAction(w, a.Type(), buf.Bytes())
}

func (a *ActionExperimenter) ReadFrom(r io.Reader) (int64, error) {
	return readActionBody(r, func(body io.Reader, bodyLen int) error {
		_, err := wire.ReadFrom(body, &a.Experimenter)
		return err
	})
}

// Action constructors: pure builders that assemble the records the
// manager hands to an instruction.

// NewActionOutput builds an OUTPUT action targeting a literal port.
func NewActionOutput(portID uint32) *ActionOutput {
	return &ActionOutput{PortID: portID}
}

// NewActionOutputFromField builds an OUTPUT action whose port number
// is read from the packet at f, honoring metadataOffset/metadataLength
// and packetOffset the way ActionOutput's wire layout carries them.
func NewActionOutputFromField(f Field, metadataOffset, metadataLength, packetOffset uint16) *ActionOutput {
	return &ActionOutput{
		PortFromField:  true,
		Field:          f,
		MetadataOffset: metadataOffset,
		MetadataLength: metadataLength,
		PacketOffset:   packetOffset,
	}
}

// NewActionSetField builds a SET_FIELD action overwriting m.
func NewActionSetField(m MatchX) *ActionSetField {
	return &ActionSetField{MatchX: m}
}

// NewActionSetFieldFromMetadata builds a SET_FIELD_FROM_METADATA
// action copying metadataOffset bytes of metadata into f.
func NewActionSetFieldFromMetadata(f Field, metadataOffset uint16) *ActionSetFieldFromMetadata {
	return &ActionSetFieldFromMetadata{Field: f, MetadataOffset: metadataOffset}
}

// NewActionModifyField builds a MODIFY_FIELD action adding increment
// to f.
func NewActionModifyField(f Field, increment int32) *ActionModifyField {
	return &ActionModifyField{Field: f, Increment: increment}
}

// NewActionAddField builds an ADD_FIELD action inserting a fieldID at
// position with length bits of value.
func NewActionAddField(fieldID int16, position, length uint16, value [ValueLen]byte) *ActionAddField {
	return &ActionAddField{FieldID: fieldID, Position: position, Length: length, Value: value}
}

// NewActionDeleteField builds a DELETE_FIELD action removing a literal
// length of bits starting at position.
func NewActionDeleteField(position uint16, length uint32) *ActionDeleteField {
	return &ActionDeleteField{Position: position, Length: length}
}

// NewActionDeleteFieldFromField builds a DELETE_FIELD action whose
// length is read from f instead of given literally.
func NewActionDeleteFieldFromField(position uint16, f Field) *ActionDeleteField {
	return &ActionDeleteField{Position: position, LengthIsField: true, Field: f}
}

// NewActionCalculateChecksum builds a CALCULATE_CHECKSUM action over
// literal (position, length) pairs.
func NewActionCalculateChecksum(checksumPos, checksumLength, calcStartPos, calcLength uint16) *ActionCalculateChecksum {
	return &ActionCalculateChecksum{
		ChecksumPos:    checksumPos,
		ChecksumLength: checksumLength,
		CalcStartPos:   calcStartPos,
		CalcLength:     calcLength,
	}
}

// NewActionGroup builds a GROUP action sending the packet to groupID.
func NewActionGroup(groupID uint32) *ActionGroup {
	return &ActionGroup{GroupID: groupID}
}

// NewActionDrop builds a DROP action recording reason.
func NewActionDrop(reason uint32) *ActionDrop {
	return &ActionDrop{Reason: reason}
}

// NewActionPacketIn builds a PACKET_IN action recording reason.
func NewActionPacketIn(reason uint32) *ActionPacketIn {
	return &ActionPacketIn{Reason: reason}
}

// NewActionCounter builds a COUNTER action incrementing counterID.
func NewActionCounter(counterID uint32) *ActionCounter {
	return &ActionCounter{CounterID: counterID}
}

// NewActionExperimenter builds an opaque vendor-extension action.
func NewActionExperimenter(experimenter uint32) *ActionExperimenter {
	return &ActionExperimenter{Experimenter: experimenter}
}

// MaxActionNumPerInstruction bounds how many actions an
// InstructionApplyActions/WriteActions slot carries; unused trailing
// slots are zero-padded.
const MaxActionNumPerInstruction = 6

// ActionListLen is the fixed size of a padded action list embedded in
// an instruction or a PACKET_OUT.
const ActionListLen = MaxActionNumPerInstruction * ActionSlotLen // 288

// ActionList holds up to MaxActionNumPerInstruction actions and always
// serializes to exactly ActionListLen bytes.
type ActionList []Action

// WriteTo implements io.WriterTo.
func (l ActionList) WriteTo(w io.Writer) (int64, error) {
	if len(l) > MaxActionNumPerInstruction {
		return 0, errTooManyActions
	}
	var n int64
	for _, a := range l {
		nn, err := a.WriteTo(w)
		n += nn
		if err != nil {
			return n, err
		}
	}
	pad := zeros(ActionSlotLen * (MaxActionNumPerInstruction - len(l)))
	if len(pad) == 0 {
		return n, nil
	}
	pn, err := w.Write(pad)
	return n + int64(pn), err
}

// ReadFrom implements io.ReaderFrom. It always reads exactly
// MaxActionNumPerInstruction slots; zero-length and unknown-type slots
// are skipped without an error and never appended to the list.
func (l *ActionList) ReadFrom(r io.Reader) (int64, error) {
	var out ActionList
	var n int64

	for i := 0; i < MaxActionNumPerInstruction; i++ {
		var h actionHeader
		peekBuf := make([]byte, actionHeaderLen)
		if _, err := io.ReadFull(r, peekBuf); err != nil {
			return n, err
		}
		if _, err := h.ReadFrom(bytes.NewReader(peekBuf)); err != nil {
			return n, err
		}
		n += actionHeaderLen

		body := make([]byte, ActionMaxBodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return n, err
		}
		n += int64(len(body))

		if h.Len == 0 {
			// Unused, zero-padded slot.
			continue
		}

		rm, ok := actionMap[h.Type]
		if !ok {
			continue
		}
		dec, err := rm.MakeReader()
		if err != nil {
			return n, err
		}
		full := append(append([]byte{}, peekBuf...), body...)
		if _, err := dec.ReadFrom(bytes.NewReader(full)); err != nil {
			return n, err
		}
		out = append(out, dec.(Action))
	}

	*l = out
	return n, nil
}
